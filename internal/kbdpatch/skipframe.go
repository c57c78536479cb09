package kbdpatch

import (
	"encoding/binary"
	"fmt"
)

const (
	skippableFrameMagicBase uint32 = 0x184D2A50

	// skippableFrameHeaderLen is the magic (4 bytes) plus the frame-size
	// field (4 bytes) that must precede any skippable-frame payload.
	skippableFrameHeaderLen = 8
)

/*
createSkippableFrame returns a payload formatted as a Zstandard skippable
frame, used here purely as zero-filled padding to make a recompressed
layout occupy exactly the original frame's byte capacity.

	| `Magic_Number` | `Frame_Size` | `User_Data` |
	|:--------------:|:------------:|:-----------:|
	|    4 bytes     |   4 bytes    |   n bytes   |

https://github.com/facebook/zstd/blob/dev/doc/zstd_compression_format.md#skippable-frames
*/
func createSkippableFrame(tag uint32, payload []byte) ([]byte, error) {
	if tag > 0xF {
		return nil, fmt.Errorf("requested tag (%d) > 0xf", tag)
	}
	if len(payload) > 0xFFFFFFFF {
		return nil, fmt.Errorf("requested skippable frame size (%d) > max uint32", len(payload))
	}

	dst := make([]byte, skippableFrameHeaderLen, skippableFrameHeaderLen+len(payload))
	binary.LittleEndian.PutUint32(dst[0:], skippableFrameMagicBase+tag)
	binary.LittleEndian.PutUint32(dst[4:], uint32(len(payload)))
	return append(dst, payload...), nil
}

// paddingFrame builds the zero-filled skippable frame the In-Place Writer
// uses to absorb slack left after recompression, per spec.md §4.5: tag is
// fixed at the variant-nibble-0 member of the family, and the payload is
// slack-8 zero bytes so the total padding length is exactly slack.
func paddingFrame(slack int) ([]byte, error) {
	if slack == 0 {
		return nil, nil
	}
	if slack < skippableFrameHeaderLen {
		return nil, wrap(KindPaddingTooSmall, "paddingFrame",
			fmt.Errorf("slack %d is below the %d-byte skippable-frame minimum", slack, skippableFrameHeaderLen))
	}
	return createSkippableFrame(0, make([]byte, slack-skippableFrameHeaderLen))
}
