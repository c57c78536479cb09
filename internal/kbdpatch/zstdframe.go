package kbdpatch

import (
	"encoding/binary"
	"fmt"
)

/*
frameSize walks the public Zstandard frame format starting at the standard
frame magic already verified by the caller, and returns the exact number of
bytes the frame occupies, without decompressing it.

	|`Magic_Number`|`Frame_Header`|`[Data_Block]...`|`[Content_Checksum]`|
	|--------------|--------------|-----------------|---------------------|
	| 4 bytes      | 2-14 bytes   | n bytes         | 0 or 4 bytes        |

This is the only reliable way to learn where one frame ends inside a larger
buffer that may contain unrelated bytes afterwards (including bytes that
happen to look like a magic number): scanning forward for the next magic
candidate and treating the gap as the frame length is exactly the kind of
guess spec forbids, since compressed payloads routinely contain incidental
magic-like byte runs.

https://github.com/facebook/zstd/blob/dev/doc/zstd_compression_format.md#frame-header
*/
func frameSize(data []byte) (size int64, err error) {
	const magicLen = 4
	if len(data) < magicLen+1 {
		return 0, fmt.Errorf("truncated frame header")
	}

	pos := int64(magicLen)

	descriptor := data[pos]
	pos++

	dictIDFlag := descriptor & 0x3
	checksumFlag := (descriptor>>2)&0x1 != 0
	reserved := (descriptor >> 3) & 0x1
	singleSegment := (descriptor>>5)&0x1 != 0
	contentSizeFlag := (descriptor >> 6) & 0x3

	if reserved != 0 {
		return 0, fmt.Errorf("frame header reserved bit is set")
	}

	if !singleSegment {
		if int64(len(data)) < pos+1 {
			return 0, fmt.Errorf("truncated window descriptor")
		}
		pos++
	}

	var dictIDSize int64
	switch dictIDFlag {
	case 0:
		dictIDSize = 0
	case 1:
		dictIDSize = 1
	case 2:
		dictIDSize = 2
	case 3:
		dictIDSize = 4
	}
	pos += dictIDSize

	var contentSizeSize int64
	switch contentSizeFlag {
	case 0:
		if singleSegment {
			contentSizeSize = 1
		} else {
			contentSizeSize = 0
		}
	case 1:
		contentSizeSize = 2
	case 2:
		contentSizeSize = 4
	case 3:
		contentSizeSize = 8
	}
	pos += contentSizeSize

	if int64(len(data)) < pos {
		return 0, fmt.Errorf("truncated frame header")
	}

	for {
		if int64(len(data)) < pos+3 {
			return 0, fmt.Errorf("truncated block header at %d", pos)
		}
		header := uint32(data[pos]) | uint32(data[pos+1])<<8 | uint32(data[pos+2])<<16
		lastBlock := header&0x1 != 0
		blockType := (header >> 1) & 0x3
		blockSize := int64(header >> 3)
		pos += 3

		if blockType == 3 {
			return 0, fmt.Errorf("reserved block type at %d", pos-3)
		}

		var contentLen int64
		switch blockType {
		case 0, 2: // Raw, Compressed
			contentLen = blockSize
		case 1: // RLE: one byte on the wire regardless of decompressed run length
			contentLen = 1
		}
		pos += contentLen

		if int64(len(data)) < pos {
			return 0, fmt.Errorf("block extends past available data at %d", pos)
		}

		if lastBlock {
			break
		}
	}

	if checksumFlag {
		pos += 4
		if int64(len(data)) < pos {
			return 0, fmt.Errorf("truncated content checksum")
		}
	}

	return pos, nil
}

// decodedSizeHint returns the frame content size field when present (content
// size flag != 0, or single-segment mode), and ok=false otherwise. It is
// used only to presize decode buffers; the authoritative decompressed
// length always comes from the decoder's actual output.
func decodedSizeHint(data []byte) (size uint64, ok bool) {
	if len(data) < 5 {
		return 0, false
	}
	descriptor := data[4]
	dictIDFlag := descriptor & 0x3
	singleSegment := (descriptor>>5)&0x1 != 0
	contentSizeFlag := (descriptor >> 6) & 0x3

	if contentSizeFlag == 0 && !singleSegment {
		return 0, false
	}

	pos := int64(5)
	if !singleSegment {
		pos++
	}
	var dictIDSize int64
	switch dictIDFlag {
	case 1:
		dictIDSize = 1
	case 2:
		dictIDSize = 2
	case 3:
		dictIDSize = 4
	}
	pos += dictIDSize

	switch contentSizeFlag {
	case 0:
		if int64(len(data)) < pos+1 {
			return 0, false
		}
		return uint64(data[pos]), true
	case 1:
		if int64(len(data)) < pos+2 {
			return 0, false
		}
		return uint64(binary.LittleEndian.Uint16(data[pos:])) + 256, true
	case 2:
		if int64(len(data)) < pos+4 {
			return 0, false
		}
		return uint64(binary.LittleEndian.Uint32(data[pos:])), true
	case 3:
		if int64(len(data)) < pos+8 {
			return 0, false
		}
		return binary.LittleEndian.Uint64(data[pos:]), true
	}
	return 0, false
}
