package kbdpatch

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
)

// DefaultSafetyCap is the maximum decompressed size the Decoder accepts for
// a candidate before JSON parsing. The same bound is applied to the
// compressed frame span before decompressing, guarding against runaway
// allocation if the Scanner hands it a magic match that isn't really a
// frame boundary.
const DefaultSafetyCap = 8 << 20 // 8 MiB

// Frame is a candidate that decoded to a JSON object, ready for signature
// scoring.
type Frame struct {
	Offset        int64
	CompressedLen int64
	Decoded       *Value
}

var decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))

// decodeCandidate resolves a single Scanner candidate into either a Frame or
// a reason it was rejected. Rejection is not an error: most magic matches in
// a multi-megabyte binary are incidental byte coincidences, not real frames.
func decodeCandidate(data []byte, c Candidate, safetyCap int) (*Frame, string) {
	if c.Kind != MagicStandard {
		return nil, "not a standard frame"
	}
	if int(c.Offset) >= len(data) {
		return nil, "offset out of range"
	}
	span := data[c.Offset:]

	size, err := frameSize(span)
	if err != nil {
		return nil, fmt.Sprintf("not-zstd: %v", err)
	}
	if size > int64(safetyCap) {
		return nil, fmt.Sprintf("frame span %d exceeds safety cap %d", size, safetyCap)
	}
	if size > int64(len(span)) {
		return nil, "truncated"
	}

	frameBytes := span[:size]

	// Presize the decode destination from the frame header's own content-size
	// field when present, bounded by safetyCap so a bogus header can't force
	// a runaway allocation; DecodeAll still grows dst if the hint is short.
	var dst []byte
	if hint, ok := decodedSizeHint(frameBytes); ok && hint > 0 && hint <= uint64(safetyCap) {
		dst = make([]byte, 0, hint)
	}
	decoded, err := decoder.DecodeAll(frameBytes, dst)
	if err != nil {
		return nil, fmt.Sprintf("decode-error: %v", err)
	}
	if len(decoded) > safetyCap {
		return nil, fmt.Sprintf("decoded size %d exceeds safety cap %d", len(decoded), safetyCap)
	}

	if !utf8.Valid(decoded) {
		return nil, "not-utf8"
	}

	value, err := DecodeValue(decoded)
	if err != nil {
		return nil, fmt.Sprintf("not-json: %v", err)
	}
	if value.Kind != KindObject {
		return nil, "not-json: top-level value is not an object"
	}

	return &Frame{
		Offset:        c.Offset,
		CompressedLen: size,
		Decoded:       value,
	}, ""
}

// DecodeCandidates resolves every scanner candidate concurrently, sized to
// concurrency, and returns only the ones that decoded to a JSON object.
// Rejections are not propagated as errors; only a decoder/allocator failure
// distinct from a normal "this wasn't really a frame" outcome aborts the
// group, and today every rejection path above is of the latter kind, so
// DecodeCandidates never actually returns a non-nil error — the return is
// kept for symmetry with the rest of the pipeline and in case a future
// rejection reason needs to be promoted to fatal.
func DecodeCandidates(ctx context.Context, data []byte, candidates []Candidate, safetyCap, concurrency int) ([]Frame, error) {
	if safetyCap <= 0 {
		safetyCap = DefaultSafetyCap
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	frames := make([]*Frame, len(candidates))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			frame, _ := decodeCandidate(data, c, safetyCap)
			frames[i] = frame
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Frame, 0, len(frames))
	for _, f := range frames {
		if f != nil {
			out = append(out, *f)
		}
	}
	return out, nil
}
