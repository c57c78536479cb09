package kbdpatch

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Target holds the resolved base layout this run will patch.
type Target struct {
	Offset        int64
	CompressedLen int64
	Base          *Value
}

// locate runs the Scanner, Decoder, and Identifier in sequence and returns
// the winning frame for locale, or a taxonomy error.
func locate(ctx context.Context, data []byte, locale string, opts *Options) (Target, error) {
	candidates := ScanAll(data)
	opts.Logger.Debug("scan complete", zap.Int("candidates", len(candidates)))
	if ce := opts.Logger.Check(zap.DebugLevel, "frame map"); ce != nil {
		idx := NewFrameIndexFromCandidates(candidates)
		opts.Logger.Debug("frame map", zap.Int("indexed", idx.Len()))
		idx.Ascend(func(c Candidate) bool {
			opts.Logger.Debug("frame candidate", zap.Int64("offset", c.Offset), zap.Int("kind", int(c.Kind)))
			return true
		})
	}

	frames, err := DecodeCandidates(ctx, data, candidates, opts.SafetyCap, opts.Concurrency)
	if err != nil {
		return Target{}, wrap(KindIO, "locate", err)
	}
	opts.Logger.Debug("decode complete", zap.Int("json-frames", len(frames)))
	if len(frames) == 0 {
		return Target{}, wrap(KindNoCandidates, "locate", errNoCandidates)
	}

	winner, err := Identify(frames, locale)
	if err != nil {
		return Target{}, err
	}
	opts.Logger.Debug("identified layout",
		zap.Int64("offset", winner.Offset), zap.Int64("compressed-len", winner.CompressedLen))

	return Target{Offset: winner.Offset, CompressedLen: winner.CompressedLen, Base: winner.Decoded}, nil
}

// renderTransformed builds the transformed layout for target using the
// override bytes, returning both the transformed Value and its canonical
// JSON encoding (the input to recompression and to check-mode comparison).
func renderTransformed(target Target, overrideBytes []byte) (*Value, []byte, error) {
	override, err := DecodeValue(overrideBytes)
	if err != nil {
		return nil, nil, wrap(KindInput, "renderTransformed", fmt.Errorf("override JSON: %w", err))
	}
	if override.Kind != KindObject {
		return nil, nil, wrapf(KindInput, "renderTransformed", "override JSON is not an object")
	}

	mapping, err := BuildMapping(target.Base, override)
	if err != nil {
		return nil, nil, err
	}

	transformed := cloneValue(target.Base)
	if err := Apply(transformed, mapping); err != nil {
		return nil, nil, err
	}

	encoded, err := Encode(transformed)
	if err != nil {
		return nil, nil, wrap(KindIO, "renderTransformed", err)
	}
	return transformed, encoded, nil
}

// cloneValue deep-copies v so Apply can mutate the copy without disturbing
// the decoded-from-disk original (needed because check mode re-derives the
// transform from the same base on every invocation).
func cloneValue(v *Value) *Value {
	if v == nil {
		return nil
	}
	out := &Value{Kind: v.Kind, Bool: v.Bool, Number: v.Number, Str: v.Str}
	if v.Arr != nil {
		out.Arr = make([]*Value, len(v.Arr))
		for i, e := range v.Arr {
			out.Arr[i] = cloneValue(e)
		}
	}
	if v.Obj != nil {
		out.Obj = make([]Field, len(v.Obj))
		for i, f := range v.Obj {
			out.Obj[i] = Field{Key: f.Key, Value: cloneValue(f.Value)}
		}
	}
	return out
}

// Result summarises a completed Apply run for CLI reporting.
type Result struct {
	Offset        int64
	CompressedLen int64
	Level         int
	Hash          ContentHash
}

// ApplyPatch runs the full patch pipeline against targetPath: locate,
// transform, recompress, and write in place.
func ApplyPatch(ctx context.Context, targetPath string, overrideBytes []byte, locale string, opts *Options) (Result, error) {
	data, err := os.ReadFile(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, wrap(KindTargetMissing, "Apply", err)
		}
		return Result{}, wrap(KindIO, "Apply", err)
	}

	w, err := OpenWriter(targetPath, opts.BackupPath, opts.Logger)
	if err != nil {
		return Result{}, err
	}
	defer w.Close()
	// OpenWriter may have restored the target from an existing backup, so
	// locate against the contents the file holds now.
	data = w.original

	target, err := locate(ctx, data, locale, opts)
	if err != nil {
		return Result{}, err
	}

	_, encoded, err := renderTransformed(target, overrideBytes)
	if err != nil {
		return Result{}, err
	}

	frame, level, err := renderFrame(encoded, int(target.CompressedLen))
	if err != nil {
		return Result{}, err
	}
	opts.Logger.Info("recompressed", zap.Int("bytes", len(frame)), zap.Int64("capacity", target.CompressedLen))

	if err := w.WriteFrame(target.Offset, frame, encoded); err != nil {
		return Result{}, err
	}

	patched, err := os.ReadFile(targetPath)
	if err != nil {
		return Result{}, wrap(KindIO, "Apply", err)
	}

	return Result{
		Offset:        target.Offset,
		CompressedLen: target.CompressedLen,
		Level:         level,
		Hash:          HashContent(patched),
	}, nil
}

// CheckStatus is the outcome of CheckPatch; the CLI turns each status into
// its exit code (0 already patched, 2 needs patch).
type CheckStatus int

const (
	StatusAlreadyPatched CheckStatus = iota
	StatusNeedsPatch
)

// CheckPatch runs the read-only half of the pipeline (locate + transform, no
// recompression or write) and compares the transform's target bytes against
// what the currently installed frame already decodes to.
func CheckPatch(ctx context.Context, targetPath string, overrideBytes []byte, locale string, opts *Options) (CheckStatus, error) {
	data, err := os.ReadFile(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, wrap(KindTargetMissing, "Check", err)
		}
		return 0, wrap(KindIO, "Check", err)
	}

	target, err := locate(ctx, data, locale, opts)
	if err != nil {
		return 0, err
	}

	_, wantEncoded, err := renderTransformed(target, overrideBytes)
	if err != nil {
		return 0, err
	}

	haveEncoded, err := Encode(target.Base)
	if err != nil {
		return 0, wrap(KindIO, "Check", err)
	}

	if string(haveEncoded) == string(wantEncoded) {
		return StatusAlreadyPatched, nil
	}
	return StatusNeedsPatch, nil
}
