package kbdpatch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// compressionLevels is the level ladder from spec.md §4.5, tried highest
// ratio first so the smallest frame (most padding room) wins when it fits.
var compressionLevels = []int{22, 19, 15, 11, 7, 3}

// renderFrame compresses payload at the first level (in compressionLevels
// order) whose resulting frame either fills capacity exactly or leaves at
// least the 8 bytes a padding frame needs, and pads it up to capacity. It is
// a pure function of its inputs: no I/O, so it is cheap to exercise directly
// in tests.
func renderFrame(payload []byte, capacity int) (frame []byte, level int, err error) {
	for _, lvl := range compressionLevels {
		enc, encErr := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(lvl)))
		if encErr != nil {
			return nil, 0, wrap(KindIO, "renderFrame", encErr)
		}
		compressed := enc.EncodeAll(payload, nil)
		_ = enc.Close()

		slack := capacity - len(compressed)
		if slack < 0 {
			continue
		}
		if slack == 0 {
			return compressed, lvl, nil
		}
		if slack < skippableFrameHeaderLen {
			continue
		}
		padding, padErr := paddingFrame(slack)
		if padErr != nil {
			continue
		}
		return append(compressed, padding...), lvl, nil
	}
	return nil, 0, wrapf(KindCapacityExceeded, "renderFrame",
		"no compression level produced a frame fitting the %d-byte capacity", capacity)
}

// Writer performs the In-Place Writer's backup/write/validate/restore
// sequence (spec.md §4.5). It is single-use: Close (success or failure)
// marks it closed, and a second Close is a no-op, following the teacher's
// atomic.Bool closed-flag guard idiom.
type Writer struct {
	path       string
	file       *os.File
	backupPath string
	original   []byte
	closed     atomic.Bool
	logger     *zap.Logger
}

// OpenWriter opens path for in-place read/write. If backupPath is non-empty
// and no backup exists yet, the current contents are copied there before any
// mutation (spec.md §4.5, §6: "if absent"). If a backup already exists, that
// means a prior run may have crashed mid-write, so the target is first
// restored to the pristine backup content before this run does anything new
// (spec.md §5's crash-recovery requirement) — a second `apply` therefore
// never takes an already-patched file as its new "original".
func OpenWriter(path, backupPath string, logger *zap.Logger) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, wrap(KindIO, "OpenWriter", err)
	}

	var original []byte
	if backupPath == "" {
		original, err = io.ReadAll(f)
		if err != nil {
			_ = f.Close()
			return nil, wrap(KindIO, "OpenWriter", err)
		}
		return &Writer{path: path, file: f, backupPath: backupPath, original: original, logger: logger}, nil
	}

	backup, err := os.ReadFile(backupPath)
	switch {
	case err == nil:
		if _, werr := f.WriteAt(backup, 0); werr != nil {
			_ = f.Close()
			return nil, wrap(KindIO, "OpenWriter", fmt.Errorf("restoring from existing backup: %w", werr))
		}
		if serr := f.Sync(); serr != nil {
			_ = f.Close()
			return nil, wrap(KindIO, "OpenWriter", fmt.Errorf("restoring from existing backup: %w", serr))
		}
		if logger != nil {
			logger.Info("restored target from existing backup before patching", zap.String("backup", backupPath))
		}
		original = backup
	case os.IsNotExist(err):
		original, err = io.ReadAll(f)
		if err != nil {
			_ = f.Close()
			return nil, wrap(KindIO, "OpenWriter", err)
		}
		if werr := os.WriteFile(backupPath, original, 0o644); werr != nil {
			_ = f.Close()
			return nil, wrap(KindIO, "OpenWriter", fmt.Errorf("writing backup: %w", werr))
		}
	default:
		_ = f.Close()
		return nil, wrap(KindIO, "OpenWriter", fmt.Errorf("reading backup: %w", err))
	}

	return &Writer{
		path:       path,
		file:       f,
		backupPath: backupPath,
		original:   original,
		logger:     logger,
	}, nil
}

// WriteFrame writes frame at offset, fsyncs, and validates spec.md §4.5's
// post-write invariants on the region re-read from the file: the
// decompressed result round-trips to expected, the frame plus its trailing
// skippable padding span exactly len(frame) bytes, the file length is
// unchanged, and the file still begins with the ELF magic. Any validation
// failure restores the original bytes at offset before returning.
func (w *Writer) WriteFrame(offset int64, frame []byte, expected []byte) (err error) {
	if w.closed.Load() {
		return wrap(KindIO, "WriteFrame", fmt.Errorf("writer already closed"))
	}

	if _, err := w.file.WriteAt(frame, offset); err != nil {
		return wrap(KindIO, "WriteFrame", err)
	}
	if err := w.file.Sync(); err != nil {
		return wrap(KindIO, "WriteFrame", err)
	}

	if verr := w.validate(offset, frame, expected); verr != nil {
		restoreErr := w.restore(offset)
		return wrap(KindPostWriteValidation, "WriteFrame", multierr.Append(verr, restoreErr))
	}
	return nil
}

func (w *Writer) validate(offset int64, frame, expected []byte) error {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return err
	}
	defer dec.Close()

	written := make([]byte, len(frame))
	if _, err := w.file.ReadAt(written, offset); err != nil {
		return fmt.Errorf("re-reading written region: %w", err)
	}
	size, err := frameSize(written)
	if err != nil {
		return fmt.Errorf("re-reading written frame header: %w", err)
	}
	if pad := written[size:]; len(pad) > 0 {
		if len(pad) < skippableFrameHeaderLen || pad[0]&0xF0 != 0x50 ||
			!bytes.Equal(pad[1:4], skippableFrameMagicLow[:]) ||
			int(binary.LittleEndian.Uint32(pad[4:8])) != len(pad)-skippableFrameHeaderLen {
			return fmt.Errorf("bytes after the written frame are not one skippable frame filling the span")
		}
	}
	decoded, err := dec.DecodeAll(written[:size], nil)
	if err != nil {
		return fmt.Errorf("re-decompressing written frame: %w", err)
	}
	if string(decoded) != string(expected) {
		return fmt.Errorf("round-tripped payload does not match intended content")
	}

	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() != int64(len(w.original)) {
		return fmt.Errorf("file length changed: %d -> %d", len(w.original), info.Size())
	}

	magic := make([]byte, 4)
	if _, err := w.file.ReadAt(magic, 0); err != nil {
		return fmt.Errorf("reading ELF magic: %w", err)
	}
	if !isELFMagic(magic) {
		return fmt.Errorf("target no longer begins with ELF magic after write")
	}
	return nil
}

func (w *Writer) restore(offset int64) error {
	if _, err := w.file.WriteAt(w.original[offset:], offset); err != nil {
		return fmt.Errorf("restoring original bytes: %w", err)
	}
	return w.file.Sync()
}

var elfMagic = [4]byte{0x7F, 0x45, 0x4C, 0x46}

func isELFMagic(b []byte) bool {
	return len(b) == 4 && b[0] == elfMagic[0] && b[1] == elfMagic[1] && b[2] == elfMagic[2] && b[3] == elfMagic[3]
}

// Close releases the underlying file handle. Safe to call multiple times.
func (w *Writer) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	return w.file.Close()
}
