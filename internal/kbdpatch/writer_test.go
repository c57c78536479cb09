package kbdpatch

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderFramePadsToExactCapacity(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"alphabetic":[["q"]],"special":[]}`)

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(3)))
	require.NoError(t, err)
	smallest := enc.EncodeAll(payload, nil)

	capacity := len(smallest) + 20
	frame, level, err := renderFrame(payload, capacity)
	require.NoError(t, err)
	assert.Len(t, frame, capacity)
	assert.Equal(t, 22, level)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	size, err := frameSize(frame)
	require.NoError(t, err)
	decoded, err := dec.DecodeAll(frame[:size], nil)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestRenderFrameExactFitNeedsNoPadding(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"alphabetic":[["q"]],"special":[]}`)
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(22)))
	require.NoError(t, err)
	exact := enc.EncodeAll(payload, nil)

	frame, _, err := renderFrame(payload, len(exact))
	require.NoError(t, err)
	assert.Equal(t, exact, frame)
}

func TestRenderFrameCapacityExceeded(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("abcdefgh"), 4096)
	_, _, err := renderFrame(payload, 4)
	require.Error(t, err)
	assert.Equal(t, KindCapacityExceeded, errKind(err))
}

func TestWriterRestoresOnValidationFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "target.bin")
	original := append([]byte{0x7F, 'E', 'L', 'F'}, bytes.Repeat([]byte{0xAA}, 60)...)
	require.NoError(t, os.WriteFile(path, original, 0o644))

	w, err := OpenWriter(path, "", nil)
	require.NoError(t, err)
	defer w.Close()

	// A frame that does not decode to "expected" trips round-trip
	// validation and must restore the original bytes.
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	frame := enc.EncodeAll([]byte("actual"), nil)

	err = w.WriteFrame(4, frame, []byte("expected"))
	require.Error(t, err)
	assert.Equal(t, KindPostWriteValidation, errKind(err))

	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestOpenWriterWritesBackupOnlyIfAbsent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "target.bin")
	backupPath := filepath.Join(dir, "target.bin.orig")
	original := append([]byte{0x7F, 'E', 'L', 'F'}, bytes.Repeat([]byte{0xAA}, 16)...)
	require.NoError(t, os.WriteFile(path, original, 0o644))

	w, err := OpenWriter(path, backupPath, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	backup, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, original, backup)

	// Simulate the target having since been patched; a second OpenWriter
	// must not clobber the pristine backup with the patched content.
	patched := append([]byte{0x7F, 'E', 'L', 'F'}, bytes.Repeat([]byte{0xBB}, 16)...)
	require.NoError(t, os.WriteFile(path, patched, 0o644))

	w2, err := OpenWriter(path, backupPath, nil)
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	backupAfter, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, original, backupAfter, "existing backup must not be overwritten")
}

func TestOpenWriterRestoresFromExistingBackupBeforePatching(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "target.bin")
	backupPath := filepath.Join(dir, "target.bin.orig")
	pristine := append([]byte{0x7F, 'E', 'L', 'F'}, bytes.Repeat([]byte{0xAA}, 16)...)
	crashed := append([]byte{0x7F, 'E', 'L', 'F'}, bytes.Repeat([]byte{0xCC}, 16)...)

	require.NoError(t, os.WriteFile(backupPath, pristine, 0o644))
	require.NoError(t, os.WriteFile(path, crashed, 0o644))

	w, err := OpenWriter(path, backupPath, nil)
	require.NoError(t, err)
	defer w.Close()

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pristine, onDisk, "a prior run's backup must be restored before any new attempt")
	assert.Equal(t, pristine, w.original)
}
