package kbdpatch

import (
	"context"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFixture(t *testing.T, prefix int, payload []byte, suffix int) ([]byte, int64) {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(payload, nil)

	data := make([]byte, 0, prefix+len(compressed)+suffix)
	data = append(data, make([]byte, prefix)...)
	offset := int64(len(data))
	data = append(data, compressed...)
	data = append(data, make([]byte, suffix)...)
	return data, offset
}

func TestDecodeCandidatesKeepsOnlyJSONObjects(t *testing.T) {
	t.Parallel()

	data, offset := buildFixture(t, 256, []byte(`{"alphabetic":[["q"]],"special":[]}`), 256)

	// Plant a second, non-JSON frame elsewhere so the decoder must discard it.
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	junkCompressed := enc.EncodeAll([]byte(`not json at all`), nil)
	junkOffset := int64(len(data))
	data = append(data, junkCompressed...)

	candidates := []Candidate{
		{Offset: offset, Kind: MagicStandard},
		{Offset: junkOffset, Kind: MagicStandard},
	}

	frames, err := DecodeCandidates(context.Background(), data, candidates, DefaultSafetyCap, 2)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, offset, frames[0].Offset)
}

func TestDecodeCandidatesRejectsOversizedFrame(t *testing.T) {
	t.Parallel()

	data, offset := buildFixture(t, 0, []byte(`{"alphabetic":[["q"]],"special":[]}`), 0)
	candidates := []Candidate{{Offset: offset, Kind: MagicStandard}}

	frames, err := DecodeCandidates(context.Background(), data, candidates, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, frames)
}
