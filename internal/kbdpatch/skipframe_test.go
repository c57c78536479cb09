package kbdpatch

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bytesErr struct {
	tag           uint32
	input         []byte
	expectedBytes []byte
	expectedErr   error
}

func TestCreateSkippableFrame(t *testing.T) {
	t.Parallel()

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)

	for i, tab := range []bytesErr{
		{
			tag:           0x00,
			input:         []byte{},
			expectedBytes: []byte{0x50, 0x2a, 0x4d, 0x18, 0x00, 0x00, 0x00, 0x00},
			expectedErr:   nil,
		}, {
			tag:           0x01,
			input:         []byte{'T'},
			expectedBytes: []byte{0x51, 0x2a, 0x4d, 0x18, 0x01, 0x00, 0x00, 0x00, 'T'},
			expectedErr:   nil,
		}, {
			tag:           0xff,
			input:         []byte{'T'},
			expectedBytes: nil,
			expectedErr:   fmt.Errorf("requested tag (255) > 0xf"),
		},
	} {
		tab := tab
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			t.Parallel()
			actualBytes, err := createSkippableFrame(tab.tag, tab.input)
			if tab.expectedErr != nil {
				require.Error(t, err)
				assert.Equal(t, tab.expectedErr.Error(), err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tab.expectedBytes, actualBytes)

			decoded, err := dec.DecodeAll(actualBytes, nil)
			require.NoError(t, err)
			assert.Equal(t, []byte(nil), decoded)
		})
	}
}

func TestPaddingFrame(t *testing.T) {
	t.Parallel()

	t.Run("zero slack", func(t *testing.T) {
		out, err := paddingFrame(0)
		require.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("slack below minimum", func(t *testing.T) {
		_, err := paddingFrame(4)
		require.Error(t, err)
		assert.Equal(t, KindPaddingTooSmall, errKind(err))
	})

	t.Run("exact header-only slack", func(t *testing.T) {
		out, err := paddingFrame(8)
		require.NoError(t, err)
		assert.Len(t, out, 8)
	})

	t.Run("slack with payload", func(t *testing.T) {
		const slack = 40
		out, err := paddingFrame(slack)
		require.NoError(t, err)
		assert.Len(t, out, slack)

		dec, err := zstd.NewReader(nil)
		require.NoError(t, err)
		decoded, err := dec.DecodeAll(out, nil)
		require.NoError(t, err)
		assert.Empty(t, decoded)
	})
}
