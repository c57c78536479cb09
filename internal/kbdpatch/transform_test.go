package kbdpatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseLayoutForTransform(t *testing.T) *Value {
	t.Helper()
	v, err := DecodeValue([]byte(`{
		"alphabetic":[
			["q","w","e","r","t","z","u","i","o","p"],
			[{"default":["a"],"shifted":["A"]},"s","d","f","g","h","j","k","l"],
			["y","x","c","v",{"special":"mic"},"n","m"]
		],
		"special":["caps","backspace"]
	}`))
	require.NoError(t, err)
	return v
}

func TestBuildMappingAndApplyPreservesOtherFields(t *testing.T) {
	t.Parallel()

	base := baseLayoutForTransform(t)
	override, err := DecodeValue([]byte(`{
		"alphabetic":[
			["q","w","e","r","t","z","u","i","o","p"],
			[{"default":["נ"],"shifted":["ן"]},"s","d","f","g","h","j","k","l"],
			["y","x","c","v","b","n","m"]
		],
		"special":[]
	}`))
	require.NoError(t, err)

	mapping, err := BuildMapping(base, override)
	require.NoError(t, err)

	require.NoError(t, Apply(base, mapping))

	row2 := base.Get("alphabetic").Arr[1]
	key := row2.Arr[0]
	require.Equal(t, KindObject, key.Kind)
	def, ok := key.Get("default").Arr[0].AsString()
	require.True(t, ok)
	assert.Equal(t, "נ", def)
	shifted, ok := key.Get("shifted").Arr[0].AsString()
	require.True(t, ok)
	assert.Equal(t, "ן", shifted)

	// Untouched key (row2, position 1, letter 's') must be structurally
	// unchanged: still a bare string "s".
	assert.Equal(t, KindString, row2.Arr[1].Kind)
	assert.Equal(t, "s", row2.Arr[1].Str)

	// Special key in row3 is left alone entirely.
	row3 := base.Get("alphabetic").Arr[2]
	assert.Equal(t, KindObject, row3.Arr[4].Kind)
	assert.NotNil(t, row3.Arr[4].Get("special"))
}

func TestBuildMappingSkipsMissingOverridePositions(t *testing.T) {
	t.Parallel()

	base := baseLayoutForTransform(t)
	override, err := DecodeValue([]byte(`{"alphabetic":[["q"]],"special":[]}`))
	require.NoError(t, err)

	mapping, err := BuildMapping(base, override)
	require.NoError(t, err)
	assert.Len(t, mapping, 1)
	_, ok := mapping['q']
	assert.True(t, ok)
}

func TestApplyTurnsBareStringIntoObjectWhenMapped(t *testing.T) {
	t.Parallel()

	base := baseLayoutForTransform(t)
	mapping := LetterMapping{'q': {Default: "ü", Shifted: "Ü"}}
	require.NoError(t, Apply(base, mapping))

	key := base.Get("alphabetic").Arr[0].Arr[0]
	require.Equal(t, KindObject, key.Kind)
	def, _ := key.Get("default").Arr[0].AsString()
	assert.Equal(t, "ü", def)
	shifted, _ := key.Get("shifted").Arr[0].AsString()
	assert.Equal(t, "Ü", shifted)
}
