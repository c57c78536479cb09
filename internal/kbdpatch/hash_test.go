package kbdpatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashContentIsDeterministic(t *testing.T) {
	t.Parallel()

	data := []byte("the quick brown fox")
	a := HashContent(data)
	b := HashContent(data)

	assert.Equal(t, a, b)
	assert.NotZero(t, a.XXH64)
	assert.Len(t, a.SHA512256, 64)
}
