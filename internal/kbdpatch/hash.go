package kbdpatch

import (
	"crypto/sha512"
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// ContentHash is the pair of digests ApplyPatch reports for the patched
// binary: a fast xxhash64 and a sha512/256. Check mode does not use them; it
// compares encoded layout JSON directly.
type ContentHash struct {
	XXH64     uint64
	SHA512256 string
}

// HashContent computes both digests of data.
func HashContent(data []byte) ContentHash {
	sum := sha512.Sum512_256(data)
	return ContentHash{
		XXH64:     xxhash.Sum64(data),
		SHA512256: hex.EncodeToString(sum[:]),
	}
}
