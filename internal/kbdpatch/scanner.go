package kbdpatch

import (
	"github.com/google/btree"
)

// MagicKind identifies which of the two Zstandard magic families matched at
// a given offset.
type MagicKind int

const (
	// MagicStandard is a regular Zstandard compressed frame: 28 B5 2F FD.
	MagicStandard MagicKind = iota
	// MagicSkippable is a Zstandard skippable frame: 50..5F 2A 4D 18.
	MagicSkippable
)

// standardFrameMagic is the little-endian encoding of 0xFD2FB528, i.e. the
// on-disk byte sequence 28 B5 2F FD.
var standardFrameMagic = [4]byte{0x28, 0xB5, 0x2F, 0xFD}

// skippableFrameMagicLow is the fixed three trailing bytes of every member
// of the skippable-frame magic family; the leading byte's low nibble is the
// variable tag (0x0-0xF).
var skippableFrameMagicLow = [3]byte{0x2A, 0x4D, 0x18}

// Candidate is a single potential frame start found by the Scanner.
type Candidate struct {
	Offset int64
	Kind   MagicKind
}

func (c Candidate) Less(than btree.Item) bool {
	return c.Offset < than.(Candidate).Offset
}

// Scan walks data once, testing both magic families at every offset, and
// passes every match to visit in ascending offset order, stopping early if
// visit returns false. Overlapping matches are
// permitted and the scanner does not attempt to validate frame structure;
// that is the Decoder's job.
//
// Scan is the lazy-sequence "producer" the design notes call for: in Go,
// without generators, that is most naturally an iterator-style callback, so
// Scan takes a visit function instead of building the full slice up front.
// ScanAll is provided for callers that want the materialized slice.
func Scan(data []byte, visit func(Candidate) (more bool)) {
	n := len(data)
	for i := 0; i < n; i++ {
		if i+4 <= n &&
			data[i] == standardFrameMagic[0] && data[i+1] == standardFrameMagic[1] &&
			data[i+2] == standardFrameMagic[2] && data[i+3] == standardFrameMagic[3] {
			if !visit(Candidate{Offset: int64(i), Kind: MagicStandard}) {
				return
			}
			continue
		}
		if i+4 <= n &&
			(data[i]&0xF0) == 0x50 &&
			data[i+1] == skippableFrameMagicLow[0] && data[i+2] == skippableFrameMagicLow[1] && data[i+3] == skippableFrameMagicLow[2] {
			if !visit(Candidate{Offset: int64(i), Kind: MagicSkippable}) {
				return
			}
		}
	}
}

// ScanAll materializes every candidate Scan would visit.
func ScanAll(data []byte) []Candidate {
	var out []Candidate
	Scan(data, func(c Candidate) bool {
		out = append(out, c)
		return true
	})
	return out
}

// FrameIndex is an ascending-offset index of every candidate found during a
// scan, built for the --verbose frame-map dump (locate logs it via
// NewFrameIndexFromCandidates).
type FrameIndex struct {
	tree *btree.BTree
}

// NewFrameIndex scans data and indexes every candidate by offset.
func NewFrameIndex(data []byte) *FrameIndex {
	return NewFrameIndexFromCandidates(ScanAll(data))
}

// NewFrameIndexFromCandidates indexes an already-scanned candidate set,
// avoiding a second pass over data when the caller already has candidates.
func NewFrameIndexFromCandidates(candidates []Candidate) *FrameIndex {
	t := btree.New(8)
	for _, c := range candidates {
		t.ReplaceOrInsert(c)
	}
	return &FrameIndex{tree: t}
}

// Len returns the number of indexed candidates.
func (f *FrameIndex) Len() int {
	if f == nil || f.tree == nil {
		return 0
	}
	return f.tree.Len()
}

// Ascend visits every candidate in ascending offset order.
func (f *FrameIndex) Ascend(visit func(Candidate) bool) {
	if f == nil || f.tree == nil {
		return
	}
	f.tree.Ascend(func(i btree.Item) bool {
		return visit(i.(Candidate))
	})
}
