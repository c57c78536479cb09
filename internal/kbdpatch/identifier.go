package kbdpatch

import (
	"github.com/google/btree"
)

// scoredFrame pairs a decoded Frame with its signature score, ordered
// (score desc, offset asc) so the btree's in-order traversal yields the
// winning candidate first and ties resolve deterministically to the
// earliest offset in the file.
type scoredFrame struct {
	Frame Frame
	Score int
}

func (s scoredFrame) Less(than btree.Item) bool {
	o := than.(scoredFrame)
	if s.Score != o.Score {
		return s.Score > o.Score
	}
	return s.Frame.Offset < o.Frame.Offset
}

// Identify scores every decoded frame against locale's signature and
// returns the best-scoring one, or a KindNoMatch/KindNoCandidates
// PatchError (spec.md §4.3, §7).
func Identify(frames []Frame, locale string) (Frame, error) {
	sig, ok := Signature(locale)
	if !ok {
		return Frame{}, wrapf(KindInput, "Identify", "unknown locale %q", locale)
	}
	if len(frames) == 0 {
		return Frame{}, wrap(KindNoCandidates, "Identify", errNoCandidates)
	}

	tree := btree.New(8)
	accepted := 0
	for _, f := range frames {
		score, ok := Score(f.Decoded, sig)
		if !ok {
			continue
		}
		tree.ReplaceOrInsert(scoredFrame{Frame: f, Score: score})
		accepted++
	}
	if accepted == 0 {
		return Frame{}, wrap(KindNoMatch, "Identify", errNoMatch)
	}

	var winner scoredFrame
	tree.Ascend(func(i btree.Item) bool {
		winner = i.(scoredFrame)
		return false
	})
	return winner.Frame, nil
}
