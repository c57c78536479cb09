package kbdpatch

import "unicode"

// RowSignature is the expected base-Latin-letter content of one alphabetic
// row, plus any locale-specific extra letters that should also appear
// somewhere in that row.
type RowSignature struct {
	Letters map[rune]struct{}
	Extras  map[rune]struct{}
}

// LocaleSignature is the structural fingerprint spec.md §3/§4.3 scores
// candidate layouts against: one RowSignature per alphabetic row.
type LocaleSignature struct {
	Locale string
	Rows   [3]RowSignature
}

func runeSet(letters string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(letters))
	for _, r := range letters {
		set[r] = struct{}{}
	}
	return set
}

// signatures is the locale table spec.md §6 says extends as new locales are
// added; today it holds exactly the one required locale.
var signatures = map[string]LocaleSignature{
	"de_DE": {
		Locale: "de_DE",
		Rows: [3]RowSignature{
			{Letters: runeSet("qwertzuiop"), Extras: runeSet("ü")},
			{Letters: runeSet("asdfghjkl"), Extras: runeSet("öä")},
			{Letters: runeSet("yxcvbnm"), Extras: runeSet("")},
		},
	},
}

// Signature looks up a locale's structural signature.
func Signature(locale string) (LocaleSignature, bool) {
	sig, ok := signatures[locale]
	return sig, ok
}

// SupportedLocales lists every locale tag with a registered signature, for
// CLI usage/help text and input validation.
func SupportedLocales() []string {
	out := make([]string, 0, len(signatures))
	for l := range signatures {
		out = append(out, l)
	}
	return out
}

// baseLetter extracts the lowercase-folded base letter of an alphabetic key:
// default[0] if the key is an object, or the key's own text if it's a bare
// string. ok is false for keys with no usable letter (e.g. pure specials).
func baseLetter(key *Value) (r rune, ok bool) {
	var s string
	switch {
	case key == nil:
		return 0, false
	case key.Kind == KindString:
		s = key.Str
	case key.Kind == KindObject:
		if special := key.Get("special"); special != nil {
			return 0, false
		}
		def := key.Get("default")
		if def == nil || def.Kind != KindArray || len(def.Arr) == 0 {
			return 0, false
		}
		first, isStr := def.Arr[0].AsString()
		if !isStr || first == "" {
			return 0, false
		}
		s = first
	default:
		return 0, false
	}
	runes := []rune(s)
	if len(runes) == 0 {
		return 0, false
	}
	return unicode.ToLower(runes[0]), true
}

// rowLetters is the gate of spec.md §4.3 step 1/2: it requires alphabetic
// to be an array of exactly 3 non-empty rows and extracts each row's
// observed base letters, or ok=false if the structural gate fails.
func rowLetters(layout *Value) (rows [3]map[rune]struct{}, special *Value, ok bool) {
	if layout == nil || layout.Kind != KindObject {
		return rows, nil, false
	}
	alphabetic := layout.Get("alphabetic")
	special = layout.Get("special")
	if alphabetic == nil || alphabetic.Kind != KindArray || len(alphabetic.Arr) != 3 {
		return rows, nil, false
	}
	if special == nil || special.Kind != KindArray {
		return rows, nil, false
	}
	for i, row := range alphabetic.Arr {
		if row.Kind != KindArray || len(row.Arr) == 0 {
			return rows, nil, false
		}
		set := make(map[rune]struct{})
		for _, key := range row.Arr {
			if r, ok := baseLetter(key); ok {
				set[r] = struct{}{}
			}
		}
		rows[i] = set
	}
	return rows, special, true
}

// Score computes the spec.md §4.3 signature score for layout against sig.
// The weights are implementation-defined (per spec.md §4.3/§9) but honor
// the required property: a fully matching layout scores strictly higher
// than any layout missing two or more expected row letters. A matching
// letter scores +2, a present locale-extra scores +3, and a missing
// expected letter costs -1; since every row has at least a handful of
// expected letters, two misses (-2) can never catch up to the +2 a single
// additional correct letter elsewhere would have contributed, which keeps
// that invariant comfortably true rather than on a knife's edge.
func Score(layout *Value, sig LocaleSignature) (score int, ok bool) {
	rows, _, gateOK := rowLetters(layout)
	if !gateOK {
		return 0, false
	}

	matchedRows := 0
	extrasPresent := 0
	for i, row := range sig.Rows {
		observed := rows[i]
		rowMatched := 0
		for letter := range row.Letters {
			if _, present := observed[letter]; present {
				score += 2
				rowMatched++
			} else {
				score--
			}
		}
		for extra := range row.Extras {
			if _, present := observed[extra]; present {
				score += 3
				extrasPresent++
			}
		}
		if rowMatched > 0 {
			matchedRows++
		}
	}

	// Minimum acceptance rule from spec.md §4.3: every row contributes at
	// least one expected letter, and at least one locale-extra is present.
	if matchedRows < 3 || extrasPresent < 1 {
		return score, false
	}
	return score, true
}
