package kbdpatch

// Replacement is the (new_default, new_shifted) pair the override layout
// supplies for one base-letter position (spec.md §3, §4.4).
type Replacement struct {
	Default string
	Shifted string
}

// LetterMapping maps a lowercase base letter to its override replacement,
// built by walking the base and override layouts' alphabetic rows in
// positional lockstep.
type LetterMapping map[rune]Replacement

// BuildMapping associates base-letter identities from base with the override
// layout's content at the same row/column position. A position contributes
// to the mapping only when the base key has a derivable base letter, is not
// a pure special, and the override at the same position has a usable
// default[0]; every other combination is left out of the mapping so Apply
// leaves that base key untouched, exactly as spec.md §4.4 requires.
func BuildMapping(base, override *Value) (LetterMapping, error) {
	if _, _, ok := rowLetters(base); !ok {
		return nil, wrapf(KindInput, "BuildMapping", "base layout failed structural validation")
	}

	baseAlpha := base.Get("alphabetic")
	overrideAlpha := override.Get("alphabetic")
	if overrideAlpha == nil || overrideAlpha.Kind != KindArray {
		return nil, wrapf(KindInput, "BuildMapping", "override layout failed structural validation")
	}

	mapping := make(LetterMapping)
	for rowIdx := 0; rowIdx < 3; rowIdx++ {
		if rowIdx >= len(overrideAlpha.Arr) {
			break // override has fewer rows than the base; remaining rows left untouched
		}
		baseRow := baseAlpha.Arr[rowIdx]
		overrideRow := overrideAlpha.Arr[rowIdx]
		if baseRow.Kind != KindArray || overrideRow.Kind != KindArray {
			continue
		}
		for pos, baseKey := range baseRow.Arr {
			letter, ok := baseLetter(baseKey)
			if !ok {
				continue // pure special, or no derivable base letter
			}
			if pos >= len(overrideRow.Arr) {
				continue // override has no corresponding column
			}
			def, ok := overrideText(overrideRow.Arr[pos], "default")
			if !ok {
				continue // override lacks default[0]
			}
			shifted, _ := overrideText(overrideRow.Arr[pos], "shifted")
			mapping[letter] = Replacement{Default: def, Shifted: shifted}
		}
	}
	return mapping, nil
}

// overrideText reads the first element of field ("default" or "shifted")
// from an override key, which may be a bare string (read as its own text,
// "default" field only) or an object.
func overrideText(key *Value, field string) (string, bool) {
	switch {
	case key == nil:
		return "", false
	case key.Kind == KindString:
		if field != "default" {
			return "", false
		}
		return key.Str, true
	case key.Kind == KindObject:
		arr := key.Get(field)
		if arr == nil || arr.Kind != KindArray || len(arr.Arr) == 0 {
			return "", false
		}
		return arr.Arr[0].AsString()
	default:
		return "", false
	}
}

// Apply rewrites layout's alphabetic rows in place per the mapping built by
// BuildMapping, preserving every other field (extra alternates, special-key
// metadata, and JSON field order) exactly, per spec.md §4.4.
func Apply(layout *Value, mapping LetterMapping) error {
	alphabetic := layout.Get("alphabetic")
	if alphabetic == nil || alphabetic.Kind != KindArray {
		return wrapf(KindInput, "Apply", "layout has no alphabetic rows")
	}
	for _, row := range alphabetic.Arr {
		if row.Kind != KindArray {
			continue
		}
		for i, key := range row.Arr {
			row.Arr[i] = transformKey(key, mapping)
		}
	}
	return nil
}

// transformKey returns key with its default[0]/shifted[0] replaced per
// mapping, or key unchanged if it has no mapped base letter. shifted[0] is
// only written when the override supplied shifted text; a bare-string key
// with no shifted replacement stays a bare string.
func transformKey(key *Value, mapping LetterMapping) *Value {
	letter, ok := baseLetter(key)
	if !ok {
		return key
	}
	repl, ok := mapping[letter]
	if !ok {
		return key
	}

	switch key.Kind {
	case KindString:
		if repl.Shifted == "" {
			return StringValue(repl.Default)
		}
		return &Value{Kind: KindObject, Obj: []Field{
			{Key: "default", Value: ArrayValue(StringValue(repl.Default))},
			{Key: "shifted", Value: ArrayValue(StringValue(repl.Shifted))},
		}}
	case KindObject:
		setFirstElement(key, "default", repl.Default)
		if repl.Shifted != "" {
			setFirstElement(key, "shifted", repl.Shifted)
		}
		return key
	default:
		return key
	}
}

// setFirstElement sets field[0] := value on key's object, growing field to
// length one if it was absent or empty, and preserving any further indices.
func setFirstElement(key *Value, field, value string) {
	arr := key.Get(field)
	if arr == nil || arr.Kind != KindArray {
		key.Set(field, ArrayValue(StringValue(value)))
		return
	}
	if len(arr.Arr) == 0 {
		arr.Arr = append(arr.Arr, StringValue(value))
		return
	}
	arr.Arr[0] = StringValue(value)
}
