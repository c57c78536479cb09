package kbdpatch

import (
	"encoding/json"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// ValueKind tags the dynamic shape of a decoded JSON node.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a tagged-variant JSON tree that preserves object field order, so
// the Transformer can rewrite selected fields without disturbing the
// layout's original key ordering (required for stable check-mode hashing,
// per spec.md §4.4 and §9).
type Value struct {
	Kind   ValueKind
	Bool   bool
	Number json.Number
	Str    string
	Arr    []*Value
	Obj    []Field
}

// Field is one key/value pair of an object, in source order.
type Field struct {
	Key   string
	Value *Value
}

// jsonConfig is shared by decode and encode so both sides agree on number
// handling (exact source text, never routed through float64).
var jsonConfig = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeValue parses data into an order-preserving Value tree, walking the
// source with a streaming Iterator rather than jsoniter's default
// map[string]interface{} decoding (which, like encoding/json, does not
// preserve key order). This is the same iterator/producer idiom the Frame
// Scanner uses for lazy byte-level traversal, applied one level up to JSON
// structure.
func DecodeValue(data []byte) (*Value, error) {
	iter := jsoniter.ParseBytes(jsonConfig, data)
	v, err := readValue(iter)
	if err != nil {
		return nil, err
	}
	if iter.Error != nil && iter.Error != io.EOF {
		return nil, iter.Error
	}
	return v, nil
}

func readValue(iter *jsoniter.Iterator) (*Value, error) {
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		return &Value{Kind: KindNull}, nil
	case jsoniter.BoolValue:
		return &Value{Kind: KindBool, Bool: iter.ReadBool()}, nil
	case jsoniter.NumberValue:
		return &Value{Kind: KindNumber, Number: iter.ReadNumber()}, nil
	case jsoniter.StringValue:
		return &Value{Kind: KindString, Str: iter.ReadString()}, nil
	case jsoniter.ArrayValue:
		v := &Value{Kind: KindArray}
		for iter.ReadArray() {
			elem, err := readValue(iter)
			if err != nil {
				return nil, err
			}
			v.Arr = append(v.Arr, elem)
		}
		return v, nil
	case jsoniter.ObjectValue:
		v := &Value{Kind: KindObject}
		for field := iter.ReadObject(); field != ""; field = iter.ReadObject() {
			elem, err := readValue(iter)
			if err != nil {
				return nil, err
			}
			v.Obj = append(v.Obj, Field{Key: field, Value: elem})
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected JSON token of type %d", iter.WhatIsNext())
	}
}

// Get returns the value of the named field, or nil if absent.
func (v *Value) Get(key string) *Value {
	if v == nil || v.Kind != KindObject {
		return nil
	}
	for _, f := range v.Obj {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

// Set replaces (or appends) the named field, preserving the position of an
// existing field and appending new ones at the end.
func (v *Value) Set(key string, val *Value) {
	for i, f := range v.Obj {
		if f.Key == key {
			v.Obj[i].Value = val
			return
		}
	}
	v.Obj = append(v.Obj, Field{Key: key, Value: val})
}

// AsString returns v's string payload and whether v is a KindString node.
func (v *Value) AsString() (string, bool) {
	if v == nil || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// Encode serialises v as compact, deterministic UTF-8 JSON: the same tree
// always produces the same bytes, which is what makes check-mode hashing
// stable (spec.md §4.4, §9).
func Encode(v *Value) ([]byte, error) {
	stream := jsoniter.NewStream(jsonConfig, nil, 4096)
	writeValue(stream, v)
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

func writeValue(stream *jsoniter.Stream, v *Value) {
	if v == nil {
		stream.WriteNil()
		return
	}
	switch v.Kind {
	case KindNull:
		stream.WriteNil()
	case KindBool:
		stream.WriteBool(v.Bool)
	case KindNumber:
		stream.WriteRaw(string(v.Number))
	case KindString:
		stream.WriteString(v.Str)
	case KindArray:
		stream.WriteArrayStart()
		for i, elem := range v.Arr {
			if i != 0 {
				stream.WriteMore()
			}
			writeValue(stream, elem)
		}
		stream.WriteArrayEnd()
	case KindObject:
		stream.WriteObjectStart()
		for i, f := range v.Obj {
			if i != 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(f.Key)
			writeValue(stream, f.Value)
		}
		stream.WriteObjectEnd()
	}
}

// StringValue constructs a leaf string node; a small convenience used
// throughout the Transformer where override content becomes new key text.
func StringValue(s string) *Value { return &Value{Kind: KindString, Str: s} }

// ArrayValue constructs an array node from elements already built.
func ArrayValue(elems ...*Value) *Value { return &Value{Kind: KindArray, Arr: elems} }
