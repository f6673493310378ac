package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "invalid"
	}
}

// Value is the universal in-memory representation of a structured record:
// a tagged variant over null, bool, number, string, ordered-key object and
// array. Object keys are unique and insertion order is preserved, which is
// why this exists instead of map[string]interface{}. Number text is kept
// verbatim so round-tripping never changes precision.
type Value struct {
	kind    Kind
	boolVal bool
	numVal  string
	strVal  string
	keys    []string
	fields  map[string]*Value
	elems   []*Value
}

// Null returns a null value.
func Null() *Value { return &Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) *Value { return &Value{kind: KindBool, boolVal: b} }

// Number returns a number value holding the given JSON number text.
func Number(text string) *Value { return &Value{kind: KindNumber, numVal: text} }

// Int returns a number value for n.
func Int(n int64) *Value { return Number(strconv.FormatInt(n, 10)) }

// String returns a string value.
func String(s string) *Value { return &Value{kind: KindString, strVal: s} }

// NewObject returns an empty ordered object.
func NewObject() *Value {
	return &Value{kind: KindObject, fields: make(map[string]*Value)}
}

// NewArray returns an empty array.
func NewArray() *Value { return &Value{kind: KindArray} }

// Kind returns the variant tag.
func (v *Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v *Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload.
func (v *Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolVal, true
}

// AsString returns the string payload.
func (v *Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.strVal, true
}

// NumberText returns the raw number text.
func (v *Value) NumberText() (string, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return v.numVal, true
}

// AsInt64 returns the number as an int64 when it has integer form.
func (v *Value) AsInt64() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	n, err := strconv.ParseInt(v.numVal, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// AsFloat64 returns the number as a float64.
func (v *Value) AsFloat64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.numVal, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Set inserts or replaces a field on an object. A replaced key keeps its
// original position. Set panics if v is not an object; objects are only
// built by code that just created one.
func (v *Value) Set(key string, val *Value) {
	if v.kind != KindObject {
		panic("model: Set on non-object value")
	}
	if val == nil {
		val = Null()
	}
	if _, exists := v.fields[key]; !exists {
		v.keys = append(v.keys, key)
	}
	v.fields[key] = val
}

// Get returns the field for key. The second result distinguishes an absent
// key from a key present with a null value.
func (v *Value) Get(key string) (*Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	val, ok := v.fields[key]
	return val, ok
}

// Keys returns the object's keys in insertion order.
func (v *Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Append adds an element to an array.
func (v *Value) Append(val *Value) {
	if v.kind != KindArray {
		panic("model: Append on non-array value")
	}
	if val == nil {
		val = Null()
	}
	v.elems = append(v.elems, val)
}

// Index returns the i-th array element.
func (v *Value) Index(i int) *Value {
	if v.kind != KindArray || i < 0 || i >= len(v.elems) {
		return nil
	}
	return v.elems[i]
}

// Len returns the number of fields or elements.
func (v *Value) Len() int {
	switch v.kind {
	case KindObject:
		return len(v.keys)
	case KindArray:
		return len(v.elems)
	default:
		return 0
	}
}

// ParseJSON decodes a single JSON value, preserving object key order and
// number text. Trailing non-whitespace after the value is an error.
func ParseJSON(text string) (*Value, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (*Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			arr := NewArray()
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr.Append(val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t.String())
		}
	case string:
		return String(t), nil
	case json.Number:
		return Number(t.String()), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

// EncodeJSON renders the value as compact JSON, object keys in insertion
// order.
func (v *Value) EncodeJSON() string {
	var sb strings.Builder
	v.encode(&sb)
	return sb.String()
}

// MarshalJSON implements json.Marshaler.
func (v *Value) MarshalJSON() ([]byte, error) {
	return []byte(v.EncodeJSON()), nil
}

func (v *Value) encode(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.boolVal))
	case KindNumber:
		sb.WriteString(v.numVal)
	case KindString:
		writeJSONString(sb, v.strVal)
	case KindObject:
		sb.WriteByte('{')
		for i, key := range v.keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSONString(sb, key)
			sb.WriteByte(':')
			v.fields[key].encode(sb)
		}
		sb.WriteByte('}')
	case KindArray:
		sb.WriteByte('[')
		for i, el := range v.elems {
			if i > 0 {
				sb.WriteByte(',')
			}
			el.encode(sb)
		}
		sb.WriteByte(']')
	}
}

func writeJSONString(sb *strings.Builder, s string) {
	// encoding/json handles all escaping rules; strings never fail.
	b, _ := json.Marshal(s)
	sb.Write(b)
}

// Equal reports structural equality, including object key order.
func (v *Value) Equal(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolVal == other.boolVal
	case KindNumber:
		return v.numVal == other.numVal
	case KindString:
		return v.strVal == other.strVal
	case KindObject:
		if len(v.keys) != len(other.keys) {
			return false
		}
		for i, key := range v.keys {
			if other.keys[i] != key {
				return false
			}
			if !v.fields[key].Equal(other.fields[key]) {
				return false
			}
		}
		return true
	case KindArray:
		if len(v.elems) != len(other.elems) {
			return false
		}
		for i, el := range v.elems {
			if !el.Equal(other.elems[i]) {
				return false
			}
		}
		return true
	}
	return false
}
