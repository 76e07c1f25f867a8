package repository

import (
	"encoding/json"
	"fmt"
)

// Kind is the dynamic type of a stored toggle value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindStructured // JSON object or array
)

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
	case KindStructured:
		return "structured"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Value is a schema-less toggle value narrowed at lookup time.
// The zero value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	doc  any // map[string]any or []any
}

// BoolValue, NumberValue, StringValue and StructuredValue build a Value of the matching kind.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

func NumberValue(n float64) Value { return Value{kind: KindNumber, n: n} }

func StringValue(s string) Value { return Value{kind: KindString, s: s} }

func StructuredValue(doc any) Value { return FromAny(doc) }

// FromAny converts a decoded JSON document (as produced by encoding/json) into a Value.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{}
	case bool:
		return BoolValue(t)
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return StringValue(t.String())
		}
		return NumberValue(f)
	case string:
		return StringValue(t)
	case Value:
		return t
	default:
		return Value{kind: KindStructured, doc: t}
	}
}

// Kind returns the dynamic type.
func (v Value) Kind() Kind {
	return v.kind
}

// AsBool narrows to bool.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsNumber narrows to float64.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.n, true
}

// AsString narrows to string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsJSON returns the value as a plain JSON document. Every kind converts.
func (v Value) AsJSON() (any, bool) {
	switch v.kind {
	case KindBool:
		return v.b, true
	case KindNumber:
		return v.n, true
	case KindString:
		return v.s, true
	case KindStructured:
		return v.doc, true
	default:
		return nil, true
	}
}

// MarshalJSON encodes the value as plain JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	doc, _ := v.AsJSON()
	return json.Marshal(doc)
}

// UnmarshalJSON decodes any JSON document.
func (v *Value) UnmarshalJSON(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*v = FromAny(doc)
	return nil
}

func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s>", v.kind)
	}
	return string(b)
}
