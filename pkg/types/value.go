package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// ValueKind names the variant held by a Value.
type ValueKind string

// Value kinds.
const (
	ValueText    ValueKind = "text"
	ValueNumber  ValueKind = "number"
	ValueBoolean ValueKind = "boolean"
	ValueDate    ValueKind = "date" // epoch milliseconds
	ValueRef     ValueKind = "ref"
	ValueRefs    ValueKind = "refs"
)

// Value is one instance property value. The zero Value holds nothing and
// marshals to JSON null.
type Value struct {
	kind ValueKind
	text string
	num  float64
	b    bool
	ms   int64
	refs []string
}

// Text returns a text value.
func Text(s string) Value { return Value{kind: ValueText, text: s} }

// Number returns a number value.
func Number(f float64) Value { return Value{kind: ValueNumber, num: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: ValueBoolean, b: b} }

// Date returns a date value holding epoch milliseconds.
func Date(ms int64) Value { return Value{kind: ValueDate, ms: ms} }

// DateOf returns the date value for t.
func DateOf(t time.Time) Value { return Date(t.UnixMilli()) }

// Ref returns a single instance reference.
func Ref(id string) Value { return Value{kind: ValueRef, text: id} }

// Refs returns a list of instance references.
func Refs(ids ...string) Value {
	return Value{kind: ValueRefs, refs: slices.Clone(ids)}
}

// Kind returns the variant, or "" for the zero Value.
func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether v holds nothing.
func (v Value) IsZero() bool { return v.kind == "" }

// AsText returns the text held by a text value.
func (v Value) AsText() (string, bool) { return v.text, v.kind == ValueText }

// AsNumber returns the number held by a number value.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == ValueNumber }

// AsBool returns the boolean held by a boolean value.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == ValueBoolean }

// AsDate returns the epoch milliseconds held by a date value.
func (v Value) AsDate() (int64, bool) { return v.ms, v.kind == ValueDate }

// RefIDs returns the instance ids a ref or refs value points at, and nil for
// every other kind.
func (v Value) RefIDs() []string {
	switch v.kind {
	case ValueRef:
		if v.text == "" {
			return nil
		}
		return []string{v.text}
	case ValueRefs:
		return slices.Clone(v.refs)
	}
	return nil
}

// String renders the value the way substring search sees it.
func (v Value) String() string {
	switch v.kind {
	case ValueText, ValueRef:
		return v.text
	case ValueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case ValueBoolean:
		return strconv.FormatBool(v.b)
	case ValueDate:
		return strconv.FormatInt(v.ms, 10)
	case ValueRefs:
		return strings.Join(v.refs, ",")
	}
	return ""
}

// Equal reports whether v and o hold the same kind and value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueText, ValueRef:
		return v.text == o.text
	case ValueNumber:
		return v.num == o.num
	case ValueBoolean:
		return v.b == o.b
	case ValueDate:
		return v.ms == o.ms
	case ValueRefs:
		return slices.Equal(v.refs, o.refs)
	}
	return true
}

type valueJSON struct {
	Kind  ValueKind       `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes v as {"kind": ..., "value": ...}.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.kind {
	case "":
		return []byte("null"), nil
	case ValueText, ValueRef:
		payload = v.text
	case ValueNumber:
		payload = v.num
	case ValueBoolean:
		payload = v.b
	case ValueDate:
		payload = v.ms
	case ValueRefs:
		refs := v.refs
		if refs == nil {
			refs = []string{}
		}
		payload = refs
	default:
		return nil, fmt.Errorf("marshaling value: unknown kind %q", v.kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Kind: v.kind, Value: raw})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}
	var w valueJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}
	out := Value{kind: w.Kind}
	var err error
	switch w.Kind {
	case ValueText, ValueRef:
		err = json.Unmarshal(w.Value, &out.text)
	case ValueNumber:
		err = json.Unmarshal(w.Value, &out.num)
	case ValueBoolean:
		err = json.Unmarshal(w.Value, &out.b)
	case ValueDate:
		err = json.Unmarshal(w.Value, &out.ms)
	case ValueRefs:
		err = json.Unmarshal(w.Value, &out.refs)
	default:
		return fmt.Errorf("decoding value: unknown kind %q", w.Kind)
	}
	if err != nil {
		return fmt.Errorf("decoding %s value: %w", w.Kind, err)
	}
	*v = out
	return nil
}

// CoerceValue converts raw user input into a Value guided by the property's
// declared type. A nil definition, and text or enum properties, yield text.
func CoerceValue(def *PropertyDefinition, raw string) (Value, error) {
	if def == nil {
		return Text(raw), nil
	}
	if def.IsReference() {
		if def.Multiple() {
			var ids []string
			for _, id := range strings.Split(raw, ",") {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
			return Refs(ids...), nil
		}
		return Ref(strings.TrimSpace(raw)), nil
	}
	switch def.Type.Kind {
	case KindNumber:
		f, err := cast.ToFloat64E(strings.TrimSpace(raw))
		if err != nil {
			return Value{}, fmt.Errorf("property %q: %w", def.Name, err)
		}
		return Number(f), nil
	case KindBoolean:
		b, err := cast.ToBoolE(strings.TrimSpace(raw))
		if err != nil {
			return Value{}, fmt.Errorf("property %q: %w", def.Name, err)
		}
		return Bool(b), nil
	case KindDate:
		s := strings.TrimSpace(raw)
		if ms, err := cast.ToInt64E(s); err == nil {
			return Date(ms), nil
		}
		t, err := cast.ToTimeE(s)
		if err != nil {
			return Value{}, fmt.Errorf("property %q: %w", def.Name, err)
		}
		return DateOf(t), nil
	}
	return Text(raw), nil
}
