package oauthmodel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindObject
	KindList
)

// Value is a custom response value. It is one of string, number, bool, null,
// nested CustomResponse or list of values.
type Value struct {
	kind Kind
	str  string
	i    int64
	f    float64
	b    bool
	obj  *CustomResponse
	list []Value
}

func String(s string) Value { return Value{kind: KindString, str: s} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Null() Value { return Value{kind: KindNull} }
func Object(obj *CustomResponse) Value { return Value{kind: KindObject, obj: obj.Clone()} }
func List(values ...Value) Value { return Value{kind: KindList, list: append([]Value(nil), values...)} }
func (v Value) Kind() Kind { return v.kind }
func (v Value) StringValue() string { return v.str }
func (v Value) IntValue() int64 { return v.i }
func (v Value) ObjectValue() *CustomResponse { return v.obj }

// Interface converts the value to plain Go types (string, int64, float64, bool, nil,
// map[string]any, []any).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindObject:
		return v.obj.Map()
	case KindList:
		out := make([]any, 0, len(v.list))
		for _, item := range v.list {
			out = append(out, item.Interface())
		}
		return out
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	case KindObject:
		return v.obj.MarshalJSON()
	case KindList:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindNull:
		return []byte("null"), nil
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// CustomResponse is an ordered set of host supplied response properties. Keys keep
// their first insertion position; setting an existing key replaces its value in place.
type CustomResponse struct {
	keys   []string
	values map[string]Value
}

// NewCustomResponse creates an empty custom response.
func NewCustomResponse() *CustomResponse {
	return &CustomResponse{values: make(map[string]Value)}
}

// Set adds or replaces a property and returns the receiver for chaining.
func (c *CustomResponse) Set(key string, v Value) *CustomResponse {
	if c.values == nil {
		c.values = make(map[string]Value)
	}
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = v
	return c
}

// Get returns the property value.
func (c *CustomResponse) Get(key string) (Value, bool) {
	if c == nil {
		return Value{}, false
	}
	v, ok := c.values[key]
	return v, ok
}

// Keys returns the property names in insertion order.
func (c *CustomResponse) Keys() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.keys...)
}

func (c *CustomResponse) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Merge copies every property of other into c. Properties of other win.
func (c *CustomResponse) Merge(other *CustomResponse) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		c.Set(k, other.values[k])
	}
}

// Clone returns a deep copy.
func (c *CustomResponse) Clone() *CustomResponse {
	if c == nil {
		return nil
	}
	out := NewCustomResponse()
	for _, k := range c.keys {
		v := c.values[k]
		if v.kind == KindObject {
			v.obj = v.obj.Clone()
		}
		out.Set(k, v)
	}
	return out
}

// Map converts the response to a plain map.
func (c *CustomResponse) Map() map[string]any {
	out := make(map[string]any, c.Len())
	for _, k := range c.Keys() {
		out[k] = c.values[k].Interface()
	}
	return out
}

func (c *CustomResponse) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := c.values[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("[CustomResponse.MarshalJSON] key %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
