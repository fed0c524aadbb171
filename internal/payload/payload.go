// Package payload wraps loosely structured JSON documents with explicit, fallible
// navigation. Every access step reports where in the document it failed instead
// of silently yielding nil.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
)

// MissingFieldError reports an absent object key.
type MissingFieldError struct {
	Path string
	Key  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q at %s", e.Key, e.Path)
}

// Unwrap classifies the failure as a parse error.
func (e *MissingFieldError) Unwrap() error { return chat.ErrParse }

// UnexpectedShapeError reports a value whose JSON type differs from what was asked for.
type UnexpectedShapeError struct {
	Path string
	Want string
	Got  string
}

func (e *UnexpectedShapeError) Error() string {
	return fmt.Sprintf("expected %s at %s, got %s", e.Want, e.Path, e.Got)
}

// Unwrap classifies the failure as a parse error.
func (e *UnexpectedShapeError) Unwrap() error { return chat.ErrParse }

// Value is one node of a decoded JSON document along with its path from the root.
type Value struct {
	raw  any
	path string
}

// Parse decodes a single JSON document. Numbers are kept as json.Number so that
// re-serialization is lossless.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("%w: decode json: %v", chat.ErrParse, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("%w: trailing data after json document", chat.ErrParse)
	}
	return Value{raw: raw, path: "$"}, nil
}

// ParsePrefix decodes the first JSON value in data and ignores whatever follows
// it, such as the rest of a script statement.
func ParsePrefix(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("%w: decode json: %v", chat.ErrParse, err)
	}
	return Value{raw: raw, path: "$"}, nil
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(data string) Value {
	v, err := Parse([]byte(data))
	if err != nil {
		panic(err)
	}
	return v
}

// Path returns the JSONPath-like location of the value.
func (v Value) Path() string { return v.path }

// Raw returns the underlying decoded value.
func (v Value) Raw() any { return v.raw }

// MarshalJSON re-serializes the value.
func (v Value) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(v.raw)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", v.path, err)
	}
	return data, nil
}

// Has reports whether v is an object holding key.
func (v Value) Has(key string) bool {
	obj, ok := v.raw.(map[string]any)
	if !ok {
		return false
	}
	_, ok = obj[key]
	return ok
}

// Get returns the member named key.
func (v Value) Get(key string) (Value, error) {
	obj, ok := v.raw.(map[string]any)
	if !ok {
		return Value{}, &UnexpectedShapeError{Path: v.path, Want: "object", Got: kindOf(v.raw)}
	}
	child, ok := obj[key]
	if !ok {
		return Value{}, &MissingFieldError{Path: v.path, Key: key}
	}
	return Value{raw: child, path: v.path + "." + key}, nil
}

// Dig follows keys in order, failing at the first missing or mis-shaped step.
func (v Value) Dig(keys ...string) (Value, error) {
	cur := v
	for _, key := range keys {
		next, err := cur.Get(key)
		if err != nil {
			return Value{}, err
		}
		cur = next
	}
	return cur, nil
}

// Keys returns the member names of an object in no particular order.
func (v Value) Keys() ([]string, error) {
	obj, ok := v.raw.(map[string]any)
	if !ok {
		return nil, &UnexpectedShapeError{Path: v.path, Want: "object", Got: kindOf(v.raw)}
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	return keys, nil
}

// Array returns the elements of an array value.
func (v Value) Array() ([]Value, error) {
	arr, ok := v.raw.([]any)
	if !ok {
		return nil, &UnexpectedShapeError{Path: v.path, Want: "array", Got: kindOf(v.raw)}
	}
	out := make([]Value, len(arr))
	for i, elem := range arr {
		out[i] = Value{raw: elem, path: v.path + "[" + strconv.Itoa(i) + "]"}
	}
	return out, nil
}

// Str returns a string value.
func (v Value) Str() (string, error) {
	s, ok := v.raw.(string)
	if !ok {
		return "", &UnexpectedShapeError{Path: v.path, Want: "string", Got: kindOf(v.raw)}
	}
	return s, nil
}

// Int64 returns an integer held either as a JSON number or as a decimal string.
func (v Value) Int64() (int64, error) {
	var text string
	switch t := v.raw.(type) {
	case json.Number:
		text = t.String()
	case string:
		text = strings.TrimSpace(t)
	default:
		return 0, &UnexpectedShapeError{Path: v.path, Want: "integer", Got: kindOf(v.raw)}
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, &UnexpectedShapeError{Path: v.path, Want: "integer", Got: strconv.Quote(text)}
	}
	return n, nil
}

// Compact renders the value as single-line JSON for error messages.
func (v Value) Compact() string {
	data, err := json.Marshal(v.raw)
	if err != nil {
		return fmt.Sprintf("%v", v.raw)
	}
	return string(data)
}

func kindOf(raw any) string {
	switch raw.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", raw)
	}
}
