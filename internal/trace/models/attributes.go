package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrPathConflict is returned by Set when a path segment is occupied by a non-object value.
var ErrPathConflict = errors.New("attribute path conflicts with existing scalar")

// Type tags reported by Flatten and by store aggregations.
const (
	TypeString = "string"
	TypeNumber = "number"
	TypeBool   = "bool"
	TypeObject = "object"
	TypeArray  = "array"
	TypeNull   = "null"
	TypeDate   = "date"
)

// Attributes maps dotted attribute paths to scalar or nested-document values.
// Nested documents are map[string]any; a path addresses either a literal key
// or a walk through nested documents, in that order.
type Attributes map[string]any

// Lookup resolves path against the attributes.
func (a Attributes) Lookup(path string) (any, bool) {
	if a == nil || path == "" {
		return nil, false
	}
	if v, ok := a[path]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	child, ok := asObject(a[head])
	if !ok {
		return nil, false
	}
	return child.Lookup(rest)
}

// Has reports whether path resolves.
func (a Attributes) Has(path string) bool {
	_, ok := a.Lookup(path)
	return ok
}

// String returns the value at path when it is a string.
func (a Attributes) String(path string) (string, bool) {
	v, ok := a.Lookup(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set writes value under path, creating nested documents for every segment, the way
// a document store's dotted $set does.
func (a Attributes) Set(path string, value any) error {
	if path == "" {
		return fmt.Errorf("set attribute: empty path")
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		a[head] = value
		return nil
	}
	existing, present := a[head]
	if !present || existing == nil {
		child := Attributes{}
		a[head] = map[string]any(child)
		return child.Set(rest, value)
	}
	child, ok := asObject(existing)
	if !ok {
		return fmt.Errorf("set %q: %w", path, ErrPathConflict)
	}
	return child.Set(rest, value)
}

// Clone deep-copies nested documents and arrays.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

// TopLevelKeys returns the sorted top-level keys.
func (a Attributes) TopLevelKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flatten returns every top-level and nested path with the type tag of its value.
// Object paths are reported as TypeObject and their children are walked too.
func (a Attributes) Flatten() map[string]string {
	out := make(map[string]string)
	a.flattenInto("", out)
	return out
}

func (a Attributes) flattenInto(prefix string, out map[string]string) {
	for k, v := range a {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		out[path] = TypeOf(v)
		if child, ok := asObject(v); ok {
			child.flattenInto(path, out)
		}
	}
}

// TypeOf returns the type tag for a decoded attribute value.
func TypeOf(v any) string {
	switch v.(type) {
	case nil:
		return TypeNull
	case string:
		return TypeString
	case bool:
		return TypeBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return TypeNumber
	case time.Time:
		return TypeDate
	case []any:
		return TypeArray
	case map[string]any, Attributes:
		return TypeObject
	default:
		return fmt.Sprintf("%T", v)
	}
}

func asObject(v any) (Attributes, bool) {
	switch m := v.(type) {
	case map[string]any:
		return Attributes(m), true
	case Attributes:
		return m, true
	default:
		return nil, false
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Attributes(t).Clone())
	case Attributes:
		return map[string]any(t.Clone())
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
