package models

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"slices"
	"strings"
)

// ErrInvalidMatch is returned for an attribute match a store cannot evaluate.
var ErrInvalidMatch = errors.New("invalid attribute match")

// AttributeMatch selects records whose stored attributes equal every value, keyed by
// dotted path. Values are scalars: strings, booleans and numbers.
type AttributeMatch map[string]any

// Validate rejects empty matches, non-scalar values and paths nested under another
// matched path.
func (m AttributeMatch) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("%w: at least one path is required", ErrInvalidMatch)
	}
	for _, p := range m.Paths() {
		if p == "" || strings.HasPrefix(p, ".") || strings.HasSuffix(p, ".") || strings.Contains(p, "..") {
			return fmt.Errorf("%w: malformed path %q", ErrInvalidMatch, p)
		}
		if !isScalar(m[p]) {
			return fmt.Errorf("%w: %q must be a string, boolean or finite number", ErrInvalidMatch, p)
		}
		for i := strings.IndexByte(p, '.'); i >= 0; i = nextDot(p, i) {
			if _, ok := m[p[:i]]; ok {
				return fmt.Errorf("%w: %q is nested under %q", ErrInvalidMatch, p, p[:i])
			}
		}
	}
	return nil
}

// Paths returns the matched paths, sorted.
func (m AttributeMatch) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Matches reports whether every path resolves in attrs to an equal value.
func (m AttributeMatch) Matches(attrs Attributes) bool {
	for p, want := range m {
		got, ok := attrs.Lookup(p)
		if !ok || !SameValue(got, want) {
			return false
		}
	}
	return true
}

// Nested expands the dotted paths into one nested document, suitable for a
// containment query.
func (m AttributeMatch) Nested() (map[string]any, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	out := Attributes{}
	for _, p := range m.Paths() {
		if err := out.Set(p, m[p]); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMatch, err)
		}
	}
	return map[string]any(out), nil
}

// SameValue compares attribute values, treating numbers of any Go type as equal
// when they denote the same quantity.
func SameValue(a, b any) bool {
	na, aNum := numeric(a)
	nb, bNum := numeric(b)
	if aNum || bNum {
		return aNum && bNum && na != nil && nb != nil && na.Cmp(nb) == 0
	}
	return reflect.DeepEqual(a, b)
}

// numeric reports whether v is a number; the value is nil for NaN and infinities.
func numeric(v any) (*big.Float, bool) {
	f := new(big.Float)
	switch n := v.(type) {
	case int:
		return f.SetInt64(int64(n)), true
	case int32:
		return f.SetInt64(int64(n)), true
	case int64:
		return f.SetInt64(n), true
	case uint:
		return f.SetUint64(uint64(n)), true
	case uint32:
		return f.SetUint64(uint64(n)), true
	case uint64:
		return f.SetUint64(n), true
	case float32:
		return finite(float64(n)), true
	case float64:
		return finite(n), true
	default:
		return nil, false
	}
}

func finite(v float64) *big.Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return new(big.Float).SetFloat64(v)
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	default:
		n, ok := numeric(v)
		return ok && n != nil
	}
}

func nextDot(p string, after int) int {
	i := strings.IndexByte(p[after+1:], '.')
	if i < 0 {
		return -1
	}
	return after + 1 + i
}
