// Package attrs reads slog-style key/value attribute slices ([k1, v1, k2, v2, ...])
// as carried by diagnostic entries.
package attrs

import "fmt"

// Value returns the value stored under key. Non-string keys are skipped.
func Value(attrs []any, key string) (any, bool) {
	for i := 0; i+1 < len(attrs); i += 2 {
		if k, ok := attrs[i].(string); ok && k == key {
			return attrs[i+1], true
		}
	}
	return nil, false
}

// ExtractString returns the value under key when it is a string, or "".
func ExtractString(attrs []any, key string) string {
	v, ok := Value(attrs, key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// ToMap collects the pairs into a map. Errors become their message so the map
// can be JSON encoded. A nil map is returned for an empty slice.
func ToMap(attrs []any) map[string]any {
	var out map[string]any
	for i := 0; i+1 < len(attrs); i += 2 {
		k, ok := attrs[i].(string)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(attrs)/2)
		}
		v := attrs[i+1]
		if err, isErr := v.(error); isErr {
			v = err.Error()
		}
		out[k] = v
	}
	return out
}

// ToStringMap is ToMap with every value rendered by fmt.Sprint.
func ToStringMap(attrs []any) map[string]string {
	m := ToMap(attrs)
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}
