package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// DecodeAttributes decodes a stored JSON attribute object. Integers stay exact
// (int64, or uint64 above the int64 range); only fractions and exponents become float64.
func DecodeAttributes(raw []byte) (Attributes, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	return Attributes(exactNumbers(m).(map[string]any)), nil
}

func exactNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = exactNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = exactNumbers(e)
		}
		return t
	case json.Number:
		return ParseNumber(t.String())
	default:
		return v
	}
}

// ParseNumber converts a JSON number literal to int64, uint64 or float64, in that
// order of preference. An unparsable literal yields float64 zero.
func ParseNumber(lit string) any {
	if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(lit, 10, 64); err == nil {
		return u
	}
	f, _ := strconv.ParseFloat(lit, 64)
	return f
}
