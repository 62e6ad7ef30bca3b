package validator

import (
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fastjson"

	"tracekeeper/internal/trace/models"
	dErrors "tracekeeper/pkg/domain-errors"
)

// ErrMalformedRecord is returned when a candidate body is not a JSON object in the
// record wire shape.
var ErrMalformedRecord = errors.New("malformed trace record")

var parserPool fastjson.ParserPool

// ParseCandidate decodes the record wire shape:
//
//	{"attributes": {...}, "_time": "2025-01-02T15:04:05Z" | 1735830245000}
//
// _time may be an RFC 3339 string or epoch milliseconds. Presence checks are left
// to Validate so a missing field surfaces as a rejection, not a parse error.
func ParseCandidate(raw []byte) (*models.TraceRecord, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(raw)
	if err != nil {
		return nil, malformed(err.Error())
	}
	if v.Type() != fastjson.TypeObject {
		return nil, malformed("record must be a JSON object")
	}

	attrs := models.Attributes{}
	if a := v.Get("attributes"); a != nil && a.Type() != fastjson.TypeNull {
		if a.Type() != fastjson.TypeObject {
			return nil, malformed("attributes must be an object")
		}
		attrs = models.Attributes(toAny(a).(map[string]any))
	}

	var eventTime *time.Time
	if t := v.Get("_time"); t != nil && t.Type() != fastjson.TypeNull {
		parsed, err := parseTime(t)
		if err != nil {
			return nil, malformed(err.Error())
		}
		eventTime = &parsed
	}

	return models.FromStored("", attrs, eventTime, time.Time{}), nil
}

func malformed(detail string) error {
	return dErrors.Wrap(fmt.Errorf("%w: %s", ErrMalformedRecord, detail), dErrors.CodeBadRequest, "malformed trace record: "+detail)
}

func parseTime(v *fastjson.Value) (time.Time, error) {
	switch v.Type() {
	case fastjson.TypeString:
		b, _ := v.StringBytes()
		t, err := time.Parse(time.RFC3339Nano, string(b))
		if err != nil {
			return time.Time{}, fmt.Errorf("_time: %w", err)
		}
		return t.UTC(), nil
	case fastjson.TypeNumber:
		ms, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return time.Time{}, fmt.Errorf("_time: %w", ferr)
			}
			ms = int64(f)
		}
		return time.UnixMilli(ms).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("_time must be a string or epoch milliseconds")
	}
}

// toAny copies a parsed value out of the parser's arena.
func toAny(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		o, _ := v.Object()
		out := make(map[string]any, o.Len())
		o.Visit(func(key []byte, val *fastjson.Value) {
			out[string(key)] = toAny(val)
		})
		return out
	case fastjson.TypeArray:
		items, _ := v.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = toAny(item)
		}
		return out
	case fastjson.TypeString:
		b, _ := v.StringBytes()
		return string(b)
	case fastjson.TypeNumber:
		return number(v)
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}

// number keeps integers exact: int64 when it fits, uint64 above that, float64 only
// for fractions and exponents.
func number(v *fastjson.Value) any {
	if i, err := v.Int64(); err == nil {
		return i
	}
	if u, err := v.Uint64(); err == nil {
		return u
	}
	f, _ := v.Float64()
	return f
}
