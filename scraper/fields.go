package scraper

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// object is a loosely typed JSON object decoded with UseNumber. The detail
// endpoint renames and retypes fields between listings, so lookups go
// through the helpers below instead of fixed structs.
type object map[string]any

func asObject(v any) object {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m
}

func (o object) child(key string) object {
	if o == nil {
		return nil
	}
	return asObject(o[key])
}

// present reports whether v carries a usable value. Null, empty strings,
// zero numbers, false and empty containers count as absent.
func present(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case json.Number:
		f, err := val.Float64()
		return err != nil || f != 0
	case float64:
		return val != 0
	case bool:
		return val
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// firstPresent returns the first present value among keys.
func (o object) firstPresent(keys ...string) (any, bool) {
	for _, key := range keys {
		if v := o[key]; present(v) {
			return v, true
		}
	}
	return nil, false
}

func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}

// stringField returns the first present scalar among keys as a string.
func (o object) stringField(keys ...string) *string {
	v, ok := o.firstPresent(keys...)
	if !ok {
		return nil
	}
	s, ok := scalarString(v)
	if !ok {
		return nil
	}
	return &s
}

// trimmedField is stringField with surrounding whitespace removed; a value
// that trims to nothing is treated as missing.
func (o object) trimmedField(keys ...string) *string {
	s := o.stringField(keys...)
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// decimalField returns the first present value among keys that parses as a
// number. Spaces used as thousands separators are ignored.
func (o object) decimalField(keys ...string) *float64 {
	for _, key := range keys {
		v := o[key]
		if !present(v) {
			continue
		}
		if f, ok := toDecimal(v); ok {
			return &f
		}
	}
	return nil
}

// digitsField returns the first present value among keys that is a whole
// non-negative number once thousands separators are stripped.
func (o object) digitsField(keys ...string) *int64 {
	for _, key := range keys {
		v := o[key]
		if !present(v) {
			continue
		}
		if n, ok := toDigits(v); ok {
			return &n
		}
	}
	return nil
}

func toDecimal(v any) (float64, bool) {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(stripSpaces(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toDigits(v any) (int64, bool) {
	var s string
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			if n < 0 {
				return 0, false
			}
			return n, true
		}
		f, err := val.Float64()
		if err != nil || f < 0 || f != float64(int64(f)) {
			return 0, false
		}
		return int64(f), true
	case float64:
		if val < 0 || val != float64(int64(val)) {
			return 0, false
		}
		return int64(val), true
	case string:
		s = stripSpaces(val)
	default:
		return 0, false
	}

	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
