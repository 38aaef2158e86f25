package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is a loosely-typed metadata payload as returned by the chat platform
// (group info, member info). The upstream schema is not under our control, so callers
// read the handful of fields they need through the typed accessors below.
type Record map[string]any

// String returns the field as a string. Numbers are formatted without exponent,
// nil and missing fields yield "".
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Int returns the field as an int64, or 0 when it is missing or not numeric.
func (r Record) Int(key string) int64 {
	v, ok := r[key]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int:
		return int64(t)
	case int64:
		return t
	case json.Number:
		n, _ := t.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n
	default:
		return 0
	}
}

// FirstNonEmpty returns the first of the given fields holding a non-empty string value.
func (r Record) FirstNonEmpty(keys ...string) string {
	for _, k := range keys {
		if s := r.String(k); s != "" {
			return s
		}
	}
	return ""
}
