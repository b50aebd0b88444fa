// Package mathutil provides common numeric coercion helpers.
package mathutil

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// IsFinite reports whether val is neither NaN nor infinite.
func IsFinite(val float64) bool {
	return !math.IsNaN(val) && !math.IsInf(val, 0)
}

// ToNumber coerces a decoded JSON value into a finite float64.
// Numbers pass through, numeric strings are parsed, booleans map to 1/0 and
// anything else (nil, objects, garbage, NaN, Inf) yields fallback.
func ToNumber(value interface{}, fallback float64) float64 {
	var result float64
	switch v := value.(type) {
	case float64:
		result = v
	case float32:
		result = float64(v)
	case int:
		result = float64(v)
	case int64:
		result = float64(v)
	case int32:
		result = float64(v)
	case uint:
		result = float64(v)
	case uint64:
		result = float64(v)
	case json.Number:
		parsed, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return fallback
		}
		result = parsed
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return fallback
		}
		result = parsed
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return fallback
	}

	if !IsFinite(result) {
		return fallback
	}
	return result
}

// Lookup returns the first present, non-null value among keys.
func Lookup(data map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if v, ok := data[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// FirstNumber coerces the first present, non-null value among keys, or
// returns fallback when none is present.
func FirstNumber(data map[string]interface{}, fallback float64, keys ...string) float64 {
	v, ok := Lookup(data, keys...)
	if !ok {
		return fallback
	}
	return ToNumber(v, fallback)
}

// FirstString returns the first non-empty string value among keys, or fallback.
func FirstString(data map[string]interface{}, fallback string, keys ...string) string {
	for _, key := range keys {
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}
