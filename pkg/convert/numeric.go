// Package convert provides value coercion utilities for nornicogm.
//
// Values reach entity fields from three places: application code (native Go
// types), JSON decoded executor responses (float64 and json.Number), and the
// embedded storage engine. This package normalizes them so a field holds the
// same Go type regardless of where the value came from.
//
// Key Functions:
//   - ToFloat64, ToInt64: numeric conversion
//   - ToBool: boolean conversion
//   - ToTime: timestamps (time.Time, unix microseconds, RFC3339 strings)
//   - ToList, ToMap: nested collections
//   - Clone: deep copy of nested maps and lists
//
// All conversion functions return a success boolean so callers can keep the
// raw value when a conversion is not possible.
//
// Example:
//
//	if n, ok := convert.ToInt64(row["age"]); ok {
//		age = n
//	}
package convert

import (
	"encoding/json"
	"strconv"
)

// ToFloat64 converts various numeric types to float64.
// Returns (value, true) on success, (0, false) on failure.
//
// Supported types:
//   - float64, float32
//   - int, int8, int16, int32, int64 and unsigned variants
//   - json.Number
//   - string (parsed as decimal, supports scientific notation)
//
// Example:
//
//	f, ok := ToFloat64(42)        // (42.0, true)
//	f, ok := ToFloat64("1.5e-3")  // (0.0015, true)
//	f, ok := ToFloat64("invalid") // (0, false)
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f, true
		}
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// ToInt64 converts various numeric types to int64.
// Returns (value, true) on success, (0, false) on failure.
//
// Floats are truncated toward zero. Strings are parsed as integers first and
// as floats second.
//
// Example:
//
//	i, ok := ToInt64(3.7)              // (3, true)
//	i, ok := ToInt64(json.Number("9")) // (9, true)
//	i, ok := ToInt64("abc")            // (0, false)
func ToInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case uint:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float64:
		return int64(val), true
	case float32:
		return int64(val), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
		if f, err := val.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

// NormalizeNumber maps numbers onto the two numeric types the graph returns:
// integers of any width (and integral json.Number values) become int64,
// float32 and fractional json.Number values become float64. Other values
// are returned unchanged.
func NormalizeNumber(v any) any {
	switch val := v.(type) {
	case int, int8, int16, int32, uint, uint8, uint16, uint32, uint64:
		i, _ := ToInt64(val)
		return i
	case float32:
		return float64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	}
	return v
}
