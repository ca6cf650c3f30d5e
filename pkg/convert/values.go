package convert

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ToBool converts booleans, numbers and the usual string spellings
// ("true", "1", "yes", "on" and their negatives) to bool.
func ToBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes", "on":
			return true, true
		case "false", "0", "no", "off":
			return false, true
		}
		return false, false
	}
	if n, ok := ToFloat64(v); ok {
		return n != 0, true
	}
	return false, false
}

// ToTime converts a value to a UTC time truncated to microseconds, the
// resolution timestamps are stored with in the graph.
//
// Supported inputs:
//   - time.Time
//   - unix microseconds as any numeric type or json.Number
//   - RFC3339 / RFC3339Nano strings, or strings holding unix microseconds
func ToTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Truncate(time.Microsecond), true
	case *time.Time:
		if val == nil {
			return time.Time{}, false
		}
		return val.UTC().Truncate(time.Microsecond), true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t.UTC().Truncate(time.Microsecond), true
		}
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return time.UnixMicro(i).UTC(), true
		}
		return time.Time{}, false
	}
	if i, ok := ToInt64(v); ok {
		return time.UnixMicro(i).UTC(), true
	}
	return time.Time{}, false
}

// ToList converts any slice or array to []any. Nil stays nil.
func ToList(v any) ([]any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, true
	case []any:
		return val, true
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// ToMap converts a map with string keys to map[string]any. Nil stays nil.
func ToMap(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, true
	case map[string]any:
		return val, true
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// IsMap reports whether v is a string-keyed map.
func IsMap(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(map[string]any); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String
}

// IsList reports whether v is a slice or array (byte slices excluded).
func IsList(v any) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case []any:
		return true
	case []byte, json.RawMessage:
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// Clone deep-copies nested maps and lists so a snapshot cannot be changed
// through the original. Scalars are returned as-is.
func Clone(v any) any {
	switch {
	case IsMap(v):
		m, _ := ToMap(v)
		out := make(map[string]any, len(m))
		for k, item := range m {
			out[k] = Clone(item)
		}
		return out
	case IsList(v):
		l, _ := ToList(v)
		out := make([]any, len(l))
		for i, item := range l {
			out[i] = Clone(item)
		}
		return out
	}
	return v
}

// NormalizeNumbers applies NormalizeNumber to every leaf of nested maps and
// lists. Maps and lists are rebuilt, the input is not modified.
func NormalizeNumbers(v any) any {
	switch {
	case IsMap(v):
		m, _ := ToMap(v)
		out := make(map[string]any, len(m))
		for k, item := range m {
			out[k] = NormalizeNumbers(item)
		}
		return out
	case IsList(v):
		l, _ := ToList(v)
		out := make([]any, len(l))
		for i, item := range l {
			out[i] = NormalizeNumbers(item)
		}
		return out
	}
	return NormalizeNumber(v)
}
