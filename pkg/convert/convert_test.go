package convert

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFloat64(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected float64
		ok       bool
	}{
		{"float64", 3.14, 3.14, true},
		{"float32", float32(2.5), 2.5, true},
		{"int", 42, 42.0, true},
		{"int64", int64(99), 99.0, true},
		{"uint8", uint8(7), 7.0, true},
		{"json number", json.Number("1.25"), 1.25, true},
		{"string scientific", "1.5e-3", 0.0015, true},

		{"string invalid", "hello", 0, false},
		{"json number invalid", json.Number("x"), 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToFloat64(tt.input)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.InDelta(t, tt.expected, got, 0.0001)
			}
		})
	}

	t.Run("string NaN", func(t *testing.T) {
		got, ok := ToFloat64("NaN")
		assert.True(t, ok)
		assert.True(t, math.IsNaN(got))
	})
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected int64
		ok       bool
	}{
		{"int64", int64(5), 5, true},
		{"int", -3, -3, true},
		{"float truncates", 3.7, 3, true},
		{"json integer", json.Number("9007199254740993"), 9007199254740993, true},
		{"json float", json.Number("2.9"), 2, true},
		{"string int", "12", 12, true},
		{"string float", "12.5", 12, true},

		{"string invalid", "abc", 0, false},
		{"nil", nil, 0, false},
		{"map", map[string]any{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToInt64(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeNumber(t *testing.T) {
	assert.Equal(t, int64(4), NormalizeNumber(json.Number("4")))
	assert.Equal(t, 4.5, NormalizeNumber(json.Number("4.5")))
	assert.Equal(t, int64(4), NormalizeNumber(4))
	assert.Equal(t, int64(4), NormalizeNumber(uint8(4)))
	assert.Equal(t, 0.5, NormalizeNumber(float32(0.5)))
	assert.Equal(t, int64(4), NormalizeNumber(int64(4)))
	assert.Equal(t, "x", NormalizeNumber("x"))
	assert.Nil(t, NormalizeNumber(nil))
}

func TestToBool(t *testing.T) {
	tests := []struct {
		input    any
		expected bool
		ok       bool
	}{
		{true, true, true},
		{"yes", true, true},
		{" OFF ", false, true},
		{1, true, true},
		{0.0, false, true},
		{"maybe", false, false},
		{nil, false, false},
	}

	for _, tt := range tests {
		got, ok := ToBool(tt.input)
		assert.Equal(t, tt.ok, ok, "input %v", tt.input)
		assert.Equal(t, tt.expected, got, "input %v", tt.input)
	}
}

func TestToTime(t *testing.T) {
	ref := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)
	micros := ref.Truncate(time.Microsecond)

	t.Run("time truncated to micros", func(t *testing.T) {
		got, ok := ToTime(ref)
		require.True(t, ok)
		assert.Equal(t, micros, got)
	})

	t.Run("local time becomes UTC", func(t *testing.T) {
		loc := time.FixedZone("X", 3600)
		got, ok := ToTime(ref.In(loc))
		require.True(t, ok)
		assert.Equal(t, time.UTC, got.Location())
		assert.True(t, got.Equal(micros))
	})

	t.Run("unix micros", func(t *testing.T) {
		got, ok := ToTime(micros.UnixMicro())
		require.True(t, ok)
		assert.True(t, got.Equal(micros))

		got, ok = ToTime(json.Number("1709296200123456"))
		require.True(t, ok)
		assert.True(t, got.Equal(micros))

		got, ok = ToTime(float64(1709296200000000))
		require.True(t, ok)
		assert.Equal(t, int64(1709296200000000), got.UnixMicro())
	})

	t.Run("rfc3339", func(t *testing.T) {
		got, ok := ToTime("2024-03-01T12:30:00.123456Z")
		require.True(t, ok)
		assert.True(t, got.Equal(micros))
	})

	t.Run("invalid", func(t *testing.T) {
		_, ok := ToTime("yesterday")
		assert.False(t, ok)
		_, ok = ToTime(nil)
		assert.False(t, ok)
		_, ok = ToTime((*time.Time)(nil))
		assert.False(t, ok)
	})
}

func TestToList(t *testing.T) {
	got, ok := ToList([]int{1, 2})
	require.True(t, ok)
	assert.Equal(t, []any{1, 2}, got)

	got, ok = ToList([]string{"a"})
	require.True(t, ok)
	assert.Equal(t, []any{"a"}, got)

	got, ok = ToList(nil)
	assert.True(t, ok)
	assert.Nil(t, got)

	_, ok = ToList("abc")
	assert.False(t, ok)
}

func TestToMap(t *testing.T) {
	got, ok := ToMap(map[string]int{"a": 1})
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": 1}, got)

	_, ok = ToMap(map[int]string{1: "a"})
	assert.False(t, ok)

	_, ok = ToMap([]any{})
	assert.False(t, ok)
}

func TestIsMapIsList(t *testing.T) {
	assert.True(t, IsMap(map[string]string{}))
	assert.False(t, IsMap(nil))
	assert.False(t, IsMap(map[int]int{}))

	assert.True(t, IsList([]any{}))
	assert.True(t, IsList([2]int{}))
	assert.False(t, IsList([]byte("x")))
	assert.False(t, IsList("x"))
	assert.False(t, IsList(nil))
}

func TestClone(t *testing.T) {
	orig := map[string]any{
		"tags":  []any{"a", map[string]any{"deep": 1}},
		"inner": map[string]any{"k": "v"},
		"n":     3,
	}

	cloned := Clone(orig).(map[string]any)
	assert.Equal(t, orig, cloned)

	cloned["inner"].(map[string]any)["k"] = "changed"
	cloned["tags"].([]any)[1].(map[string]any)["deep"] = 2

	assert.Equal(t, "v", orig["inner"].(map[string]any)["k"])
	assert.Equal(t, 1, orig["tags"].([]any)[1].(map[string]any)["deep"])
	assert.Equal(t, 7, Clone(7))
}

func TestNormalizeNumbers(t *testing.T) {
	in := map[string]any{
		"n":    json.Number("3"),
		"list": []any{json.Number("1.5"), 2},
	}
	out := NormalizeNumbers(in)
	assert.Equal(t, map[string]any{
		"n":    int64(3),
		"list": []any{1.5, int64(2)},
	}, out)
	assert.Equal(t, json.Number("3"), in["n"])
}
