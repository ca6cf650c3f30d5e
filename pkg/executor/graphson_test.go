package executor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, decodeJSON([]byte(raw), &v))
	return v
}

func TestNormalizeGraphSON1(t *testing.T) {
	raw := `{
		"ogm_var_1": {"id": 1, "label": "person", "type": "vertex",
			"properties": {"name": [{"id": 10, "value": "marko"}], "tags": [{"id": 11, "value": "a"}, {"id": 12, "value": "b"}]}},
		"ogm_var_2": {"id": "e7", "label": "knows", "type": "edge", "inV": 2, "outV": 1,
			"properties": {"weight": 0.5}}
	}`

	got := Normalize(decode(t, raw))
	assert.Equal(t, map[string]any{
		"ogm_var_1": map[string]any{
			"_id": int64(1), "_type": "vertex", "_label": "person",
			"name": "marko", "tags": []any{"a", "b"},
		},
		"ogm_var_2": map[string]any{
			"_id": "e7", "_type": "edge", "_label": "knows",
			"_outV": int64(1), "_inV": int64(2), "weight": 0.5,
		},
	}, got)
}

func TestNormalizeGraphSON3(t *testing.T) {
	raw := `{"@type": "g:List", "@value": [
		{"@type": "g:Map", "@value": [
			"ogm_var_1", {"@type": "g:Vertex", "@value": {
				"id": {"@type": "g:Int64", "@value": 4},
				"label": "person",
				"properties": {"age": [{"@type": "g:VertexProperty", "@value": {
					"id": {"@type": "g:Int64", "@value": 9}, "value": {"@type": "g:Int32", "@value": 29}, "label": "age"}}]}
			}},
			"ogm_var_2", {"@type": "g:Edge", "@value": {
				"id": {"@type": "g:Int64", "@value": 13},
				"label": "created",
				"inV": {"@type": "g:Int64", "@value": 3},
				"outV": {"@type": "g:Int64", "@value": 4},
				"properties": {"weight": {"@type": "g:Property", "@value": {"key": "weight", "value": {"@type": "g:Double", "@value": 0.4}}}}
			}}
		]}
	]}`

	got := Normalize(decode(t, raw))
	require.IsType(t, []any{}, got)
	rows := got.([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{
		"ogm_var_1": map[string]any{
			"_id": int64(4), "_type": "vertex", "_label": "person", "age": int64(29),
		},
		"ogm_var_2": map[string]any{
			"_id": int64(13), "_type": "edge", "_label": "created",
			"_outV": int64(4), "_inV": int64(3), "weight": 0.4,
		},
	}, rows[0])
}

func TestNormalizeScalars(t *testing.T) {
	assert.Equal(t, int64(3), Normalize(json.Number("3")))
	assert.Equal(t, "x", Normalize("x"))
	assert.Nil(t, Normalize(nil))
	assert.Equal(t, map[string]any{"id": int64(1)}, Normalize(map[string]any{"id": json.Number("1")}))
	assert.Equal(t, []any{"a"}, Normalize(map[string]any{"@type": "g:Set", "@value": []any{"a"}}))
}

func TestAsRows(t *testing.T) {
	assert.Nil(t, asRows(nil))
	assert.Equal(t, []any{1}, asRows(1))
	assert.Equal(t, []any{1, 2}, asRows([]any{1, 2}))
}
