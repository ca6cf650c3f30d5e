package executor

import (
	"github.com/orneryd/nornicogm/pkg/convert"
	"github.com/orneryd/nornicogm/pkg/entity"
)

// Normalize converts a decoded GraphSON value (1.0 untyped, or 2.0/3.0 with
// @type wrappers) into plain Go values. Vertices and edges become flat entity
// rows: _id, _type, _label, the properties, and _outV/_inV for edges. Numbers
// are int64 or float64.
func Normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if typ, ok := val["@type"].(string); ok {
			if inner, ok := val["@value"]; ok {
				return normalizeTyped(typ, inner)
			}
		}
		if row, ok := elementRow(val); ok {
			return row
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	}
	return convert.NormalizeNumber(v)
}

func normalizeTyped(typ string, v any) any {
	switch typ {
	case "g:Map":
		// 3.0 maps are flat key/value lists.
		list, _ := v.([]any)
		out := make(map[string]any, len(list)/2)
		for i := 0; i+1 < len(list); i += 2 {
			key, ok := Normalize(list[i]).(string)
			if !ok {
				continue
			}
			out[key] = Normalize(list[i+1])
		}
		return out
	case "g:List", "g:Set":
		return Normalize(v)
	case "g:Vertex":
		m, _ := v.(map[string]any)
		return vertexRow(m)
	case "g:Edge":
		m, _ := v.(map[string]any)
		return edgeRow(m)
	case "g:VertexProperty", "g:Property":
		m, _ := v.(map[string]any)
		return Normalize(m["value"])
	case "g:Int32", "g:Int64", "g:Double", "g:Float", "g:Date", "g:Timestamp":
		return convert.NormalizeNumber(v)
	case "g:T", "g:UUID", "g:Direction":
		return v
	}
	return Normalize(v)
}

// elementRow recognises untyped (GraphSON 1.0) vertices and edges.
func elementRow(m map[string]any) (map[string]any, bool) {
	typ, _ := m["type"].(string)
	if _, hasID := m["id"]; !hasID {
		return nil, false
	}
	if _, hasLabel := m["label"]; !hasLabel {
		return nil, false
	}
	switch typ {
	case string(entity.KindVertex):
		return vertexRow(m), true
	case string(entity.KindEdge):
		return edgeRow(m), true
	}
	return nil, false
}

func vertexRow(m map[string]any) map[string]any {
	row := map[string]any{
		entity.FieldID:    Normalize(m["id"]),
		entity.KeyType:    string(entity.KindVertex),
		entity.FieldLabel: Normalize(m["label"]),
	}
	props, _ := m["properties"].(map[string]any)
	for key, raw := range props {
		row[key] = vertexPropertyValue(raw)
	}
	return row
}

// vertexPropertyValue collapses a vertex property list. Single cardinality
// yields the value, multiple values yield a list.
func vertexPropertyValue(raw any) any {
	list, ok := Normalize(raw).([]any)
	if !ok {
		return unwrapProperty(Normalize(raw))
	}
	values := make([]any, 0, len(list))
	for _, item := range list {
		values = append(values, unwrapProperty(item))
	}
	if len(values) == 1 {
		return values[0]
	}
	return values
}

// unwrapProperty takes the value out of a 1.0 {id, value} property map.
func unwrapProperty(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if value, ok := m["value"]; ok {
		if _, hasID := m["id"]; hasID {
			return value
		}
		if _, hasKey := m["key"]; hasKey {
			return value
		}
	}
	return m
}

func edgeRow(m map[string]any) map[string]any {
	row := map[string]any{
		entity.FieldID:    Normalize(m["id"]),
		entity.KeyType:    string(entity.KindEdge),
		entity.FieldLabel: Normalize(m["label"]),
		entity.KeyOutV:    Normalize(m["outV"]),
		entity.KeyInV:     Normalize(m["inV"]),
	}
	props, _ := m["properties"].(map[string]any)
	for key, raw := range props {
		row[key] = unwrapProperty(Normalize(raw))
	}
	return row
}
