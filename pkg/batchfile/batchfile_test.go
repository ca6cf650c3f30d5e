package batchfile

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornicogm/pkg/executor"
	"github.com/orneryd/nornicogm/pkg/mapper"
	"github.com/orneryd/nornicogm/pkg/storage"
)

const social = `
types:
  - name: person
    fields:
      - {name: name, kind: string}
      - {name: age, kind: integer}
    unique: [name]
  - name: knows
    kind: edge
    label: knows
    unique_edge: true
    fields:
      - {name: since, kind: integer}
vertices:
  - {ref: ada, type: person, data: {name: Ada, age: 36}}
  - {ref: bob, type: person, data: {name: Bob}}
edges:
  - {ref: k, type: knows, out: ada, in: bob, data: {since: 1843}}
`

func mustCompile(t *testing.T, text string) *Batch {
	t.Helper()
	doc, err := Parse(strings.NewReader(text))
	require.NoError(t, err)
	b, err := Compile(doc)
	require.NoError(t, err)
	return b
}

func TestParse(t *testing.T) {
	doc, err := Parse(strings.NewReader(social))
	require.NoError(t, err)
	require.Len(t, doc.Types, 2)
	assert.Equal(t, []string{"name"}, doc.Types[0].Unique)
	assert.Equal(t, "edge", doc.Types[1].Kind)
	require.Len(t, doc.Vertices, 2)
	assert.Equal(t, "Ada", doc.Vertices[0].Data["name"])
	assert.Equal(t, "ada", doc.Edges[0].Out)

	t.Run("empty document", func(t *testing.T) {
		doc, err := Parse(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, doc.Vertices)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		_, err := Parse(strings.NewReader("vertexes: []"))
		assert.Error(t, err)
	})
}

func TestQueueCompilesInDocumentOrder(t *testing.T) {
	b := mustCompile(t, social)
	rec := executor.NewRecorder(nil)
	sess := mapper.NewSession(rec, b.Registry())

	items, err := b.Queue(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "ada", items[0].Ref)
	assert.Equal(t, "ogm_var_1", items[0].Variable)
	assert.Equal(t, "ogm_var_2", items[1].Variable)
	assert.Equal(t, "ogm_var_3", items[2].Variable)
	assert.Equal(t, "knows", items[2].Entity.Label())

	text, params := sess.Pending()
	assert.Equal(t, 1, strings.Count(text, ".addEdge("))
	assert.Contains(t, text, "ogm_var_3 = ogm_var_1.addEdge(")
	assert.Equal(t, "Ada", params["person_1_name"])

	// One uniqueness pre-check per person, nothing else sent yet.
	assert.Len(t, rec.Requests(), 2)
}

func TestQueueEndpointIDs(t *testing.T) {
	b := mustCompile(t, `
edges:
  - {label: follows, out_id: 42, in_id: 43}
deletes:
  - {kind: edge, id: 7}
`)
	sess := mapper.NewSession(executor.NewRecorder(nil), b.Registry())
	items, err := b.Queue(context.Background(), sess)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, OpSave, items[0].Op)
	assert.Equal(t, "generic_edge", items[0].Entity.Type())
	assert.Equal(t, OpDelete, items[1].Op)
	assert.EqualValues(t, 7, items[1].Entity.ID())

	_, params := sess.Pending()
	var values []string
	for _, v := range params {
		values = append(values, fmt.Sprint(v))
	}
	assert.Contains(t, values, "42")
	assert.Contains(t, values, "43")
	assert.Contains(t, values, "7")
}

func TestApplyLocal(t *testing.T) {
	ctx := context.Background()
	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { _ = engine.Close() })
	b := mustCompile(t, social)
	sess := mapper.NewSession(executor.NewLocal(engine, nil), b.Registry())

	apply := func() []Item {
		items, err := b.Queue(ctx, sess)
		require.NoError(t, err)
		_, err = sess.Send(ctx)
		require.NoError(t, err)
		for _, it := range items {
			require.True(t, it.Entity.HasID(), it.Ref)
		}
		return items
	}

	first := apply()
	assert.Equal(t, 2, engine.NodeCount())
	assert.Equal(t, 1, engine.EdgeCount())

	// Fresh instances of the same data resolve to the stored entities.
	second := apply()
	assert.Equal(t, 2, engine.NodeCount())
	assert.Equal(t, 1, engine.EdgeCount())
	for i := range first {
		assert.Equal(t, first[i].Entity.ID(), second[i].Entity.ID(), first[i].Ref)
	}

	del, err := Compile(&Document{
		Types:   b.Document().Types,
		Deletes: []DeleteSpec{{Type: "person", ID: first[0].Entity.ID()}},
	})
	require.NoError(t, err)
	_, err = del.Queue(ctx, sess)
	require.NoError(t, err)
	_, err = sess.Send(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, engine.NodeCount())
	assert.Equal(t, 0, engine.EdgeCount())
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"type without name", "types: [{kind: vertex}]"},
		{"unknown kind", "types: [{name: a, kind: hyperedge}]"},
		{"type declared twice", "types: [{name: a}, {name: a}]"},
		{"generic name taken", "types: [{name: generic_vertex}]"},
		{"extends undeclared", "types: [{name: a, extends: b}]"},
		{"extends other kind", "types: [{name: a}, {name: b, kind: edge, extends: a}]"},
		{"bad field kind", "types: [{name: a, fields: [{name: x, kind: blob}]}]"},
		{"reserved field", "types: [{name: a, fields: [{name: _id}]}]"},
		{"unique edge on vertex", "types: [{name: a, unique_edge: true}]"},
		{"unique fields on edge", "types: [{name: e, kind: edge, unique: [x]}]"},
		{"vertex of unknown type", "vertices: [{type: nope}]"},
		{"vertex of edge type", "types: [{name: e, kind: edge}]\nvertices: [{type: e}]"},
		{"duplicate ref", "vertices: [{ref: a}, {ref: a}]"},
		{"edge without label", "vertices: [{ref: a}]\nedges: [{out: a, in: a}]"},
		{"edge to unknown ref", "vertices: [{ref: a}]\nedges: [{label: l, out: a, in: b}]"},
		{"edge to an edge ref", "vertices: [{ref: a}]\nedges: [{ref: e, label: l, out: a, in: a}, {label: l, out: e, in: a}]"},
		{"edge with ref and id", "vertices: [{ref: a}]\nedges: [{label: l, out: a, out_id: 1, in: a}]"},
		{"edge without endpoint", "vertices: [{ref: a}]\nedges: [{label: l, out: a}]"},
		{"delete unknown ref", "deletes: [{ref: a}]"},
		{"delete without id", "deletes: [{type: generic_vertex}]"},
		{"delete of unknown kind", "deletes: [{kind: blob, id: 1}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(strings.NewReader(tt.doc))
			require.NoError(t, err)
			_, err = Compile(doc)
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestQueueSurfacesMapperErrors(t *testing.T) {
	b := mustCompile(t, `
types:
  - {name: tag, fields: [{name: word, kind: string}], unique: [word], error_on_non_unique: true}
vertices:
  - {type: tag, data: {word: go}}
`)
	rec := executor.NewRecorder(func(context.Context, *executor.Request) (*executor.Response, error) {
		return &executor.Response{Data: []any{map[string]any{"_id": "t1", "_model": "tag", "word": "go"}}}, nil
	})
	sess := mapper.NewSession(rec, b.Registry())

	_, err := b.Queue(context.Background(), sess)
	assert.ErrorIs(t, err, mapper.ErrMapper)
}
