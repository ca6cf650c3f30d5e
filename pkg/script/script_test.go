package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, b *Builder, st Statement) string {
	t.Helper()
	out, err := b.Render(st)
	require.NoError(t, err)
	return out
}

// =============================================================================
// Bindings
// =============================================================================

func TestBindings(t *testing.T) {
	b := NewBindings()

	assert.Equal(t, "person_1_name", b.Bind("person_1_name", "Ada"))
	assert.Equal(t, "person_1_name_2", b.Bind("person_1_name", "Grace"))
	assert.Equal(t, "person_1_name_3", b.Bind("person_1_name", "Linus"))
	assert.Equal(t, "p_1st", b.Bind("1st", 1))
	assert.Equal(t, "a_b_c", b.Bind("A-b.c", 1))
	assert.Equal(t, "p_", b.Bind("", 1))

	assert.Equal(t, 6, b.Len())
	assert.Equal(t, "Grace", b.Params()["person_1_name_2"])
	assert.Equal(t, []string{"person_1_name", "person_1_name_2", "person_1_name_3", "p_1st", "a_b_c", "p_"}, b.Names())

	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, "person_1_name", b.Bind("person_1_name", "again"))
}

// =============================================================================
// Rendering
// =============================================================================

func TestRenderAddVertex(t *testing.T) {
	b := NewBuilder("", nil)
	out := render(t, b, Statement{
		Op:       OpAddVertex,
		Variable: "ogm_var_1",
		Label:    "person",
		Scope:    "person_1",
		Properties: []Property{
			{Key: "name", Value: "Ada"},
			{Key: "nick", Value: nil},
			{Key: "age", Value: int64(36)},
		},
	})

	assert.Equal(t,
		"ogm_var_1 = g.addV(person_1_label).property('name', person_1_name).property('age', person_1_age).next()",
		out)
	assert.Equal(t, map[string]any{
		"person_1_label": "person",
		"person_1_name":  "Ada",
		"person_1_age":   int64(36),
	}, b.Params())
}

func TestRenderNestedLiterals(t *testing.T) {
	b := NewBuilder("graph", nil)
	out := render(t, b, Statement{
		Op:    OpAddVertex,
		Label: "doc",
		Scope: "doc_1",
		Properties: []Property{
			{Key: "meta", Value: map[string]any{"b": []any{1, 2}, "a": "x"}},
			{Key: "empty", Value: map[string]any{}},
		},
	})

	assert.Equal(t,
		"graph.addV(doc_1_label).property('meta', ['a': doc_1_meta_a, 'b': [doc_1_meta_b_0, doc_1_meta_b_1]]).property('empty', [:]).next()",
		out)
	params := b.Params()
	assert.Equal(t, "x", params["doc_1_meta_a"])
	assert.Equal(t, 2, params["doc_1_meta_b_1"])
}

func TestRenderAddEdge(t *testing.T) {
	t.Run("variables", func(t *testing.T) {
		b := NewBuilder("", nil)
		out := render(t, b, Statement{
			Op:         OpAddEdge,
			Variable:   "ogm_var_3",
			Label:      "knows",
			Scope:      "generic_edge_1",
			Out:        Var("ogm_var_1"),
			In:         Var("ogm_var_2"),
			Properties: []Property{{Key: "since", Value: int64(2020)}},
		})
		assert.Equal(t,
			"ogm_var_3 = ogm_var_1.addEdge(generic_edge_1_label, ogm_var_2, 'since', generic_edge_1_since)",
			out)
	})

	t.Run("ids", func(t *testing.T) {
		b := NewBuilder("", nil)
		out := render(t, b, Statement{
			Op:    OpAddEdge,
			Label: "knows",
			Scope: "e_1",
			Out:   ID(int64(1)),
			In:    ID("v2"),
		})
		assert.Equal(t, "g.V(e_1_out).next().addEdge(e_1_label, g.V(e_1_in).next())", out)
		assert.Equal(t, int64(1), b.Params()["e_1_out"])
	})

	t.Run("missing endpoints", func(t *testing.T) {
		_, err := NewBuilder("", nil).Render(Statement{Op: OpAddEdge, Label: "x", Out: Var("a")})
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("missing label", func(t *testing.T) {
		_, err := NewBuilder("", nil).Render(Statement{Op: OpAddEdge, Out: Var("a"), In: Var("b")})
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestRenderUpdate(t *testing.T) {
	b := NewBuilder("", nil)
	out := render(t, b, Statement{
		Op:         OpUpdate,
		Variable:   "ogm_var_1",
		ID:         "v1",
		Scope:      "person_1",
		Properties: []Property{{Key: "name", Value: "Grace"}, {Key: "nick", Value: nil}},
		Remove:     []string{"old"},
	})
	assert.Equal(t,
		"ogm_var_1 = g.V(person_1_id).property('name', person_1_name).sideEffect(__.properties('nick', 'old').drop()).next()",
		out)

	edge := render(t, NewBuilder("", nil), Statement{
		Op:         OpUpdate,
		Element:    ElementEdge,
		ID:         "e1",
		Scope:      "knows_1",
		Properties: []Property{{Key: "w", Value: 1.5}},
	})
	assert.Equal(t, "g.E(knows_1_id).property('w', knows_1_w).next()", edge)
}

func TestRenderLookupDelete(t *testing.T) {
	b := NewBuilder("", nil)
	assert.Equal(t, "ogm_var_2 = g.V(p_1_id).next()",
		render(t, b, Statement{Op: OpLookup, Variable: "ogm_var_2", ID: "v1", Scope: "p_1"}))
	assert.Equal(t, "g.E(p_2_id).drop().iterate()",
		render(t, b, Statement{Op: OpDelete, Element: ElementEdge, ID: "e1", Scope: "p_2"}))

	_, err := b.Render(Statement{Op: OpLookup})
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = b.Render(Statement{Op: OpDelete, ID: ""})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRenderFind(t *testing.T) {
	b := NewBuilder("", nil)
	assert.Equal(t,
		"g.V().hasLabel(u_label).has('email', u_email).limit(u_limit).toList()",
		render(t, b, Statement{
			Op:    OpFindVertices,
			Label: "user",
			Match: []Property{{Key: "email", Value: "a@b.c"}},
			Limit: 1,
			Scope: "u",
		}))

	assert.Equal(t,
		"g.V(k_out).outE(k_label).where(__.inV().hasId(k_in)).limit(k_limit).toList()",
		render(t, b, Statement{
			Op:    OpFindEdges,
			Label: "knows",
			Out:   ID("v1"),
			In:    ID("v2"),
			Limit: 1,
			Scope: "k",
		}))

	_, err := b.Render(Statement{Op: OpFindEdges, Out: ID("v1")})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRenderCommitReturn(t *testing.T) {
	b := NewBuilder("", nil)
	assert.Equal(t, "g.tx().commit()", render(t, b, Statement{Op: OpCommit}))
	assert.Equal(t, "['ogm_var_1': ogm_var_1, 'ogm_var_2': ogm_var_2]",
		render(t, b, Statement{Op: OpReturn, Returns: []string{"ogm_var_1", "ogm_var_2"}}))
	assert.Equal(t, "[:]", render(t, b, Statement{Op: OpReturn}))

	_, err := b.Render(Statement{Op: "bogus"})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestQuotedKeysAreEscaped(t *testing.T) {
	b := NewBuilder("", nil)
	out := render(t, b, Statement{
		Op:         OpAddVertex,
		Label:      "x",
		Scope:      "x_1",
		Properties: []Property{{Key: "it's", Value: "v"}},
	})
	assert.Equal(t, `g.addV(x_1_label).property('it\'s', x_1_it_s).next()`, out)
}

// =============================================================================
// Helpers
// =============================================================================

func TestJoinAssign(t *testing.T) {
	assert.Equal(t, "a;\nb", Join([]string{"a", "b"}))
	assert.Equal(t, "x = y", Assign("x", "y"))
	assert.Equal(t, "y", Assign("", "y"))
}

func TestInterpolate(t *testing.T) {
	script := "g.addV(p_1).property('n', p_10).property('s', p_1_s)"
	out := Interpolate(script, map[string]any{
		"p_1":   "person",
		"p_10":  int64(10),
		"p_1_s": nil,
	})
	assert.Equal(t, "g.addV('person').property('n', 10).property('s', null)", out)
	assert.Equal(t, "g.V()", Interpolate("g.V()", nil))
}

func TestRefIsZero(t *testing.T) {
	assert.True(t, Ref{}.IsZero())
	assert.True(t, ID("").IsZero())
	assert.False(t, ID(0).IsZero())
	assert.False(t, Var("v").IsZero())
	assert.Equal(t, "v", Var("v").String())
	assert.Equal(t, "7", ID(7).String())
}
