package mapper

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/nornicogm/pkg/entity"
	"github.com/orneryd/nornicogm/pkg/executor"
	"github.com/orneryd/nornicogm/pkg/script"
	"github.com/orneryd/nornicogm/pkg/storage"
)

func findPeople() script.Statement {
	return script.Statement{Op: script.OpFindVertices, Label: "person"}
}

func localSession(t *testing.T, policies ...Policy) (*Session, *storage.MemoryEngine) {
	t.Helper()
	engine := storage.NewMemoryEngine()
	t.Cleanup(func() { _ = engine.Close() })
	return newTestSession(t, executor.NewLocal(engine, nil), policies...), engine
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	sess, engine := localSession(t)

	ada := person(map[string]any{"name": "Ada", "age": 36})
	bob := person(map[string]any{"name": "Bob"})
	edge, err := sess.Connect(ada, bob, "", map[string]any{"since": 1843}, knowsSchema)
	require.NoError(t, err)

	before := ada.Data()
	_, err = sess.Save(ctx, edge)
	require.NoError(t, err)

	res, err := sess.Send(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, engine.NodeCount())
	assert.Equal(t, 1, engine.EdgeCount())

	// Every entity got its id back and is clean again.
	for _, e := range []entity.Entity{ada, bob, edge} {
		assert.True(t, e.HasID(), e.Type())
		assert.False(t, e.Dirty(), e.Type())
	}
	assert.Equal(t, "knows", edge.Label())
	assert.Equal(t, int64(1843), edge.Get("since"))
	assert.Equal(t, ada.ID(), edge.OutV().ID())

	after := ada.Data()
	delete(before, entity.FieldID)
	delete(after, entity.FieldID)
	assert.True(t, cmp.Equal(before, after), cmp.Diff(before, after))

	// The result view holds the saved instances, and rebuilds from rows.
	require.Equal(t, 3, res.Len())
	last, ok := res.Last()
	require.True(t, ok)
	assert.Same(t, edge, last)

	res.Forget(0)
	rebuilt, ok := res.First()
	require.True(t, ok)
	assert.NotSame(t, ada, rebuilt)
	assert.Equal(t, "person", rebuilt.Type())
	assert.Equal(t, ada.ID(), rebuilt.ID())
	assert.True(t, cmp.Equal(ada.Data(), rebuilt.Data()), cmp.Diff(ada.Data(), rebuilt.Data()))
}

func TestLocalSecondSaveIsLookup(t *testing.T) {
	ctx := context.Background()
	sess, _ := localSession(t)

	ada := person(map[string]any{"name": "Ada"})
	_, err := sess.Save(ctx, ada)
	require.NoError(t, err)
	_, err = sess.Send(ctx)
	require.NoError(t, err)

	_, err = sess.Save(ctx, ada)
	require.NoError(t, err)
	assert.Equal(t, "ogm_var_1 = g.V(person_1_id).next()", fragments(sess)[0])
	_, params := sess.Pending()
	assert.Equal(t, ada.ID(), params["person_1_id"])

	_, err = sess.Send(ctx)
	require.NoError(t, err)

	ada.Set("age", 37)
	_, err = sess.Save(ctx, ada)
	require.NoError(t, err)
	assert.Contains(t, fragments(sess)[0], ".property('age', person_1_age)")
	_, err = sess.Send(ctx)
	require.NoError(t, err)
	assert.False(t, ada.Dirty())
	assert.Equal(t, int64(37), ada.Get("age"))
	assert.Equal(t, fixedNow, ada.Get(entity.FieldModified))
}

func TestLocalUniquenessUpsert(t *testing.T) {
	ctx := context.Background()
	sess, engine := localSession(t, Policy{Type: "person", UniqueFields: []string{"name"}})

	first := person(map[string]any{"name": "Ada"})
	_, err := sess.Save(ctx, first)
	require.NoError(t, err)
	_, err = sess.Send(ctx)
	require.NoError(t, err)

	twin := person(map[string]any{"name": "Ada"})
	_, err = sess.Save(ctx, twin)
	require.NoError(t, err)
	_, err = sess.Send(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.ID(), twin.ID())
	assert.Equal(t, 1, engine.NodeCount())

	other := person(map[string]any{"name": "Grace"})
	_, err = sess.Save(ctx, other)
	require.NoError(t, err)
	_, err = sess.Send(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), other.ID())
	assert.Equal(t, 2, engine.NodeCount())
}

func TestLocalUniqueEdge(t *testing.T) {
	ctx := context.Background()
	sess, engine := localSession(t, Policy{Type: "knows", UniqueEdge: true})

	a := person(map[string]any{"name": "a"})
	b := person(map[string]any{"name": "b"})
	e1, err := sess.Connect(a, b, "", nil, knowsSchema)
	require.NoError(t, err)
	_, err = sess.Save(ctx, e1)
	require.NoError(t, err)
	_, err = sess.Send(ctx)
	require.NoError(t, err)

	e2, err := sess.Connect(a, b, "", nil, knowsSchema)
	require.NoError(t, err)
	_, err = sess.Save(ctx, e2)
	require.NoError(t, err)
	_, err = sess.Send(ctx)
	require.NoError(t, err)

	assert.Equal(t, e1.ID(), e2.ID())
	assert.Equal(t, 1, engine.EdgeCount())
}

func TestLocalDeleteAndQuery(t *testing.T) {
	ctx := context.Background()
	var deleted []any
	sess, engine := localSession(t, Policy{
		Type:     "person",
		OnDelete: func(e entity.Entity) { deleted = append(deleted, e.ID()) },
	})

	ada := person(map[string]any{"name": "Ada"})
	bob := person(map[string]any{"name": "Bob"})
	for _, v := range []*entity.Vertex{ada, bob} {
		_, err := sess.Save(ctx, v)
		require.NoError(t, err)
	}
	_, err := sess.Send(ctx)
	require.NoError(t, err)

	found, err := sess.Query(ctx, findPeople())
	require.NoError(t, err)
	assert.Equal(t, 2, found.Len())
	names := []any{}
	for _, d := range found.Data() {
		names = append(names, d["name"])
	}
	assert.ElementsMatch(t, []any{"Ada", "Bob"}, names)

	require.NoError(t, sess.Delete(ada))
	_, err = sess.Send(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{ada.ID()}, deleted)
	assert.Equal(t, 1, engine.NodeCount())

	found, err = sess.Query(ctx, findPeople())
	require.NoError(t, err)
	require.Equal(t, 1, found.Len())
	only, ok := found.First()
	require.True(t, ok)
	assert.Equal(t, "Bob", only.Get("name"))
	assert.False(t, only.Dirty())
}

func TestLocalStartFromEntity(t *testing.T) {
	ctx := context.Background()
	sess, _ := localSession(t)

	ada := person(map[string]any{"name": "Ada"})
	_, err := sess.Start(ada)
	assert.ErrorIs(t, err, ErrEntity)

	edge, err := sess.Connect(ada, person(map[string]any{"name": "Bob"}), "", nil, knowsSchema)
	require.NoError(t, err)
	_, err = sess.Save(ctx, edge)
	require.NoError(t, err)
	_, err = sess.Send(ctx)
	require.NoError(t, err)

	st, err := sess.Start(ada)
	require.NoError(t, err)
	assert.Equal(t, script.ElementVertex, st.Element)
	found, err := sess.Query(ctx, st)
	require.NoError(t, err)
	require.Equal(t, 1, found.Len())
	got, ok := found.First()
	require.True(t, ok)
	assert.Equal(t, ada.ID(), got.ID())
	assert.Equal(t, "Ada", got.Get("name"))

	st, err = sess.Start(edge)
	require.NoError(t, err)
	assert.Equal(t, script.ElementEdge, st.Element)
	found, err = sess.Query(ctx, st)
	require.NoError(t, err)
	got, ok = found.First()
	require.True(t, ok)
	assert.Equal(t, "knows", got.Type())
}

func TestLocalFailedBatch(t *testing.T) {
	ctx := context.Background()
	sess, engine := localSession(t)

	ghost := person(map[string]any{"_id": "missing", "name": "Ghost"})
	called := false
	_, err := sess.Save(ctx, person(map[string]any{"name": "Ada"}))
	require.NoError(t, err)
	_, err = sess.Save(ctx, ghost, WithCallbacks(func(entity.Entity) { called = true }))
	require.NoError(t, err)

	_, err = sess.Send(ctx)
	assert.ErrorIs(t, err, executor.ErrNoSuchElement)
	assert.False(t, called)
	assert.Equal(t, 0, engine.NodeCount(), "a failing statement rolls the whole batch back")
}
