package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFactory struct {
	name string
	open func(t *testing.T) Engine
}

func engines() []engineFactory {
	return []engineFactory{
		{"memory", func(t *testing.T) Engine {
			return NewMemoryEngine()
		}},
		{"badger", func(t *testing.T) Engine {
			e, err := NewBadgerEngineInMemory()
			require.NoError(t, err)
			return e
		}},
	}
}

func begin(t *testing.T, e Engine) Transaction {
	t.Helper()
	tx, err := e.BeginTransaction()
	require.NoError(t, err)
	return tx
}

func seed(t *testing.T, e Engine) {
	t.Helper()
	tx := begin(t, e)
	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, tx.CreateNode(&Node{ID: "a", Label: "person", Properties: map[string]any{"name": "Ada", "age": int64(36)}, CreatedAt: now}))
	require.NoError(t, tx.CreateNode(&Node{ID: "b", Label: "person", Properties: map[string]any{"name": "Bob"}}))
	require.NoError(t, tx.CreateNode(&Node{ID: "c", Label: "city"}))
	require.NoError(t, tx.CreateEdge(&Edge{ID: "e1", StartNode: "a", EndNode: "b", Type: "knows"}))
	require.NoError(t, tx.CreateEdge(&Edge{ID: "e2", StartNode: "a", EndNode: "c", Type: "lives_in"}))
	require.NoError(t, tx.Commit())
}

// =============================================================================
// Engine behaviour shared by all implementations
// =============================================================================

func TestEngines(t *testing.T) {
	for _, f := range engines() {
		t.Run(f.name, func(t *testing.T) {
			t.Run("create and read", func(t *testing.T) {
				e := f.open(t)
				defer e.Close()
				seed(t, e)

				tx := begin(t, e)
				defer tx.Rollback()

				n, err := tx.GetNode("a")
				require.NoError(t, err)
				assert.Equal(t, "person", n.Label)
				assert.Equal(t, "Ada", n.Properties["name"])
				assert.Equal(t, int64(36), n.Properties["age"])

				people, err := tx.NodesByLabel("person")
				require.NoError(t, err)
				require.Len(t, people, 2)
				assert.Equal(t, NodeID("a"), people[0].ID)

				all, err := tx.NodesByLabel("")
				require.NoError(t, err)
				assert.Len(t, all, 3)

				out, err := tx.OutgoingEdges("a")
				require.NoError(t, err)
				require.Len(t, out, 2)
				assert.Equal(t, "knows", out[0].Type)
			})

			t.Run("duplicates and missing endpoints", func(t *testing.T) {
				e := f.open(t)
				defer e.Close()
				seed(t, e)

				tx := begin(t, e)
				defer tx.Rollback()
				assert.ErrorIs(t, tx.CreateNode(&Node{ID: "a"}), ErrAlreadyExists)
				assert.ErrorIs(t, tx.CreateNode(&Node{}), ErrInvalidID)
				assert.ErrorIs(t, tx.CreateNode(nil), ErrInvalidData)
				assert.ErrorIs(t, tx.CreateEdge(&Edge{ID: "x", StartNode: "a", EndNode: "zzz", Type: "t"}), ErrInvalidEdge)
				_, err := tx.GetNode("zzz")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("read your writes and rollback", func(t *testing.T) {
				e := f.open(t)
				defer e.Close()
				seed(t, e)

				tx := begin(t, e)
				require.NoError(t, tx.CreateNode(&Node{ID: "d", Label: "person"}))
				n, err := tx.GetNode("d")
				require.NoError(t, err)
				assert.Equal(t, NodeID("d"), n.ID)
				require.NoError(t, tx.Rollback())
				assert.ErrorIs(t, tx.Commit(), ErrTransactionClosed)

				check := begin(t, e)
				defer check.Rollback()
				_, err = check.GetNode("d")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("update node and edge", func(t *testing.T) {
				e := f.open(t)
				defer e.Close()
				seed(t, e)

				tx := begin(t, e)
				n, err := tx.GetNode("b")
				require.NoError(t, err)
				n.Properties["name"] = "Robert"
				n.Label = "admin"
				require.NoError(t, tx.UpdateNode(n))

				edge, err := tx.GetEdge("e1")
				require.NoError(t, err)
				edge.Properties["since"] = int64(2020)
				require.NoError(t, tx.UpdateEdge(edge))

				edge.EndNode = "c"
				assert.ErrorIs(t, tx.UpdateEdge(edge), ErrInvalidEdge)
				assert.ErrorIs(t, tx.UpdateNode(&Node{ID: "nope"}), ErrNotFound)
				require.NoError(t, tx.Commit())

				check := begin(t, e)
				defer check.Rollback()
				n, err = check.GetNode("b")
				require.NoError(t, err)
				assert.Equal(t, "Robert", n.Properties["name"])

				people, err := check.NodesByLabel("person")
				require.NoError(t, err)
				assert.Len(t, people, 1)
				admins, err := check.NodesByLabel("admin")
				require.NoError(t, err)
				assert.Len(t, admins, 1)

				edge, err = check.GetEdge("e1")
				require.NoError(t, err)
				assert.Equal(t, int64(2020), edge.Properties["since"])
			})

			t.Run("delete node cascades to edges", func(t *testing.T) {
				e := f.open(t)
				defer e.Close()
				seed(t, e)

				tx := begin(t, e)
				require.NoError(t, tx.DeleteNode("b"))
				_, err := tx.GetEdge("e1")
				assert.ErrorIs(t, err, ErrNotFound)
				assert.ErrorIs(t, tx.DeleteNode("b"), ErrNotFound)
				require.NoError(t, tx.Commit())

				check := begin(t, e)
				defer check.Rollback()
				out, err := check.OutgoingEdges("a")
				require.NoError(t, err)
				require.Len(t, out, 1)
				assert.Equal(t, EdgeID("e2"), out[0].ID)

				require.NoError(t, check.DeleteEdge("e2"))
				out, err = check.OutgoingEdges("a")
				require.NoError(t, err)
				assert.Empty(t, out)
			})

			t.Run("closed engine", func(t *testing.T) {
				e := f.open(t)
				require.NoError(t, e.Close())
				_, err := e.BeginTransaction()
				assert.ErrorIs(t, err, ErrStorageClosed)
			})
		})
	}
}

// =============================================================================
// Implementation specifics
// =============================================================================

func TestMemoryTransactionIsolation(t *testing.T) {
	e := NewMemoryEngine()
	seed(t, e)

	tx := begin(t, e)
	require.NoError(t, tx.CreateNode(&Node{ID: "d"}))
	assert.Equal(t, 3, e.NodeCount(), "pending writes are invisible before commit")
	require.NoError(t, tx.Commit())
	assert.Equal(t, 4, e.NodeCount())
	assert.Equal(t, 2, e.EdgeCount())
}

func TestBadgerPersistence(t *testing.T) {
	dir := t.TempDir()

	e, err := NewBadgerEngine(dir)
	require.NoError(t, err)
	seed(t, e)
	require.NoError(t, e.Close())

	reopened, err := NewBadgerEngine(dir)
	require.NoError(t, err)
	defer reopened.Close()

	tx := begin(t, reopened)
	defer tx.Rollback()
	n, err := tx.GetNode("a")
	require.NoError(t, err)
	assert.Equal(t, int64(36), n.Properties["age"])
	assert.False(t, n.CreatedAt.IsZero())
}

func TestKeyHelpers(t *testing.T) {
	key := labelIndexKey("person", "n1")
	assert.Equal(t, "n1", suffixAfterSeparator(key))
	assert.Equal(t, "e1", suffixAfterSeparator(adjacencyKey(prefixOutgoingIndex, "n1", "e1")))
	assert.Equal(t, "", suffixAfterSeparator([]byte{prefixNode}))

	assert.Equal(t, time.Time{}, microsToTime(0))
	assert.Equal(t, int64(0), timeToMicros(time.Time{}))
}
