package storage

import (
	"sync"
)

// MemoryEngine keeps the graph in maps. Safe for concurrent use; each
// transaction buffers its writes and applies them under the write lock on
// Commit.
type MemoryEngine struct {
	mu     sync.RWMutex
	nodes  map[NodeID]*Node
	edges  map[EdgeID]*Edge
	closed bool
}

// NewMemoryEngine creates an empty in-memory graph.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		nodes: make(map[NodeID]*Node),
		edges: make(map[EdgeID]*Edge),
	}
}

// BeginTransaction starts a buffered transaction.
func (m *MemoryEngine) BeginTransaction() (Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStorageClosed
	}
	return newMemoryTransaction(m), nil
}

// Close marks the engine closed. Data is discarded.
func (m *MemoryEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.nodes = make(map[NodeID]*Node)
	m.edges = make(map[EdgeID]*Edge)
	return nil
}

// NodeCount returns the number of committed nodes.
func (m *MemoryEngine) NodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// EdgeCount returns the number of committed edges.
func (m *MemoryEngine) EdgeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.edges)
}

func (m *MemoryEngine) getNode(id NodeID) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	return copyNode(n), ok
}

func (m *MemoryEngine) getEdge(id EdgeID) (*Edge, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.edges[id]
	return copyEdge(e), ok
}

func (m *MemoryEngine) snapshotNodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, copyNode(n))
	}
	return out
}

func (m *MemoryEngine) snapshotEdges() []*Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Edge, 0, len(m.edges))
	for _, e := range m.edges {
		out = append(out, copyEdge(e))
	}
	return out
}
