package storage

import (
	"sort"
	"sync"
	"time"
)

// MemoryTransaction buffers writes against a MemoryEngine.
//
// Pending node and edge states give read-your-writes; deletions are tracked
// separately so a deleted committed node stays invisible to the transaction.
// Commit applies everything under the engine's write lock.
type MemoryTransaction struct {
	mu sync.Mutex

	StartTime time.Time
	Status    TransactionStatus

	engine *MemoryEngine

	pendingNodes map[NodeID]*Node
	pendingEdges map[EdgeID]*Edge
	deletedNodes map[NodeID]struct{}
	deletedEdges map[EdgeID]struct{}
}

func newMemoryTransaction(engine *MemoryEngine) *MemoryTransaction {
	return &MemoryTransaction{
		StartTime:    time.Now(),
		Status:       TxStatusActive,
		engine:       engine,
		pendingNodes: make(map[NodeID]*Node),
		pendingEdges: make(map[EdgeID]*Edge),
		deletedNodes: make(map[NodeID]struct{}),
		deletedEdges: make(map[EdgeID]struct{}),
	}
}

func (tx *MemoryTransaction) active() error {
	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}
	return nil
}

// node resolves a node through the pending state. Caller holds tx.mu.
func (tx *MemoryTransaction) node(id NodeID) (*Node, bool) {
	if _, deleted := tx.deletedNodes[id]; deleted {
		return nil, false
	}
	if n, ok := tx.pendingNodes[id]; ok {
		return n, true
	}
	return tx.engine.getNode(id)
}

func (tx *MemoryTransaction) edge(id EdgeID) (*Edge, bool) {
	if _, deleted := tx.deletedEdges[id]; deleted {
		return nil, false
	}
	if e, ok := tx.pendingEdges[id]; ok {
		return e, true
	}
	return tx.engine.getEdge(id)
}

// CreateNode buffers a new node.
func (tx *MemoryTransaction) CreateNode(node *Node) error {
	if err := validateNode(node); err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	if _, exists := tx.node(node.ID); exists {
		return ErrAlreadyExists
	}
	delete(tx.deletedNodes, node.ID)
	tx.pendingNodes[node.ID] = copyNode(node)
	return nil
}

// GetNode returns a copy of the node.
func (tx *MemoryTransaction) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return nil, err
	}
	n, ok := tx.node(id)
	if !ok {
		return nil, ErrNotFound
	}
	return copyNode(n), nil
}

// UpdateNode replaces an existing node.
func (tx *MemoryTransaction) UpdateNode(node *Node) error {
	if err := validateNode(node); err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	if _, ok := tx.node(node.ID); !ok {
		return ErrNotFound
	}
	tx.pendingNodes[node.ID] = copyNode(node)
	return nil
}

// DeleteNode removes the node and every edge touching it.
func (tx *MemoryTransaction) DeleteNode(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	if _, ok := tx.node(id); !ok {
		return ErrNotFound
	}
	for _, e := range tx.edges() {
		if e.StartNode == id || e.EndNode == id {
			tx.deleteEdge(e.ID)
		}
	}
	delete(tx.pendingNodes, id)
	tx.deletedNodes[id] = struct{}{}
	return nil
}

// CreateEdge buffers a new edge. Both endpoints must exist.
func (tx *MemoryTransaction) CreateEdge(edge *Edge) error {
	if err := validateEdge(edge); err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	if _, exists := tx.edge(edge.ID); exists {
		return ErrAlreadyExists
	}
	if _, ok := tx.node(edge.StartNode); !ok {
		return ErrInvalidEdge
	}
	if _, ok := tx.node(edge.EndNode); !ok {
		return ErrInvalidEdge
	}
	delete(tx.deletedEdges, edge.ID)
	tx.pendingEdges[edge.ID] = copyEdge(edge)
	return nil
}

// GetEdge returns a copy of the edge.
func (tx *MemoryTransaction) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return nil, err
	}
	e, ok := tx.edge(id)
	if !ok {
		return nil, ErrNotFound
	}
	return copyEdge(e), nil
}

// UpdateEdge replaces an existing edge. Endpoints cannot move.
func (tx *MemoryTransaction) UpdateEdge(edge *Edge) error {
	if err := validateEdge(edge); err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	existing, ok := tx.edge(edge.ID)
	if !ok {
		return ErrNotFound
	}
	if existing.StartNode != edge.StartNode || existing.EndNode != edge.EndNode {
		return ErrInvalidEdge
	}
	tx.pendingEdges[edge.ID] = copyEdge(edge)
	return nil
}

// DeleteEdge removes an edge.
func (tx *MemoryTransaction) DeleteEdge(id EdgeID) error {
	if id == "" {
		return ErrInvalidID
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	if _, ok := tx.edge(id); !ok {
		return ErrNotFound
	}
	tx.deleteEdge(id)
	return nil
}

func (tx *MemoryTransaction) deleteEdge(id EdgeID) {
	delete(tx.pendingEdges, id)
	tx.deletedEdges[id] = struct{}{}
}

// NodesByLabel returns matching nodes ordered by id.
func (tx *MemoryTransaction) NodesByLabel(label string) ([]*Node, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return nil, err
	}

	var out []*Node
	for _, n := range tx.nodes() {
		if label == "" || n.Label == label {
			out = append(out, copyNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// OutgoingEdges returns the node's outgoing edges ordered by id.
func (tx *MemoryTransaction) OutgoingEdges(id NodeID) ([]*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return nil, err
	}

	var out []*Edge
	for _, e := range tx.edges() {
		if e.StartNode == id {
			out = append(out, copyEdge(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// nodes merges committed and pending nodes. Caller holds tx.mu.
func (tx *MemoryTransaction) nodes() []*Node {
	var out []*Node
	for _, n := range tx.engine.snapshotNodes() {
		if _, deleted := tx.deletedNodes[n.ID]; deleted {
			continue
		}
		if _, pending := tx.pendingNodes[n.ID]; pending {
			continue
		}
		out = append(out, n)
	}
	for _, n := range tx.pendingNodes {
		out = append(out, n)
	}
	return out
}

func (tx *MemoryTransaction) edges() []*Edge {
	var out []*Edge
	for _, e := range tx.engine.snapshotEdges() {
		if _, deleted := tx.deletedEdges[e.ID]; deleted {
			continue
		}
		if _, pending := tx.pendingEdges[e.ID]; pending {
			continue
		}
		out = append(out, e)
	}
	for _, e := range tx.pendingEdges {
		out = append(out, e)
	}
	return out
}

// Commit applies buffered writes atomically.
func (tx *MemoryTransaction) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}

	m := tx.engine
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStorageClosed
	}

	for id := range tx.deletedEdges {
		delete(m.edges, id)
	}
	for id := range tx.deletedNodes {
		delete(m.nodes, id)
	}
	for id, n := range tx.pendingNodes {
		m.nodes[id] = n
	}
	for id, e := range tx.pendingEdges {
		m.edges[id] = e
	}
	tx.Status = TxStatusCommitted
	return nil
}

// Rollback discards buffered writes.
func (tx *MemoryTransaction) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	tx.pendingNodes = nil
	tx.pendingEdges = nil
	tx.Status = TxStatusRolledBack
	return nil
}
