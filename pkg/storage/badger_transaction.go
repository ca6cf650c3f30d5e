package storage

import (
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// BadgerTransaction runs every operation inside one badger read-write
// transaction. Badger provides read-your-writes natively.
type BadgerTransaction struct {
	mu     sync.Mutex
	engine *BadgerEngine
	txn    *badger.Txn
	Status TransactionStatus
}

func (tx *BadgerTransaction) active() error {
	if tx.Status != TxStatusActive {
		return ErrTransactionClosed
	}
	return nil
}

func (tx *BadgerTransaction) getNode(id NodeID) (*Node, error) {
	item, err := tx.txn.Get(nodeKey(id))
	if isKeyNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var node *Node
	err = item.Value(func(val []byte) error {
		var decodeErr error
		node, decodeErr = decodeNode(val)
		return decodeErr
	})
	return node, err
}

func (tx *BadgerTransaction) getEdge(id EdgeID) (*Edge, error) {
	item, err := tx.txn.Get(edgeKey(id))
	if isKeyNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var edge *Edge
	err = item.Value(func(val []byte) error {
		var decodeErr error
		edge, decodeErr = decodeEdge(val)
		return decodeErr
	})
	return edge, err
}

func (tx *BadgerTransaction) putNode(node *Node) error {
	data, err := encodeNode(node)
	if err != nil {
		return err
	}
	if err := tx.txn.Set(nodeKey(node.ID), data); err != nil {
		return err
	}
	return tx.txn.Set(labelIndexKey(node.Label, node.ID), []byte{})
}

func (tx *BadgerTransaction) putEdge(edge *Edge) error {
	data, err := encodeEdge(edge)
	if err != nil {
		return err
	}
	if err := tx.txn.Set(edgeKey(edge.ID), data); err != nil {
		return err
	}
	if err := tx.txn.Set(adjacencyKey(prefixOutgoingIndex, edge.StartNode, edge.ID), []byte{}); err != nil {
		return err
	}
	return tx.txn.Set(adjacencyKey(prefixIncomingIndex, edge.EndNode, edge.ID), []byte{})
}

// CreateNode stores a new node.
func (tx *BadgerTransaction) CreateNode(node *Node) error {
	if err := validateNode(node); err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	if _, err := tx.getNode(node.ID); err == nil {
		return ErrAlreadyExists
	} else if err != ErrNotFound {
		return err
	}
	return tx.putNode(node)
}

// GetNode retrieves a node by ID.
func (tx *BadgerTransaction) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return nil, err
	}
	return tx.getNode(id)
}

// UpdateNode replaces an existing node, moving its label index entry when
// the label changed.
func (tx *BadgerTransaction) UpdateNode(node *Node) error {
	if err := validateNode(node); err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	existing, err := tx.getNode(node.ID)
	if err != nil {
		return err
	}
	if existing.Label != node.Label {
		if err := tx.txn.Delete(labelIndexKey(existing.Label, node.ID)); err != nil {
			return err
		}
	}
	return tx.putNode(node)
}

// DeleteNode removes a node and all its edges.
func (tx *BadgerTransaction) DeleteNode(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	node, err := tx.getNode(id)
	if err != nil {
		return err
	}

	for _, prefix := range []byte{prefixOutgoingIndex, prefixIncomingIndex} {
		for _, edgeID := range tx.scanSuffixes(adjacencyPrefix(prefix, id)) {
			if err := tx.deleteEdge(EdgeID(edgeID)); err != nil && err != ErrNotFound {
				return err
			}
		}
	}

	if err := tx.txn.Delete(labelIndexKey(node.Label, id)); err != nil {
		return err
	}
	return tx.txn.Delete(nodeKey(id))
}

// CreateEdge stores a new edge between two existing nodes.
func (tx *BadgerTransaction) CreateEdge(edge *Edge) error {
	if err := validateEdge(edge); err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	if _, err := tx.getEdge(edge.ID); err == nil {
		return ErrAlreadyExists
	} else if err != ErrNotFound {
		return err
	}
	for _, id := range []NodeID{edge.StartNode, edge.EndNode} {
		if _, err := tx.getNode(id); err == ErrNotFound {
			return ErrInvalidEdge
		} else if err != nil {
			return err
		}
	}
	return tx.putEdge(edge)
}

// GetEdge retrieves an edge by ID.
func (tx *BadgerTransaction) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return nil, err
	}
	return tx.getEdge(id)
}

// UpdateEdge replaces an existing edge. Endpoints cannot move.
func (tx *BadgerTransaction) UpdateEdge(edge *Edge) error {
	if err := validateEdge(edge); err != nil {
		return err
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	existing, err := tx.getEdge(edge.ID)
	if err != nil {
		return err
	}
	if existing.StartNode != edge.StartNode || existing.EndNode != edge.EndNode {
		return ErrInvalidEdge
	}
	return tx.putEdge(edge)
}

// DeleteEdge removes an edge and its adjacency entries.
func (tx *BadgerTransaction) DeleteEdge(id EdgeID) error {
	if id == "" {
		return ErrInvalidID
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	return tx.deleteEdge(id)
}

func (tx *BadgerTransaction) deleteEdge(id EdgeID) error {
	edge, err := tx.getEdge(id)
	if err != nil {
		return err
	}
	if err := tx.txn.Delete(adjacencyKey(prefixOutgoingIndex, edge.StartNode, id)); err != nil {
		return err
	}
	if err := tx.txn.Delete(adjacencyKey(prefixIncomingIndex, edge.EndNode, id)); err != nil {
		return err
	}
	return tx.txn.Delete(edgeKey(id))
}

// NodesByLabel returns matching nodes ordered by id. An empty label scans
// every node.
func (tx *BadgerTransaction) NodesByLabel(label string) ([]*Node, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return nil, err
	}

	var ids []string
	if label == "" {
		ids = tx.scanKeys([]byte{prefixNode})
	} else {
		ids = tx.scanSuffixes(labelIndexPrefix(label))
	}

	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		node, err := tx.getNode(NodeID(id))
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// OutgoingEdges returns the node's outgoing edges ordered by id.
func (tx *BadgerTransaction) OutgoingEdges(id NodeID) ([]*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return nil, err
	}

	var out []*Edge
	for _, edgeID := range tx.scanSuffixes(adjacencyPrefix(prefixOutgoingIndex, id)) {
		edge, err := tx.getEdge(EdgeID(edgeID))
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, edge)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// scanSuffixes collects the id part of every index key under prefix.
func (tx *BadgerTransaction) scanSuffixes(prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	var out []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		out = append(out, suffixAfterSeparator(it.Item().KeyCopy(nil)))
	}
	return out
}

// scanKeys collects the id part of every primary key under a one-byte
// prefix.
func (tx *BadgerTransaction) scanKeys(prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	var out []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().KeyCopy(nil)
		out = append(out, string(key[1:]))
	}
	return out
}

// Commit persists the transaction.
func (tx *BadgerTransaction) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	if err := tx.txn.Commit(); err != nil {
		tx.Status = TxStatusRolledBack
		return err
	}
	tx.Status = TxStatusCommitted
	return nil
}

// Rollback discards the transaction.
func (tx *BadgerTransaction) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.active(); err != nil {
		return err
	}
	tx.txn.Discard()
	tx.Status = TxStatusRolledBack
	return nil
}
