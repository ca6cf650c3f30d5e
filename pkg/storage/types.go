// Package storage provides the embedded property graph used by the local
// executor.
//
// The store models what a Gremlin batch touches: labelled vertices and
// directed, labelled edges, each with a property map. Engines hand out
// transactions; everything a batch does happens inside one transaction so a
// failing statement leaves the graph untouched.
//
// Two engines are provided:
//   - MemoryEngine: maps guarded by a mutex, for tests and dry runs
//   - BadgerEngine: persistent storage on BadgerDB
//
// Example Usage:
//
//	engine := storage.NewMemoryEngine()
//	defer engine.Close()
//
//	tx, _ := engine.BeginTransaction()
//	tx.CreateNode(&storage.Node{
//		ID:         "user-1",
//		Label:      "person",
//		Properties: map[string]any{"name": "Alice"},
//	})
//	tx.Commit()
package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidData       = errors.New("invalid data")
	ErrInvalidEdge       = errors.New("invalid edge: start or end node not found")
	ErrStorageClosed     = errors.New("storage closed")
	ErrTransactionClosed = errors.New("transaction already closed")
)

// NodeID is a strongly-typed unique identifier for graph nodes.
type NodeID string

// EdgeID is a strongly-typed unique identifier for graph edges.
type EdgeID string

// NewNodeID generates a random node id.
func NewNodeID() NodeID { return NodeID(uuid.NewString()) }

// NewEdgeID generates a random edge id.
func NewEdgeID() EdgeID { return EdgeID(uuid.NewString()) }

// Node is a labelled vertex.
type Node struct {
	ID         NodeID
	Label      string
	Properties map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Edge is a directed, labelled relationship from StartNode to EndNode.
type Edge struct {
	ID         EdgeID
	StartNode  NodeID
	EndNode    NodeID
	Type       string
	Properties map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Engine hands out transactions over one graph.
type Engine interface {
	BeginTransaction() (Transaction, error)
	Close() error
}

// Transaction is an atomic unit of work. Reads see the transaction's own
// writes. Nothing is visible to other transactions before Commit.
type Transaction interface {
	CreateNode(node *Node) error
	GetNode(id NodeID) (*Node, error)
	UpdateNode(node *Node) error
	// DeleteNode removes the node and every edge touching it.
	DeleteNode(id NodeID) error

	// CreateEdge fails with ErrInvalidEdge when an endpoint does not exist.
	CreateEdge(edge *Edge) error
	GetEdge(id EdgeID) (*Edge, error)
	UpdateEdge(edge *Edge) error
	DeleteEdge(id EdgeID) error

	// NodesByLabel returns nodes with the label, or every node for "".
	NodesByLabel(label string) ([]*Node, error)
	OutgoingEdges(id NodeID) ([]*Edge, error)

	Commit() error
	Rollback() error
}

// TransactionStatus represents the current state of a transaction.
type TransactionStatus string

const (
	TxStatusActive     TransactionStatus = "active"
	TxStatusCommitted  TransactionStatus = "committed"
	TxStatusRolledBack TransactionStatus = "rolled_back"
)

func copyProperties(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func copyNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Properties = copyProperties(n.Properties)
	return &c
}

func copyEdge(e *Edge) *Edge {
	if e == nil {
		return nil
	}
	c := *e
	c.Properties = copyProperties(e.Properties)
	return &c
}

func validateNode(n *Node) error {
	if n == nil {
		return ErrInvalidData
	}
	if n.ID == "" {
		return ErrInvalidID
	}
	return nil
}

func validateEdge(e *Edge) error {
	if e == nil {
		return ErrInvalidData
	}
	if e.ID == "" {
		return ErrInvalidID
	}
	if e.StartNode == "" || e.EndNode == "" {
		return ErrInvalidEdge
	}
	return nil
}
