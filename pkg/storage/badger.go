package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/nornicogm/pkg/convert"
)

// Key prefixes for BadgerDB storage organization
// Using single-byte prefixes for efficiency
const (
	prefixNode          = byte(0x01) // nodes:nodeID -> Node
	prefixEdge          = byte(0x02) // edges:edgeID -> Edge
	prefixLabelIndex    = byte(0x03) // label:labelName:nodeID -> []byte{}
	prefixOutgoingIndex = byte(0x04) // outgoing:nodeID:edgeID -> []byte{}
	prefixIncomingIndex = byte(0x05) // incoming:nodeID:edgeID -> []byte{}
)

// BadgerEngine provides persistent storage using BadgerDB.
//
// Key Structure:
//   - Nodes: 0x01 + nodeID -> JSON(Node)
//   - Edges: 0x02 + edgeID -> JSON(Edge)
//   - Label Index: 0x03 + label + 0x00 + nodeID -> empty
//   - Outgoing Index: 0x04 + nodeID + 0x00 + edgeID -> empty
//   - Incoming Index: 0x05 + nodeID + 0x00 + edgeID -> empty
//
// Each Transaction wraps one read-write badger.Txn, so Commit is atomic and
// Rollback discards everything.
type BadgerEngine struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	SyncWrites bool

	// Logger receives badger's internal logs. Nil silences them.
	Logger badger.Logger
}

// NewBadgerEngine opens (or creates) a database in dataDir.
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerEngineInMemory creates an in-memory BadgerDB for testing.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{InMemory: true})
}

// NewBadgerEngineWithOptions creates a BadgerEngine with custom configuration.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	dir := opts.DataDir
	if opts.InMemory {
		dir = ""
	}
	badgerOpts := badger.DefaultOptions(dir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(opts.Logger)

	// Small tables; a development store rarely holds much.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &BadgerEngine{db: db}, nil
}

// BeginTransaction starts a read-write transaction.
func (b *BadgerEngine) BeginTransaction() (Transaction, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrStorageClosed
	}
	return &BadgerTransaction{
		engine: b,
		txn:    b.db.NewTransaction(true),
		Status: TxStatusActive,
	}, nil
}

// Close closes the database.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func nodeKey(id NodeID) []byte {
	return append([]byte{prefixNode}, []byte(id)...)
}

func edgeKey(id EdgeID) []byte {
	return append([]byte{prefixEdge}, []byte(id)...)
}

// Format: prefix + label + 0x00 + nodeID
func labelIndexKey(label string, nodeID NodeID) []byte {
	key := labelIndexPrefix(label)
	return append(key, []byte(nodeID)...)
}

func labelIndexPrefix(label string) []byte {
	key := make([]byte, 0, 2+len(label))
	key = append(key, prefixLabelIndex)
	key = append(key, []byte(label)...)
	return append(key, 0x00)
}

// Format: prefix + nodeID + 0x00 + edgeID
func adjacencyKey(prefix byte, nodeID NodeID, edgeID EdgeID) []byte {
	key := adjacencyPrefix(prefix, nodeID)
	return append(key, []byte(edgeID)...)
}

func adjacencyPrefix(prefix byte, nodeID NodeID) []byte {
	key := make([]byte, 0, 2+len(nodeID))
	key = append(key, prefix)
	key = append(key, []byte(nodeID)...)
	return append(key, 0x00)
}

// suffixAfterSeparator returns what follows the first 0x00 in an index key.
func suffixAfterSeparator(key []byte) string {
	if i := bytes.IndexByte(key, 0x00); i >= 0 {
		return string(key[i+1:])
	}
	return ""
}

// ============================================================================
// Serialization
// ============================================================================

type serializableNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
	CreatedAt  int64          `json:"createdAt"`
	UpdatedAt  int64          `json:"updatedAt"`
}

type serializableEdge struct {
	ID         string         `json:"id"`
	StartNode  string         `json:"startNode"`
	EndNode    string         `json:"endNode"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	CreatedAt  int64          `json:"createdAt"`
	UpdatedAt  int64          `json:"updatedAt"`
}

func encodeNode(n *Node) ([]byte, error) {
	return json.Marshal(serializableNode{
		ID:         string(n.ID),
		Label:      n.Label,
		Properties: n.Properties,
		CreatedAt:  timeToMicros(n.CreatedAt),
		UpdatedAt:  timeToMicros(n.UpdatedAt),
	})
}

func decodeNode(data []byte) (*Node, error) {
	var sn serializableNode
	if err := decodeJSON(data, &sn); err != nil {
		return nil, err
	}
	return &Node{
		ID:         NodeID(sn.ID),
		Label:      sn.Label,
		Properties: normalizeProperties(sn.Properties),
		CreatedAt:  microsToTime(sn.CreatedAt),
		UpdatedAt:  microsToTime(sn.UpdatedAt),
	}, nil
}

func encodeEdge(e *Edge) ([]byte, error) {
	return json.Marshal(serializableEdge{
		ID:         string(e.ID),
		StartNode:  string(e.StartNode),
		EndNode:    string(e.EndNode),
		Type:       e.Type,
		Properties: e.Properties,
		CreatedAt:  timeToMicros(e.CreatedAt),
		UpdatedAt:  timeToMicros(e.UpdatedAt),
	})
}

func decodeEdge(data []byte) (*Edge, error) {
	var se serializableEdge
	if err := decodeJSON(data, &se); err != nil {
		return nil, err
	}
	return &Edge{
		ID:         EdgeID(se.ID),
		StartNode:  NodeID(se.StartNode),
		EndNode:    NodeID(se.EndNode),
		Type:       se.Type,
		Properties: normalizeProperties(se.Properties),
		CreatedAt:  microsToTime(se.CreatedAt),
		UpdatedAt:  microsToTime(se.UpdatedAt),
	}, nil
}

// decodeJSON keeps integers exact instead of widening them to float64.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func normalizeProperties(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	out, _ := convert.NormalizeNumbers(props).(map[string]any)
	return out
}

func timeToMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func microsToTime(us int64) time.Time {
	if us <= 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

func isKeyNotFound(err error) bool {
	return errors.Is(err, badger.ErrKeyNotFound)
}
