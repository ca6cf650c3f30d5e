package entity

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/orneryd/nornicogm/pkg/field"
)

// Ref is an opaque per-instance handle. Sessions key their identity map on
// Ref, so two instances carrying the same graph id are still distinct.
type Ref string

// NewRef issues a fresh handle.
func NewRef() Ref { return Ref(uuid.NewString()) }

func (r Ref) String() string { return string(r) }

// Entity is the behaviour shared by vertices and edges.
type Entity interface {
	Ref() Ref
	Schema() *Schema
	Type() string
	Kind() Kind
	Label() string

	ID() any
	HasID() bool
	SetID(id any)

	Get(name string) any
	Set(name string, v any) bool
	Delete(name string) bool
	Data() map[string]any
	Fields() *field.Set

	// Hydrate writes data through the normal field policy.
	Hydrate(data map[string]any)
	// Refresh applies a row returned by the graph and commits the baseline.
	Refresh(row map[string]any)

	Dirty() bool
	Commit()
}

// Option configures entity construction.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock sets the time source for the creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New constructs a vertex or edge depending on the schema kind. It fails when
// the schema is nil or the data's _type marker contradicts the schema.
func New(schema *Schema, data map[string]any, opts ...Option) (Entity, error) {
	if schema == nil {
		return nil, ErrInvalidSchema
	}
	if marker, ok := data[KeyType].(string); ok && marker != "" && marker != string(schema.kind) {
		return nil, fmt.Errorf("%w: %s data for %s schema %q", ErrInvalidSchema, marker, schema.kind, schema.name)
	}
	switch schema.kind {
	case KindVertex:
		return NewVertex(schema, data, opts...), nil
	case KindEdge:
		return NewEdge(schema, data, opts...), nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSchema, schema.kind)
}

type base struct {
	ref    Ref
	schema *Schema
	fields *field.Set
}

func newBase(schema *Schema, opts []Option) base {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	b := base{
		ref:    NewRef(),
		schema: schema,
		fields: field.NewSet(schema.allowUndefined, schema.protos...),
	}

	created := o.now().UTC().Truncate(time.Microsecond)
	b.fields.Load(FieldModel, schema.name)
	b.fields.Load(FieldCreated, created)
	b.fields.Load(FieldModified, created.Add(time.Microsecond))
	b.fields.Load(FieldLabel, schema.Label())
	return b
}

func (b *base) Ref() Ref { return b.ref }
func (b *base) Schema() *Schema { return b.schema }
func (b *base) Type() string { return b.schema.name }
func (b *base) Kind() Kind { return b.schema.kind }
func (b *base) Fields() *field.Set { return b.fields }
func (b *base) Dirty() bool { return b.fields.Dirty() }
func (b *base) Commit() { b.fields.Commit() }

func (b *base) Label() string {
	label, _ := b.fields.Get(FieldLabel).(string)
	return label
}

func (b *base) ID() any { return b.fields.Get(FieldID) }

func (b *base) HasID() bool { return hasID(b.ID()) }

// SetID assigns the graph id directly. Identity assignment is not a change.
func (b *base) SetID(id any) { b.fields.Load(FieldID, id) }

func (b *base) Get(name string) any { return b.fields.Get(name) }

func (b *base) Set(name string, v any) bool { return b.fields.Set(name, v) }

func (b *base) Delete(name string) bool {
	if IsIdentityField(name) {
		return false
	}
	return b.fields.Delete(name)
}

func (b *base) Data() map[string]any { return b.fields.Data() }

// load applies construction data. Keys the caller consumed are skipped.
func (b *base) load(data map[string]any, skip func(string) bool) {
	if label, ok := data[FieldLabel].(string); ok && label != "" {
		b.fields.Load(FieldLabel, label)
	}
	for _, key := range sortedKeys(data) {
		if skip(key) {
			continue
		}
		switch key {
		case FieldID, FieldModel, FieldLabel, KeyType:
			continue
		case FieldCreated, FieldModified:
			if data[key] == nil {
				continue
			}
		}
		b.fields.Load(key, data[key])
	}
	if id, ok := data[FieldID]; ok {
		b.SetID(id)
	}
}

func (b *base) hydrate(data map[string]any, skip func(string) bool) {
	for _, key := range sortedKeys(data) {
		if skip(key) {
			continue
		}
		switch key {
		case FieldID, KeyType:
			continue
		}
		b.fields.Set(key, data[key])
	}
}

func (b *base) refresh(row map[string]any, skip func(string) bool) {
	if id, ok := row[FieldID]; ok && hasID(id) {
		b.SetID(id)
	}
	for _, key := range sortedKeys(row) {
		if skip(key) {
			continue
		}
		switch key {
		case FieldID, FieldModel, KeyType:
			continue
		case FieldLabel:
			if label, ok := row[key].(string); !ok || label == "" {
				continue
			}
		}
		b.fields.Load(key, row[key])
	}
	b.fields.Commit()
}

func hasID(id any) bool {
	if id == nil {
		return false
	}
	if s, ok := id.(string); ok {
		return s != ""
	}
	return true
}

func sortedKeys(data map[string]any) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// Vertex
// =============================================================================

// Vertex is a graph node.
type Vertex struct {
	base
}

// NewVertex constructs a vertex. A nil schema means GenericVertex. The
// freshly built vertex is clean.
func NewVertex(schema *Schema, data map[string]any, opts ...Option) *Vertex {
	if schema == nil {
		schema = GenericVertex
	}
	v := &Vertex{base: newBase(schema, opts)}
	v.load(data, isEndpointKey)
	v.Commit()
	return v
}

func (v *Vertex) Hydrate(data map[string]any) { v.hydrate(data, isEndpointKey) }

func (v *Vertex) Refresh(row map[string]any) { v.refresh(row, isEndpointKey) }

func isEndpointKey(key string) bool {
	switch key {
	case KeyOut, KeyIn, KeyOutV, KeyInV:
		return true
	}
	return false
}

// =============================================================================
// Edge
// =============================================================================

// Edge is a labelled relationship between two vertices. Endpoints are plain
// attributes, never fields.
type Edge struct {
	base
	out Endpoint
	in  Endpoint
}

// NewEdge constructs an edge. A nil schema means GenericEdge. Endpoints are
// taken from out_v/in_v (vertices or ids) and _outV/_inV (ids); the label
// from _label or label, falling back to the schema label.
func NewEdge(schema *Schema, data map[string]any, opts ...Option) *Edge {
	if schema == nil {
		schema = GenericEdge
	}
	e := &Edge{base: newBase(schema, opts)}
	e.takeEndpoints(data)
	if label, ok := data[keyLabel].(string); ok && label != "" {
		e.fields.Load(FieldLabel, label)
	}
	e.load(data, isEdgeKey)
	e.Commit()
	return e
}

func (e *Edge) OutV() Endpoint { return e.out }
func (e *Edge) InV() Endpoint { return e.in }

// SetOutV connects the outgoing endpoint. Accepts *Vertex, Endpoint or an id.
func (e *Edge) SetOutV(v any) { e.out = EndpointOf(v) }

// SetInV connects the incoming endpoint. Accepts *Vertex, Endpoint or an id.
func (e *Edge) SetInV(v any) { e.in = EndpointOf(v) }

func (e *Edge) Hydrate(data map[string]any) {
	e.takeEndpoints(data)
	e.hydrate(data, isEdgeKey)
}

func (e *Edge) Refresh(row map[string]any) {
	if id, ok := row[KeyOutV]; ok && hasID(id) && !e.out.IsVertex() {
		e.out = IDEndpoint(id)
	}
	if id, ok := row[KeyInV]; ok && hasID(id) && !e.in.IsVertex() {
		e.in = IDEndpoint(id)
	}
	e.refresh(row, isEdgeKey)
}

func (e *Edge) takeEndpoints(data map[string]any) {
	if v, ok := data[KeyOutV]; ok {
		e.out = EndpointOf(v)
	}
	if v, ok := data[KeyOut]; ok {
		e.out = EndpointOf(v)
	}
	if v, ok := data[KeyInV]; ok {
		e.in = EndpointOf(v)
	}
	if v, ok := data[KeyIn]; ok {
		e.in = EndpointOf(v)
	}
}

func isEdgeKey(key string) bool {
	return key == keyLabel || isEndpointKey(key)
}

// =============================================================================
// Endpoint
// =============================================================================

// Endpoint is one side of an edge: a vertex instance, a bare graph id, or
// nothing.
type Endpoint struct {
	vertex *Vertex
	id     any
}

// VertexEndpoint wraps a vertex instance.
func VertexEndpoint(v *Vertex) Endpoint { return Endpoint{vertex: v} }

// IDEndpoint wraps a bare graph id.
func IDEndpoint(id any) Endpoint {
	if !hasID(id) {
		return Endpoint{}
	}
	return Endpoint{id: id}
}

// EndpointOf converts *Vertex, Endpoint, nil or an id into an Endpoint.
func EndpointOf(v any) Endpoint {
	switch val := v.(type) {
	case nil:
		return Endpoint{}
	case Endpoint:
		return val
	case *Vertex:
		if val == nil {
			return Endpoint{}
		}
		return VertexEndpoint(val)
	}
	return IDEndpoint(v)
}

// Vertex returns the vertex instance, if any.
func (p Endpoint) Vertex() *Vertex { return p.vertex }

// IsVertex reports whether the endpoint holds a vertex instance.
func (p Endpoint) IsVertex() bool { return p.vertex != nil }

// Empty reports whether nothing is connected.
func (p Endpoint) Empty() bool { return p.vertex == nil && !hasID(p.id) }

// ID returns the vertex's id or the bare id.
func (p Endpoint) ID() any {
	if p.vertex != nil {
		return p.vertex.ID()
	}
	return p.id
}

// HasID reports whether the endpoint's id is known.
func (p Endpoint) HasID() bool { return hasID(p.ID()) }
