// Package entity defines the typed vertices and edges handled by the mapper.
//
// A Schema is declared once per entity type. It resolves the full list of
// field prototypes at declaration time, walking the Extends chain ancestors
// first so a descendant's declaration of a field overrides its parent's.
// Every instance gets its own field.Set built from those prototypes.
//
// Schemas are collected in an immutable Registry that maps the model tag
// stored in graph data (the _model property) back to a schema. Unknown tags
// fall back to GenericVertex or GenericEdge.
//
// Example:
//
//	person := entity.NewSchema("person", entity.KindVertex,
//		entity.WithFields(field.String("name"), field.Integer("age")))
//	v := entity.NewVertex(person, map[string]any{"name": "Ada"})
package entity

import (
	"github.com/orneryd/nornicogm/pkg/field"
)

// Kind distinguishes vertices from edges.
type Kind string

const (
	KindVertex Kind = "vertex"
	KindEdge   Kind = "edge"
)

// Identity fields present on every entity.
const (
	FieldModel    = "_model"
	FieldCreated  = "_created"
	FieldModified = "_modified"
	FieldLabel    = "_label"
	FieldID       = "_id"
)

// Keys that only appear in rows or construction data.
const (
	KeyType  = "_type"
	KeyOutV  = "_outV"
	KeyInV   = "_inV"
	KeyOut   = "out_v"
	KeyIn    = "in_v"
	keyLabel = "label"
)

// IsIdentityField reports whether name is one of the identity fields.
func IsIdentityField(name string) bool {
	switch name {
	case FieldModel, FieldCreated, FieldModified, FieldLabel, FieldID:
		return true
	}
	return false
}

// Schema describes one entity type.
type Schema struct {
	name           string
	kind           Kind
	label          string
	parent         *Schema
	own            []field.Prototype
	allowUndefined bool
	protos         []field.Prototype
}

// SchemaOption configures a Schema at declaration time.
type SchemaOption func(*Schema)

// Extends makes the schema inherit the parent's fields, label and
// undefined-field policy.
func Extends(parent *Schema) SchemaOption {
	return func(s *Schema) { s.parent = parent }
}

// WithLabel sets the graph label. Vertices default to the schema name,
// edges have no default.
func WithLabel(label string) SchemaOption {
	return func(s *Schema) { s.label = label }
}

// WithFields declares fields.
func WithFields(protos ...field.Prototype) SchemaOption {
	return func(s *Schema) { s.own = append(s.own, protos...) }
}

// AllowUndefined opens the schema to undeclared field names.
func AllowUndefined() SchemaOption {
	return func(s *Schema) { s.allowUndefined = true }
}

// NewSchema declares an entity type.
func NewSchema(name string, kind Kind, opts ...SchemaOption) *Schema {
	s := &Schema{name: name, kind: kind}
	for _, opt := range opts {
		opt(s)
	}
	if s.parent != nil {
		if s.label == "" {
			s.label = s.parent.label
		}
		s.allowUndefined = s.allowUndefined || s.parent.allowUndefined
	}
	s.protos = s.resolve()
	return s
}

// Built-in open schemas used when data carries no registered model tag.
var (
	GenericVertex = NewSchema("generic_vertex", KindVertex, AllowUndefined())
	GenericEdge   = NewSchema("generic_edge", KindEdge, AllowUndefined())
)

func (s *Schema) Name() string { return s.name }
func (s *Schema) Kind() Kind { return s.kind }
func (s *Schema) Parent() *Schema { return s.parent }
func (s *Schema) AllowsUndefined() bool { return s.allowUndefined }

// Label returns the default graph label for instances.
func (s *Schema) Label() string {
	if s.label == "" && s.kind == KindVertex {
		return s.name
	}
	return s.label
}

// Prototypes returns the resolved field prototypes, identity fields first.
func (s *Schema) Prototypes() []field.Prototype {
	out := make([]field.Prototype, len(s.protos))
	copy(out, s.protos)
	return out
}

// resolve flattens the inheritance chain. Identity fields come first and
// cannot be overridden.
func (s *Schema) resolve() []field.Prototype {
	var chain []*Schema
	for cur := s; cur != nil; cur = cur.parent {
		chain = append([]*Schema{cur}, chain...)
	}

	protos := identityPrototypes()
	index := make(map[string]int, len(protos))
	for i, p := range protos {
		index[p.Name] = i
	}
	for _, cur := range chain {
		for _, p := range cur.own {
			if IsIdentityField(p.Name) {
				continue
			}
			if i, ok := index[p.Name]; ok {
				protos[i] = p
				continue
			}
			index[p.Name] = len(protos)
			protos = append(protos, p)
		}
	}
	return protos
}

func identityPrototypes() []field.Prototype {
	return []field.Prototype{
		field.String(FieldModel, field.Immutable()),
		field.DateTime(FieldCreated, field.Immutable()),
		field.DateTime(FieldModified),
		field.String(FieldLabel, field.Immutable()),
		field.Any(FieldID, field.Immutable(), field.Untracked()),
	}
}
