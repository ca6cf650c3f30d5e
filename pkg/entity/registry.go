package entity

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDuplicateSchema is returned when two schemas share a name.
	ErrDuplicateSchema = errors.New("duplicate schema")
	// ErrInvalidSchema is returned for nil schemas or empty names.
	ErrInvalidSchema = errors.New("invalid schema")
)

// Registry maps model tags to schemas. It is built once and never mutated.
type Registry struct {
	schemas map[string]*Schema
}

// NewRegistry builds a registry. GenericVertex and GenericEdge are always
// registered.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{schemas: map[string]*Schema{
		GenericVertex.name: GenericVertex,
		GenericEdge.name:   GenericEdge,
	}}
	for _, s := range schemas {
		if s == nil || s.name == "" {
			return nil, ErrInvalidSchema
		}
		if existing, ok := r.schemas[s.name]; ok {
			if existing == s {
				continue
			}
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSchema, s.name)
		}
		r.schemas[s.name] = s
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error. Intended for
// package-level declarations.
func MustRegistry(schemas ...*Schema) *Registry {
	r, err := NewRegistry(schemas...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the schema registered under tag.
func (r *Registry) Lookup(tag string) (*Schema, bool) {
	s, ok := r.schemas[tag]
	return s, ok
}

// Names returns registered schema names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve picks the schema for a row: the registered schema named by its
// _model tag, otherwise GenericEdge when _type is "edge" and GenericVertex
// for everything else.
func (r *Registry) Resolve(data map[string]any) *Schema {
	if tag, ok := data[FieldModel].(string); ok {
		if s, ok := r.schemas[tag]; ok {
			return s
		}
	}
	if kind, _ := data[KeyType].(string); kind == string(KindEdge) {
		return GenericEdge
	}
	return GenericVertex
}
