// Package batchfile reads YAML batch documents and queues them on a mapper
// session.
//
// A document declares entity types with their uniqueness policies, then the
// vertices, edges and deletes of one batch. Vertices carry a ref that edges
// use to point at them; an edge endpoint may also be a literal graph id.
//
//	types:
//	  - name: person
//	    fields:
//	      - {name: name, kind: string}
//	      - {name: age, kind: integer}
//	    unique: [name]
//	  - name: knows
//	    kind: edge
//	    label: knows
//	vertices:
//	  - {ref: ada, type: person, data: {name: Ada}}
//	  - {ref: bob, type: person, data: {name: Bob}}
//	edges:
//	  - {type: knows, out: ada, in: bob}
//	deletes:
//	  - {type: person, id: 42}
package batchfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/nornicogm/pkg/entity"
	"github.com/orneryd/nornicogm/pkg/field"
)

// ErrInvalidDocument wraps every validation failure.
var ErrInvalidDocument = errors.New("invalid batch document")

// Document is a parsed batch file.
type Document struct {
	Types    []TypeSpec   `yaml:"types"`
	Vertices []VertexSpec `yaml:"vertices"`
	Edges    []EdgeSpec   `yaml:"edges"`
	Deletes  []DeleteSpec `yaml:"deletes"`
}

// TypeSpec declares an entity type and its mapping policy.
type TypeSpec struct {
	Name    string      `yaml:"name"`
	Kind    string      `yaml:"kind"`
	Label   string      `yaml:"label"`
	Extends string      `yaml:"extends"`
	Open    bool        `yaml:"open"`
	Fields  []FieldSpec `yaml:"fields"`

	Unique           []string `yaml:"unique"`
	ErrorOnNonUnique bool     `yaml:"error_on_non_unique"`
	UniqueEdge       bool     `yaml:"unique_edge"`
}

// FieldSpec declares one field.
type FieldSpec struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Default   any    `yaml:"default"`
	Immutable bool   `yaml:"immutable"`
	SetOnce   bool   `yaml:"set_once"`
}

// VertexSpec is a vertex to save. An id turns the save into an update.
type VertexSpec struct {
	Ref  string         `yaml:"ref"`
	Type string         `yaml:"type"`
	ID   any            `yaml:"id"`
	Data map[string]any `yaml:"data"`
}

// EdgeSpec is an edge to save. Each endpoint is either a vertex ref or an id.
type EdgeSpec struct {
	Ref   string         `yaml:"ref"`
	Type  string         `yaml:"type"`
	Label string         `yaml:"label"`
	ID    any            `yaml:"id"`
	Out   string         `yaml:"out"`
	OutID any            `yaml:"out_id"`
	In    string         `yaml:"in"`
	InID  any            `yaml:"in_id"`
	Data  map[string]any `yaml:"data"`
}

// DeleteSpec removes a stored entity, named by ref or by type and id.
type DeleteSpec struct {
	Ref  string `yaml:"ref"`
	Type string `yaml:"type"`
	Kind string `yaml:"kind"`
	ID   any    `yaml:"id"`
}

// Parse decodes a document. Unknown keys are rejected.
func Parse(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, fmt.Errorf("parsing batch document: %w", err)
	}
	return &doc, nil
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch document %s: %w", path, err)
	}
	return Parse(bytes.NewReader(data))
}

func (t TypeSpec) kind() (entity.Kind, error) {
	switch t.Kind {
	case "", string(entity.KindVertex):
		return entity.KindVertex, nil
	case string(entity.KindEdge):
		return entity.KindEdge, nil
	}
	return "", fmt.Errorf("%w: type %q has unknown kind %q", ErrInvalidDocument, t.Name, t.Kind)
}

func (f FieldSpec) prototype() (field.Prototype, error) {
	if f.Name == "" {
		return field.Prototype{}, fmt.Errorf("%w: field without a name", ErrInvalidDocument)
	}
	if entity.IsIdentityField(f.Name) {
		return field.Prototype{}, fmt.Errorf("%w: field %q is reserved", ErrInvalidDocument, f.Name)
	}
	var opts []field.Option
	if f.Default != nil {
		opts = append(opts, field.Default(f.Default))
	}
	if f.Immutable {
		opts = append(opts, field.Immutable())
	}
	if f.SetOnce {
		opts = append(opts, field.SetOnce())
	}

	switch field.Kind(f.Kind) {
	case field.KindString:
		return field.String(f.Name, opts...), nil
	case field.KindInteger:
		return field.Integer(f.Name, opts...), nil
	case field.KindFloat:
		return field.Float(f.Name, opts...), nil
	case field.KindBoolean:
		return field.Boolean(f.Name, opts...), nil
	case field.KindDateTime:
		return field.DateTime(f.Name, opts...), nil
	case field.KindList:
		return field.List(f.Name, opts...), nil
	case field.KindMap:
		return field.Map(f.Name, opts...), nil
	case field.KindAny, "":
		return field.Any(f.Name, opts...), nil
	}
	return field.Prototype{}, fmt.Errorf("%w: field %q has unknown kind %q", ErrInvalidDocument, f.Name, f.Kind)
}
