package batchfile

import (
	"context"
	"fmt"

	"github.com/orneryd/nornicogm/pkg/entity"
	"github.com/orneryd/nornicogm/pkg/mapper"
)

// Operations recorded on queued items.
const (
	OpSave   = "save"
	OpDelete = "delete"
)

// Batch is a validated document with its type registry built.
type Batch struct {
	doc      *Document
	schemas  map[string]*entity.Schema
	registry *mapper.Registry
}

// Item is one queued operation.
type Item struct {
	Ref      string
	Op       string
	Variable string
	Entity   entity.Entity
}

// Compile validates doc and builds the schemas and policies it declares.
func Compile(doc *Document) (*Batch, error) {
	b := &Batch{doc: doc, schemas: map[string]*entity.Schema{
		entity.GenericVertex.Name(): entity.GenericVertex,
		entity.GenericEdge.Name():   entity.GenericEdge,
	}}

	var (
		declared []*entity.Schema
		policies []mapper.Policy
	)
	for _, t := range doc.Types {
		schema, err := b.declare(t)
		if err != nil {
			return nil, err
		}
		declared = append(declared, schema)
		if policy, ok := policyOf(t); ok {
			policies = append(policies, policy)
		}
	}

	types, err := entity.NewRegistry(declared...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	b.registry, err = mapper.NewRegistry(types, policies...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	if err := b.validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Registry returns the mapper registry for the document's types.
func (b *Batch) Registry() *mapper.Registry { return b.registry }

// Document returns the compiled document.
func (b *Batch) Document() *Document { return b.doc }

func (b *Batch) declare(t TypeSpec) (*entity.Schema, error) {
	if t.Name == "" {
		return nil, fmt.Errorf("%w: type without a name", ErrInvalidDocument)
	}
	if _, ok := b.schemas[t.Name]; ok {
		return nil, fmt.Errorf("%w: type %q declared twice", ErrInvalidDocument, t.Name)
	}
	kind, err := t.kind()
	if err != nil {
		return nil, err
	}

	var opts []entity.SchemaOption
	if t.Extends != "" {
		parent, ok := b.schemas[t.Extends]
		if !ok {
			return nil, fmt.Errorf("%w: type %q extends undeclared type %q", ErrInvalidDocument, t.Name, t.Extends)
		}
		if parent.Kind() != kind {
			return nil, fmt.Errorf("%w: %s type %q cannot extend %s type %q", ErrInvalidDocument, kind, t.Name, parent.Kind(), t.Extends)
		}
		opts = append(opts, entity.Extends(parent))
	}
	if t.Label != "" {
		opts = append(opts, entity.WithLabel(t.Label))
	}
	if t.Open {
		opts = append(opts, entity.AllowUndefined())
	}
	for _, f := range t.Fields {
		proto, err := f.prototype()
		if err != nil {
			return nil, fmt.Errorf("type %q: %w", t.Name, err)
		}
		opts = append(opts, entity.WithFields(proto))
	}

	switch {
	case kind == entity.KindVertex && t.UniqueEdge:
		return nil, fmt.Errorf("%w: unique_edge on vertex type %q", ErrInvalidDocument, t.Name)
	case kind == entity.KindEdge && len(t.Unique) > 0:
		return nil, fmt.Errorf("%w: unique fields on edge type %q", ErrInvalidDocument, t.Name)
	}

	schema := entity.NewSchema(t.Name, kind, opts...)
	b.schemas[t.Name] = schema
	return schema, nil
}

func policyOf(t TypeSpec) (mapper.Policy, bool) {
	if len(t.Unique) == 0 && !t.UniqueEdge {
		return mapper.Policy{}, false
	}
	return mapper.Policy{
		Type:             t.Name,
		UniqueFields:     t.Unique,
		ErrorOnNonUnique: t.ErrorOnNonUnique,
		UniqueEdge:       t.UniqueEdge,
	}, true
}

func (b *Batch) validate() error {
	refs := make(map[string]entity.Kind)
	addRef := func(ref string, kind entity.Kind) error {
		if ref == "" {
			return nil
		}
		if _, dup := refs[ref]; dup {
			return fmt.Errorf("%w: ref %q used twice", ErrInvalidDocument, ref)
		}
		refs[ref] = kind
		return nil
	}

	for i, v := range b.doc.Vertices {
		if _, err := b.schema(v.Type, entity.KindVertex); err != nil {
			return fmt.Errorf("vertex %d: %w", i, err)
		}
		if err := addRef(v.Ref, entity.KindVertex); err != nil {
			return err
		}
	}

	for i, e := range b.doc.Edges {
		schema, err := b.schema(e.Type, entity.KindEdge)
		if err != nil {
			return fmt.Errorf("edge %d: %w", i, err)
		}
		if e.ID == nil {
			if e.Label == "" && schema.Label() == "" {
				return fmt.Errorf("%w: edge %d has no label", ErrInvalidDocument, i)
			}
			for _, side := range []struct {
				name string
				ref  string
				id   any
			}{{"out", e.Out, e.OutID}, {"in", e.In, e.InID}} {
				if err := checkEndpoint(refs, i, side.name, side.ref, side.id); err != nil {
					return err
				}
			}
		}
		if err := addRef(e.Ref, entity.KindEdge); err != nil {
			return err
		}
	}

	for i, d := range b.doc.Deletes {
		if d.Ref != "" {
			if _, ok := refs[d.Ref]; !ok {
				return fmt.Errorf("%w: delete %d names unknown ref %q", ErrInvalidDocument, i, d.Ref)
			}
			continue
		}
		if d.ID == nil || d.ID == "" {
			return fmt.Errorf("%w: delete %d needs a ref or an id", ErrInvalidDocument, i)
		}
		if _, err := b.deleteSchema(d); err != nil {
			return fmt.Errorf("delete %d: %w", i, err)
		}
	}
	return nil
}

func checkEndpoint(refs map[string]entity.Kind, i int, side, ref string, id any) error {
	switch {
	case ref != "" && id != nil:
		return fmt.Errorf("%w: edge %d sets both %s and %s_id", ErrInvalidDocument, i, side, side)
	case ref != "":
		if kind, ok := refs[ref]; !ok || kind != entity.KindVertex {
			return fmt.Errorf("%w: edge %d %s names unknown vertex ref %q", ErrInvalidDocument, i, side, ref)
		}
	case id == nil || id == "":
		return fmt.Errorf("%w: edge %d has no %s vertex", ErrInvalidDocument, i, side)
	}
	return nil
}

// schema returns the declared schema for typ, or the generic schema of kind
// when typ is empty.
func (b *Batch) schema(typ string, kind entity.Kind) (*entity.Schema, error) {
	if typ == "" {
		if kind == entity.KindEdge {
			return entity.GenericEdge, nil
		}
		return entity.GenericVertex, nil
	}
	s, ok := b.schemas[typ]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidDocument, typ)
	}
	if s.Kind() != kind {
		return nil, fmt.Errorf("%w: type %q is a %s, not a %s", ErrInvalidDocument, typ, s.Kind(), kind)
	}
	return s, nil
}

func (b *Batch) deleteSchema(d DeleteSpec) (*entity.Schema, error) {
	if d.Type != "" {
		s, ok := b.schemas[d.Type]
		if !ok {
			return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidDocument, d.Type)
		}
		return s, nil
	}
	switch d.Kind {
	case "", string(entity.KindVertex):
		return entity.GenericVertex, nil
	case string(entity.KindEdge):
		return entity.GenericEdge, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidDocument, d.Kind)
}

// Queue compiles the document into sess: vertices first, then edges, then
// deletes, each in document order. Nothing is sent. The returned items are
// in the same order and keep the entity instances, so ids assigned by a
// later Send can be read from them.
func (b *Batch) Queue(ctx context.Context, sess *mapper.Session) ([]Item, error) {
	items := make([]Item, 0, len(b.doc.Vertices)+len(b.doc.Edges)+len(b.doc.Deletes))
	byRef := make(map[string]entity.Entity)

	for _, v := range b.doc.Vertices {
		schema, err := b.schema(v.Type, entity.KindVertex)
		if err != nil {
			return nil, err
		}
		e := sess.CreateModel(withID(v.Data, v.ID), schema)
		variable, err := sess.Save(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("saving vertex %q: %w", v.Ref, err)
		}
		if v.Ref != "" {
			byRef[v.Ref] = e
		}
		items = append(items, Item{Ref: v.Ref, Op: OpSave, Variable: variable, Entity: e})
	}

	for _, spec := range b.doc.Edges {
		e, err := b.edge(sess, spec, byRef)
		if err != nil {
			return nil, err
		}
		variable, err := sess.Save(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("saving edge %q: %w", spec.Ref, err)
		}
		if spec.Ref != "" {
			byRef[spec.Ref] = e
		}
		items = append(items, Item{Ref: spec.Ref, Op: OpSave, Variable: variable, Entity: e})
	}

	for _, d := range b.doc.Deletes {
		e, ok := byRef[d.Ref]
		if !ok {
			schema, err := b.deleteSchema(d)
			if err != nil {
				return nil, err
			}
			e = sess.CreateModel(withID(nil, d.ID), schema)
		}
		if err := sess.Delete(e); err != nil {
			return nil, fmt.Errorf("deleting %v: %w", describe(d), err)
		}
		items = append(items, Item{Ref: d.Ref, Op: OpDelete, Entity: e})
	}
	return items, nil
}

func (b *Batch) edge(sess *mapper.Session, spec EdgeSpec, byRef map[string]entity.Entity) (*entity.Edge, error) {
	schema, err := b.schema(spec.Type, entity.KindEdge)
	if err != nil {
		return nil, err
	}
	if spec.ID != nil {
		e, ok := sess.CreateModel(withEdgeMarker(withID(spec.Data, spec.ID), spec.Label), schema).(*entity.Edge)
		if !ok {
			return nil, fmt.Errorf("%w: edge %q did not build an edge", ErrInvalidDocument, spec.Ref)
		}
		return e, nil
	}
	return sess.Connect(endpoint(spec.Out, spec.OutID, byRef), endpoint(spec.In, spec.InID, byRef), spec.Label, spec.Data, schema)
}

func endpoint(ref string, id any, byRef map[string]entity.Entity) any {
	if ref != "" {
		return byRef[ref]
	}
	return id
}

func withID(data map[string]any, id any) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	if id != nil {
		out[entity.FieldID] = id
	}
	return out
}

func withEdgeMarker(data map[string]any, label string) map[string]any {
	data[entity.KeyType] = string(entity.KindEdge)
	if label != "" {
		data[entity.FieldLabel] = label
	}
	return data
}

func describe(d DeleteSpec) string {
	if d.Ref != "" {
		return d.Ref
	}
	return fmt.Sprintf("%s %v", d.Type, d.ID)
}
