package mapper

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/orneryd/nornicogm/pkg/entity"
	"github.com/orneryd/nornicogm/pkg/field"
	"github.com/orneryd/nornicogm/pkg/script"
)

// resolver is the session state a Query and an EntityMapper compile
// against. Session implements it.
type resolver interface {
	// variableOf looks an instance up in the batch identity map.
	variableOf(ref entity.Ref) (string, bool)
	// nextVariable allocates the next script variable of the batch.
	nextVariable() string
	// usage returns the next per-type usage number of the batch.
	usage(typ string) int
	// builder renders fragments into the batch parameter table.
	builder() *script.Builder
	// save compiles a dependency into the batch and returns its variable.
	save(ctx context.Context, e entity.Entity) (string, error)
	// query runs a statement immediately, outside the batch.
	query(ctx context.Context, st script.Statement) (*Collection, error)
	models() *Registry
	now() time.Time
	logger() *zap.Logger
}

// Query compiles the pending operation of one entity into statements.
// Endpoint vertices an edge insert depends on are saved through the
// session first, so their fragments always precede the edge.
type Query struct {
	r          resolver
	entity     entity.Entity
	scope      string
	statements []script.Statement
}

func newQuery(r resolver, e entity.Entity) *Query {
	return &Query{r: r, entity: e}
}

// Statements returns what the query compiled, in emission order.
func (q *Query) Statements() []script.Statement { return q.statements }

// Save inserts entities without an id and updates the others.
func (q *Query) Save(ctx context.Context) error {
	if q.entity.Type() == "" {
		return &EntityError{Op: "save", Message: "entity has no type"}
	}
	if !q.entity.HasID() {
		return q.Insert(ctx)
	}
	return q.Update()
}

// Insert emits an add_vertex or add_edge statement.
func (q *Query) Insert(ctx context.Context) error {
	if q.entity.Type() == "" {
		return &QueryError{Op: "insert", Message: "entities need a type to be inserted"}
	}
	if q.entity.Kind() == entity.KindEdge {
		return q.insertEdge(ctx)
	}
	if q.entity.Label() == "" {
		return &QueryError{Op: "insert", Type: q.entity.Type(), Message: "vertex has no label"}
	}
	q.emit(script.Statement{
		Op:         script.OpAddVertex,
		Label:      q.entity.Label(),
		Properties: q.properties(),
	})
	return nil
}

func (q *Query) insertEdge(ctx context.Context) error {
	edge, ok := q.entity.(*entity.Edge)
	if !ok {
		return &QueryError{Op: "insert", Type: q.entity.Type(), Message: "edge schema on a non-edge entity"}
	}
	if edge.Label() == "" {
		return &QueryError{Op: "insert", Type: edge.Type(), Message: "the edge must have a label before saving"}
	}
	out, in, err := q.Endpoints(ctx)
	if err != nil {
		return err
	}
	q.emit(script.Statement{
		Op:         script.OpAddEdge,
		Label:      edge.Label(),
		Out:        out,
		In:         in,
		Properties: q.properties(),
	})
	return nil
}

// Endpoints resolves both sides of an edge. A vertex already bound in the
// batch yields its variable, any other vertex instance is saved first, and a
// bare id is used as is.
func (q *Query) Endpoints(ctx context.Context) (out, in script.Ref, err error) {
	edge, ok := q.entity.(*entity.Edge)
	if !ok {
		return out, in, &QueryError{Op: "insert", Type: q.entity.Type(), Message: "entity is not an edge"}
	}
	if edge.OutV().Empty() || edge.InV().Empty() {
		return out, in, &QueryError{Op: "insert", Type: edge.Type(),
			Message: "both out and in vertices must be set before saving the edge"}
	}
	if out, err = q.endpoint(ctx, edge.OutV()); err != nil {
		return out, in, err
	}
	in, err = q.endpoint(ctx, edge.InV())
	return out, in, err
}

func (q *Query) endpoint(ctx context.Context, p entity.Endpoint) (script.Ref, error) {
	if !p.IsVertex() {
		return script.ID(p.ID()), nil
	}
	v := p.Vertex()
	if variable, ok := q.r.variableOf(v.Ref()); ok {
		return script.Var(variable), nil
	}
	variable, err := q.r.save(ctx, v)
	if err != nil {
		return script.Ref{}, err
	}
	return script.Var(variable), nil
}

// Update emits the changed and removed fields, or a lookup when nothing
// changed.
func (q *Query) Update() error {
	e := q.entity
	if e.Type() == "" {
		return &QueryError{Op: "update", Message: "the entity must have a type to be updated"}
	}
	if !e.HasID() {
		return &QueryError{Op: "update", Type: e.Type(), Message: "the entity must have an id to be updated"}
	}

	var props []script.Property
	touched := false
	for _, f := range e.Fields().Changed() {
		if !writable(f.Name()) {
			continue
		}
		if f.Name() == entity.FieldModified {
			touched = true
		}
		props = append(props, script.Property{Key: f.Name(), Value: f.Render()})
	}
	removed := e.Fields().Removed()
	if len(props) == 0 && len(removed) == 0 {
		return q.ByID(e.ID())
	}
	if !touched {
		props = append(props, script.Property{Key: entity.FieldModified, Value: field.Render(q.r.now())})
	}

	q.emit(script.Statement{
		Op:         script.OpUpdate,
		Element:    element(e),
		ID:         e.ID(),
		Properties: props,
		Remove:     removed,
	})
	return nil
}

// Delete emits an unbound removal.
func (q *Query) Delete() error {
	e := q.entity
	if !e.HasID() {
		return &EntityError{Op: "delete", Type: e.Type(), Message: "entities must have an id before they are deleted"}
	}
	if e.Type() == "" {
		return &EntityError{Op: "delete", Message: "entities need a type to be deleted"}
	}
	q.emit(script.Statement{Op: script.OpDelete, Element: element(e), ID: e.ID()})
	return nil
}

// ByID emits a point lookup of the entity's element type.
func (q *Query) ByID(id any) error {
	if id == nil || id == "" {
		return &QueryError{Op: "lookup", Type: q.entity.Type(), Message: "lookup without an id"}
	}
	q.emit(script.Statement{Op: script.OpLookup, Element: element(q.entity), ID: id})
	return nil
}

func (q *Query) emit(st script.Statement) {
	if q.scope == "" {
		typ := q.entity.Type()
		q.scope = typ + "_" + strconv.Itoa(q.r.usage(typ))
	}
	st.Scope = q.scope
	q.statements = append(q.statements, st)
}

// properties renders every field an insert writes, in declaration order.
func (q *Query) properties() []script.Property {
	fields := q.entity.Fields()
	names := fields.Names()
	props := make([]script.Property, 0, len(names))
	for _, name := range names {
		if name == entity.FieldID || name == entity.FieldLabel {
			continue
		}
		f, _ := fields.Field(name)
		props = append(props, script.Property{Key: name, Value: f.Render()})
	}
	return props
}

// writable reports whether an update may write the field. Identity fields
// other than the modification time are fixed once the element exists.
func writable(name string) bool {
	if name == entity.FieldModified {
		return true
	}
	return !entity.IsIdentityField(name)
}

func element(e entity.Entity) script.Element {
	if e.Kind() == entity.KindEdge {
		return script.ElementEdge
	}
	return script.ElementVertex
}
