// Package mapper compiles batches of entity saves and deletes into one
// parameterized Gremlin script and redistributes the results.
//
// A Session owns the batch: the identity map from entity instance to script
// variable, the accumulated fragments and parameters, and the lifecycle
// callbacks. Each Save or Delete goes through the EntityMapper of the
// entity's type, which applies the type's Policy (uniqueness upserts,
// lifecycle hooks) and compiles the entity with a Query. The mapper's output
// is drained into the session after every call.
//
// Example:
//
//	sess := mapper.NewSession(exec, registry)
//	ada := entity.NewVertex(person, map[string]any{"name": "Ada"})
//	bob := entity.NewVertex(person, map[string]any{"name": "Bob"})
//	knows, _ := sess.Connect(ada, bob, "knows", nil, nil)
//	if _, err := sess.Save(ctx, knows); err != nil {
//		return err
//	}
//	if _, err := sess.Send(ctx); err != nil {
//		return err
//	}
//	fmt.Println(ada.ID(), bob.ID(), knows.ID())
package mapper

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orneryd/nornicogm/pkg/entity"
	"github.com/orneryd/nornicogm/pkg/field"
	"github.com/orneryd/nornicogm/pkg/script"
)

// AllFields among the unique fields matches on every non-identity field the
// entity holds a value for when the check runs, including undefined fields
// added after the policy was declared.
const AllFields = "*"

// Callback is a lifecycle hook fired after the batch holding the entity
// executed.
type Callback func(e entity.Entity)

// Policy is the per-type mapping behaviour.
type Policy struct {
	// Type is the schema name the policy applies to.
	Type string
	// UniqueFields turns vertex inserts into lookups when a vertex of the
	// same type already carries these values.
	UniqueFields []string
	// ErrorOnNonUnique fails the save with a MapperError instead.
	ErrorOnNonUnique bool
	// UniqueEdge turns edge inserts into lookups when an edge with the same
	// label already connects the two endpoints.
	UniqueEdge bool

	OnCreate Callback
	OnUpdate Callback
	OnDelete Callback
}

// output is what a mapper accumulated since its last drain.
type output struct {
	fragments  []string
	statements []script.Statement
	variables  []string
	bound      map[string]entity.Entity
	deleted    []deletion
	callbacks  map[string][]Callback
}

type deletion struct {
	key    string
	entity entity.Entity
}

func newOutput() output {
	return output{
		bound:     make(map[string]entity.Entity),
		callbacks: make(map[string][]Callback),
	}
}

// EntityMapper applies one Policy to the entities handed to it. Instances are
// bound to the session that created them and may be reused across calls.
type EntityMapper struct {
	r      resolver
	policy Policy
	out    output
}

func newEntityMapper(r resolver, policy Policy) *EntityMapper {
	return &EntityMapper{r: r, policy: policy, out: newOutput()}
}

// Policy returns the mapper's policy.
func (m *EntityMapper) Policy() Policy { return m.policy }

// Save compiles an insert, update or lookup for e and returns the script
// variable the result is bound to. An instance already bound in the batch
// is not compiled again; its variable is returned and the callbacks are
// appended to the ones already registered.
func (m *EntityMapper) Save(ctx context.Context, e entity.Entity, callbacks ...Callback) (string, error) {
	if e == nil {
		return "", &EntityError{Op: "save", Message: "nil entity"}
	}
	if variable, ok := m.r.variableOf(e.Ref()); ok {
		m.enqueueCallbacks(variable, callbacks)
		return variable, nil
	}

	hook := m.policy.OnCreate
	if e.HasID() {
		hook = m.policy.OnUpdate
	}

	q := newQuery(m.r, e)
	var err error
	if e.Kind() == entity.KindEdge {
		err = m.saveEdge(ctx, q)
	} else {
		err = m.saveVertex(ctx, q)
	}
	if err != nil {
		return "", err
	}

	variable, err := m.enqueue(q, e, true)
	if err != nil {
		return "", err
	}
	m.enqueueCallbacks(variable, append([]Callback{hook}, callbacks...))
	return variable, nil
}

func (m *EntityMapper) saveVertex(ctx context.Context, q *Query) error {
	e := q.entity
	if !e.HasID() && len(m.policy.UniqueFields) > 0 {
		id, err := m.findUniqueVertex(ctx, e)
		if err != nil {
			return err
		}
		if id != nil {
			e.SetID(id)
			return q.ByID(id)
		}
	}
	return q.Save(ctx)
}

func (m *EntityMapper) saveEdge(ctx context.Context, q *Query) error {
	edge, ok := q.entity.(*entity.Edge)
	if !ok || edge.HasID() || !m.policy.UniqueEdge {
		return q.Save(ctx)
	}
	if !edge.OutV().HasID() || !edge.InV().HasID() {
		return q.Save(ctx)
	}

	id, err := m.findUniqueEdge(ctx, edge)
	if err != nil {
		return err
	}
	if id == nil {
		return q.Save(ctx)
	}
	// Endpoint vertices still go into the batch ahead of the edge.
	if _, _, err := q.Endpoints(ctx); err != nil {
		return err
	}
	edge.SetID(id)
	return q.ByID(id)
}

// findUniqueVertex runs the uniqueness pre-check. A nil id means no match.
func (m *EntityMapper) findUniqueVertex(ctx context.Context, e entity.Entity) (any, error) {
	names := m.uniqueFields(e)
	match := []script.Property{{Key: entity.FieldModel, Value: e.Type()}}
	for _, name := range names {
		v := valueOf(e, name)
		if v == nil {
			// Nothing to match on.
			return nil, nil
		}
		match = append(match, script.Property{Key: name, Value: field.Render(v)})
	}

	id, err := m.precheck(ctx, e, script.Statement{
		Op:    script.OpFindVertices,
		Match: match,
		Limit: 1,
		Scope: "unique_" + e.Type(),
	})
	if err != nil || id == nil || !m.policy.ErrorOnNonUnique {
		return id, err
	}
	return nil, &MapperError{Type: e.Type(), Fields: names, Message: "the fields are not unique"}
}

func (m *EntityMapper) findUniqueEdge(ctx context.Context, edge *entity.Edge) (any, error) {
	id, err := m.precheck(ctx, edge, script.Statement{
		Op:    script.OpFindEdges,
		Label: edge.Label(),
		Out:   script.ID(edge.OutV().ID()),
		In:    script.ID(edge.InV().ID()),
		Limit: 1,
		Scope: "unique_" + edge.Type(),
	})
	if err != nil || id == nil || !m.policy.ErrorOnNonUnique {
		return id, err
	}
	return nil, &MapperError{Type: edge.Type(), Message: "an edge with this label already connects the vertices"}
}

// precheck runs st immediately and returns the id of the first row. A
// failing query is treated as no match.
func (m *EntityMapper) precheck(ctx context.Context, e entity.Entity, st script.Statement) (any, error) {
	res, err := m.r.query(ctx, st)
	if err != nil {
		m.r.logger().Warn("uniqueness check failed, inserting",
			zap.String("type", e.Type()),
			zap.Error(err))
		return nil, nil
	}
	row, ok := res.Row(0)
	if !ok {
		return nil, nil
	}
	id := row[entity.FieldID]
	if id == nil || id == "" {
		return nil, nil
	}
	return id, nil
}

// uniqueFields expands AllFields against the entity's current non-empty
// fields.
func (m *EntityMapper) uniqueFields(e entity.Entity) []string {
	for _, name := range m.policy.UniqueFields {
		if name != AllFields {
			continue
		}
		var names []string
		for _, n := range e.Fields().Names() {
			if !entity.IsIdentityField(n) && valueOf(e, n) != nil {
				names = append(names, n)
			}
		}
		sort.Strings(names)
		return names
	}
	return m.policy.UniqueFields
}

// valueOf reads a field without materializing it on open schemas.
func valueOf(e entity.Entity, name string) any {
	if f, ok := e.Fields().Field(name); ok {
		return f.Value()
	}
	return nil
}

// Delete compiles a removal of e. Deletes bind no variable; the entity is
// registered under a synthetic key so its callbacks still fire.
func (m *EntityMapper) Delete(e entity.Entity, callbacks ...Callback) error {
	if e == nil {
		return &EntityError{Op: "delete", Message: "nil entity"}
	}
	q := newQuery(m.r, e)
	if err := q.Delete(); err != nil {
		return err
	}
	if _, err := m.enqueue(q, e, false); err != nil {
		return err
	}
	key := "deleted_" + uuid.NewString()
	m.out.deleted = append(m.out.deleted, deletion{key: key, entity: e})
	m.enqueueCallbacks(key, append([]Callback{m.policy.OnDelete}, callbacks...))
	return nil
}

// CreateModel builds an entity from data. An explicit schema is tried first;
// when it is nil or does not fit the data, the data's _model tag picks a
// registered type, and otherwise a generic vertex or edge is built depending
// on the _type marker.
func (m *EntityMapper) CreateModel(data map[string]any, schema *entity.Schema) entity.Entity {
	opts := []entity.Option{entity.WithClock(m.r.now)}
	if schema != nil {
		if e, err := entity.New(schema, data, opts...); err == nil {
			return e
		}
	}
	if e, err := entity.New(m.r.models().Types().Resolve(data), data, opts...); err == nil {
		return e
	}
	if kind, _ := data[entity.KeyType].(string); kind == string(entity.KindEdge) {
		return entity.NewEdge(entity.GenericEdge, data, opts...)
	}
	return entity.NewVertex(entity.GenericVertex, data, opts...)
}

// drain hands the accumulated output over and resets the mapper.
func (m *EntityMapper) drain() output {
	out := m.out
	m.Reset()
	return out
}

// Reset discards anything accumulated since the last drain.
func (m *EntityMapper) Reset() { m.out = newOutput() }

// enqueue renders the query's statements, binding each to a fresh variable
// when bind is set. It returns the last variable.
func (m *EntityMapper) enqueue(q *Query, e entity.Entity, bind bool) (string, error) {
	var variable string
	for _, st := range q.Statements() {
		if bind {
			variable = m.r.nextVariable()
			st.Variable = variable
		}
		text, err := m.r.builder().Render(st)
		if err != nil {
			return "", &QueryError{Op: string(st.Op), Type: e.Type(), Message: err.Error()}
		}
		m.out.fragments = append(m.out.fragments, text)
		m.out.statements = append(m.out.statements, st)
		if bind {
			m.out.variables = append(m.out.variables, variable)
			m.out.bound[variable] = e
		}
	}
	return variable, nil
}

func (m *EntityMapper) enqueueCallbacks(key string, callbacks []Callback) {
	for _, cb := range callbacks {
		if cb != nil {
			m.out.callbacks[key] = append(m.out.callbacks[key], cb)
		}
	}
}
