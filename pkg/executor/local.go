package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/orneryd/nornicogm/pkg/convert"
	"github.com/orneryd/nornicogm/pkg/entity"
	"github.com/orneryd/nornicogm/pkg/script"
	"github.com/orneryd/nornicogm/pkg/storage"
)

// ErrNoStatements is returned by Local for requests carrying only script text.
var ErrNoStatements = errors.New("local executor requires structured statements")

// ErrNoSuchElement mirrors Gremlin's failure when next() finds nothing.
var ErrNoSuchElement = errors.New("no such element")

// Local runs a request's statements against an embedded storage engine
// inside one transaction. Any failing statement rolls the whole batch back.
type Local struct {
	engine storage.Engine
	log    *zap.Logger
	now    func() time.Time
}

// NewLocal creates a local executor. A nil logger is replaced by a no-op.
func NewLocal(engine storage.Engine, log *zap.Logger) *Local {
	if log == nil {
		log = zap.NewNop()
	}
	return &Local{engine: engine, log: log, now: time.Now}
}

// element is what a script variable holds.
type element struct {
	kind entity.Kind
	node storage.NodeID
	edge storage.EdgeID
}

type localRun struct {
	tx   storage.Transaction
	vars map[string]element
	now  time.Time
}

// Send executes every statement and returns the last statement's result,
// as Gremlin Server does for a script.
func (l *Local) Send(ctx context.Context, req *Request) (resp *Response, err error) {
	_, span := tracer.Start(ctx, "local-send",
		trace.WithAttributes(attribute.Int(TraceAttributeParamCount, len(req.Params))),
	)
	defer func() { recordAndEnd(err, span) }()

	if len(req.Statements) == 0 {
		return nil, ErrNoStatements
	}

	tx, err := l.engine.BeginTransaction()
	if err != nil {
		return nil, err
	}
	run := &localRun{tx: tx, vars: make(map[string]element), now: l.now().UTC()}

	var last any
	for i, st := range req.Statements {
		if err = ctx.Err(); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		last, err = run.exec(st)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("statement %d (%s): %w", i+1, st.Op, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	l.log.Debug("local batch executed",
		zap.String("requestId", requestID),
		zap.Int("statements", len(req.Statements)))
	return &Response{RequestID: requestID, Data: asRows(last)}, nil
}

func (r *localRun) exec(st script.Statement) (any, error) {
	switch st.Op {
	case script.OpAddVertex:
		return r.addVertex(st)
	case script.OpAddEdge:
		return r.addEdge(st)
	case script.OpUpdate:
		return r.update(st)
	case script.OpLookup:
		el, err := r.locate(st)
		if err != nil {
			return nil, err
		}
		r.bind(st.Variable, el)
		return r.row(el)
	case script.OpDelete:
		return nil, r.delete(st)
	case script.OpFindVertices:
		return r.findVertices(st)
	case script.OpFindEdges:
		return r.findEdges(st)
	case script.OpCommit:
		return nil, nil
	case script.OpReturn:
		out := make(map[string]any, len(st.Returns))
		for _, name := range st.Returns {
			el, ok := r.vars[name]
			if !ok {
				return nil, fmt.Errorf("unknown variable %q", name)
			}
			row, err := r.row(el)
			if err != nil {
				return nil, err
			}
			out[name] = row
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown op %q", script.ErrMalformed, st.Op)
}

func (r *localRun) bind(variable string, el element) {
	if variable != "" {
		r.vars[variable] = el
	}
}

func (r *localRun) addVertex(st script.Statement) (any, error) {
	node := &storage.Node{
		ID:         storage.NewNodeID(),
		Label:      st.Label,
		Properties: properties(st.Properties),
		CreatedAt:  r.now,
		UpdatedAt:  r.now,
	}
	if err := r.tx.CreateNode(node); err != nil {
		return nil, err
	}
	el := element{kind: entity.KindVertex, node: node.ID}
	r.bind(st.Variable, el)
	return r.row(el)
}

func (r *localRun) addEdge(st script.Statement) (any, error) {
	out, err := r.vertexID(st.Out)
	if err != nil {
		return nil, err
	}
	in, err := r.vertexID(st.In)
	if err != nil {
		return nil, err
	}
	edge := &storage.Edge{
		ID:         storage.NewEdgeID(),
		StartNode:  out,
		EndNode:    in,
		Type:       st.Label,
		Properties: properties(st.Properties),
		CreatedAt:  r.now,
		UpdatedAt:  r.now,
	}
	if err := r.tx.CreateEdge(edge); err != nil {
		return nil, err
	}
	el := element{kind: entity.KindEdge, edge: edge.ID}
	r.bind(st.Variable, el)
	return r.row(el)
}

func (r *localRun) update(st script.Statement) (any, error) {
	el, err := r.locate(st)
	if err != nil {
		return nil, err
	}
	apply := func(props map[string]any) map[string]any {
		if props == nil {
			props = map[string]any{}
		}
		for _, p := range st.Properties {
			if p.Value == nil {
				delete(props, p.Key)
				continue
			}
			props[p.Key] = convert.Clone(p.Value)
		}
		for _, key := range st.Remove {
			delete(props, key)
		}
		return props
	}

	if el.kind == entity.KindEdge {
		edge, err := r.tx.GetEdge(el.edge)
		if err != nil {
			return nil, err
		}
		edge.Properties = apply(edge.Properties)
		edge.UpdatedAt = r.now
		if err := r.tx.UpdateEdge(edge); err != nil {
			return nil, err
		}
	} else {
		node, err := r.tx.GetNode(el.node)
		if err != nil {
			return nil, err
		}
		node.Properties = apply(node.Properties)
		node.UpdatedAt = r.now
		if err := r.tx.UpdateNode(node); err != nil {
			return nil, err
		}
	}
	r.bind(st.Variable, el)
	return r.row(el)
}

func (r *localRun) delete(st script.Statement) error {
	var err error
	if st.Element == script.ElementEdge {
		err = r.tx.DeleteEdge(storage.EdgeID(idString(st.ID)))
	} else {
		err = r.tx.DeleteNode(storage.NodeID(idString(st.ID)))
	}
	// Dropping an empty traversal is not an error.
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// locate resolves a by-id statement, failing like next() on an empty
// traversal.
func (r *localRun) locate(st script.Statement) (element, error) {
	id := idString(st.ID)
	if st.Element == script.ElementEdge {
		if _, err := r.tx.GetEdge(storage.EdgeID(id)); err != nil {
			return element{}, notFound(err, "edge", id)
		}
		return element{kind: entity.KindEdge, edge: storage.EdgeID(id)}, nil
	}
	if _, err := r.tx.GetNode(storage.NodeID(id)); err != nil {
		return element{}, notFound(err, "vertex", id)
	}
	return element{kind: entity.KindVertex, node: storage.NodeID(id)}, nil
}

func (r *localRun) findVertices(st script.Statement) (any, error) {
	nodes, err := r.tx.NodesByLabel(st.Label)
	if err != nil {
		return nil, err
	}
	var out []any
	for _, n := range nodes {
		if !matches(n.Properties, st.Match) {
			continue
		}
		out = append(out, nodeRow(n))
		if st.Limit > 0 && len(out) >= st.Limit {
			break
		}
	}
	return out, nil
}

func (r *localRun) findEdges(st script.Statement) (any, error) {
	out, err := r.vertexID(st.Out)
	if err != nil {
		return nil, err
	}
	in, err := r.vertexID(st.In)
	if err != nil {
		return nil, err
	}
	edges, err := r.tx.OutgoingEdges(out)
	if err != nil {
		return nil, err
	}
	var rows []any
	for _, e := range edges {
		if e.EndNode != in || (st.Label != "" && e.Type != st.Label) {
			continue
		}
		rows = append(rows, edgeRowFrom(e))
		if st.Limit > 0 && len(rows) >= st.Limit {
			break
		}
	}
	return rows, nil
}

func (r *localRun) vertexID(ref script.Ref) (storage.NodeID, error) {
	if ref.Variable != "" {
		el, ok := r.vars[ref.Variable]
		if !ok || el.kind != entity.KindVertex {
			return "", fmt.Errorf("variable %q is not a vertex", ref.Variable)
		}
		return el.node, nil
	}
	id := idString(ref.ID)
	if id == "" {
		return "", storage.ErrInvalidID
	}
	return storage.NodeID(id), nil
}

func (r *localRun) row(el element) (map[string]any, error) {
	if el.kind == entity.KindEdge {
		e, err := r.tx.GetEdge(el.edge)
		if err != nil {
			return nil, err
		}
		return edgeRowFrom(e), nil
	}
	n, err := r.tx.GetNode(el.node)
	if err != nil {
		return nil, err
	}
	return nodeRow(n), nil
}

func nodeRow(n *storage.Node) map[string]any {
	row := make(map[string]any, len(n.Properties)+3)
	for k, v := range n.Properties {
		row[k] = convert.Clone(v)
	}
	row[entity.FieldID] = string(n.ID)
	row[entity.KeyType] = string(entity.KindVertex)
	row[entity.FieldLabel] = n.Label
	return row
}

func edgeRowFrom(e *storage.Edge) map[string]any {
	row := make(map[string]any, len(e.Properties)+5)
	for k, v := range e.Properties {
		row[k] = convert.Clone(v)
	}
	row[entity.FieldID] = string(e.ID)
	row[entity.KeyType] = string(entity.KindEdge)
	row[entity.FieldLabel] = e.Type
	row[entity.KeyOutV] = string(e.StartNode)
	row[entity.KeyInV] = string(e.EndNode)
	return row
}

func properties(props []script.Property) map[string]any {
	out := make(map[string]any, len(props))
	for _, p := range props {
		if p.Value == nil {
			continue
		}
		out[p.Key] = convert.Clone(p.Value)
	}
	return out
}

func matches(props map[string]any, match []script.Property) bool {
	for _, m := range match {
		got, ok := props[m.Key]
		if !ok {
			return false
		}
		if !cmp.Equal(convert.NormalizeNumbers(got), convert.NormalizeNumbers(m.Value)) {
			return false
		}
	}
	return true
}

func idString(id any) string {
	if id == nil {
		return ""
	}
	if s, ok := id.(string); ok {
		return s
	}
	return fmt.Sprint(id)
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidID) {
		return fmt.Errorf("%w: %s %q", ErrNoSuchElement, kind, id)
	}
	return err
}
