package mapper

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/orneryd/nornicogm/pkg/entity"
	"github.com/orneryd/nornicogm/pkg/executor"
	"github.com/orneryd/nornicogm/pkg/pool"
	"github.com/orneryd/nornicogm/pkg/script"
)

// DefaultVariablePrefix prefixes the script variables of a batch.
const DefaultVariablePrefix = "ogm_var"

// Session accumulates one batch at a time and sends it as a single script.
// A Session is not safe for concurrent use.
type Session struct {
	exec     executor.Executor
	registry *Registry
	log      *zap.Logger
	clock    func() time.Time

	graph      string
	prefix     string
	autoCommit bool

	// batch state, reset after every Send
	script     *script.Builder
	fragments  []string
	statements []script.Statement
	identity   map[entity.Ref]string
	variables  []string
	bound      map[string]entity.Entity
	deleted    []deletion
	callbacks  map[string][]Callback
	counter    int
	usages     map[string]int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger. Compiled scripts are logged at debug
// level.
func WithLogger(log *zap.Logger) SessionOption {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithGraphVariable sets the traversal source variable, "g" by default.
func WithGraphVariable(graph string) SessionOption {
	return func(s *Session) {
		if graph != "" {
			s.graph = graph
		}
	}
}

// WithVariablePrefix sets the prefix of generated script variables.
func WithVariablePrefix(prefix string) SessionOption {
	return func(s *Session) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithAutoCommit controls whether Send appends an explicit commit. Sessions
// auto-commit by default.
func WithAutoCommit(auto bool) SessionOption {
	return func(s *Session) { s.autoCommit = auto }
}

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.clock = now
		}
	}
}

// NewSession creates a session sending batches through exec. A nil registry
// knows only the generic types.
func NewSession(exec executor.Executor, registry *Registry, opts ...SessionOption) *Session {
	if registry == nil {
		registry, _ = NewRegistry(nil)
	}
	s := &Session{
		exec:       exec,
		registry:   registry,
		log:        zap.NewNop(),
		clock:      time.Now,
		graph:      script.DefaultGraph,
		prefix:     DefaultVariablePrefix,
		autoCommit: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

// Reset discards the current batch and restarts the variable counters.
func (s *Session) Reset() {
	s.script = script.NewBuilder(s.graph, nil)
	s.fragments = nil
	s.statements = nil
	s.identity = make(map[entity.Ref]string)
	s.variables = nil
	s.bound = make(map[string]entity.Entity)
	s.deleted = nil
	s.callbacks = make(map[string][]Callback)
	s.counter = 0
	s.usages = make(map[string]int)
}

// CallOption configures a single Save or Delete.
type CallOption func(*callOptions)

type callOptions struct {
	mapper    *EntityMapper
	callbacks []Callback
}

// WithMapper uses m instead of the mapper registered for the entity's type.
func WithMapper(m *EntityMapper) CallOption {
	return func(o *callOptions) { o.mapper = m }
}

// WithCallbacks registers callbacks fired after the batch executed, after
// the policy's lifecycle hook.
func WithCallbacks(callbacks ...Callback) CallOption {
	return func(o *callOptions) { o.callbacks = append(o.callbacks, callbacks...) }
}

func (s *Session) callOptions(e entity.Entity, opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.mapper == nil && e != nil {
		o.mapper = s.Mapper(e)
	}
	return o
}

// Mapper returns a mapper applying the policy registered for e's type.
func (s *Session) Mapper(e entity.Entity) *EntityMapper {
	return newEntityMapper(s, s.registry.Policy(e.Type(), e.Kind()))
}

// MapperFor returns a mapper for a type name.
func (s *Session) MapperFor(typ string, kind entity.Kind) *EntityMapper {
	return newEntityMapper(s, s.registry.Policy(typ, kind))
}

// Save adds e to the batch and returns its script variable. Vertex
// endpoints of an edge are saved first. On error nothing of e is added.
func (s *Session) Save(ctx context.Context, e entity.Entity, opts ...CallOption) (string, error) {
	if e == nil {
		return "", &EntityError{Op: "save", Message: "nil entity"}
	}
	o := s.callOptions(e, opts)
	variable, err := o.mapper.Save(ctx, e, o.callbacks...)
	if err != nil {
		o.mapper.Reset()
		return "", err
	}
	s.absorb(o.mapper.drain())
	return variable, nil
}

// Delete adds the removal of e to the batch.
func (s *Session) Delete(e entity.Entity, opts ...CallOption) error {
	if e == nil {
		return &EntityError{Op: "delete", Message: "nil entity"}
	}
	o := s.callOptions(e, opts)
	if err := o.mapper.Delete(e, o.callbacks...); err != nil {
		o.mapper.Reset()
		return err
	}
	s.absorb(o.mapper.drain())
	return nil
}

// Connect builds an unsaved edge from out to in. Each endpoint is a
// *entity.Vertex or a non-empty id. A nil schema picks the type from data or
// falls back to the generic edge.
func (s *Session) Connect(out, in any, label string, data map[string]any, schema *entity.Schema) (*entity.Edge, error) {
	if err := checkEndpoint("out", out); err != nil {
		return nil, err
	}
	if err := checkEndpoint("in", in); err != nil {
		return nil, err
	}

	d := make(map[string]any, len(data)+4)
	for k, v := range data {
		d[k] = v
	}
	d[entity.KeyOut] = out
	d[entity.KeyIn] = in
	d[entity.KeyType] = string(entity.KindEdge)
	if label != "" {
		d[entity.FieldLabel] = label
	}

	e, ok := s.CreateModel(d, schema).(*entity.Edge)
	if !ok {
		return nil, &EntityError{Op: "connect", Message: "connect data did not produce an edge"}
	}
	return e, nil
}

func checkEndpoint(side string, v any) error {
	switch val := v.(type) {
	case *entity.Vertex:
		if val != nil {
			return nil
		}
	case string:
		if val != "" {
			return nil
		}
	case nil:
	default:
		return nil
	}
	return &EntityError{Op: "connect", Message: "the " + side + " vertex needs to be a vertex or an id"}
}

// CreateModel builds an entity from data through the mapper of its type.
func (s *Session) CreateModel(data map[string]any, schema *entity.Schema) entity.Entity {
	typ, _ := data[entity.FieldModel].(string)
	kind := entity.KindVertex
	if schema != nil {
		typ = schema.Name()
		kind = schema.Kind()
	} else if k, _ := data[entity.KeyType].(string); k == string(entity.KindEdge) {
		kind = entity.KindEdge
	}
	return s.MapperFor(typ, kind).CreateModel(data, schema)
}

// VariableOf returns the variable e is bound to in the current batch.
func (s *Session) VariableOf(e entity.Entity) (string, bool) {
	if e == nil {
		return "", false
	}
	return s.variableOf(e.Ref())
}

// Pending returns the script and parameters Send would issue now, without
// sending or resetting anything.
func (s *Session) Pending() (string, map[string]any) {
	fragments, _ := s.assemble()
	defer pool.PutStringSlice(fragments)
	return script.Join(fragments), s.script.Params()
}

// Send issues the batch, refreshes every bound entity from its returned
// row and fires callbacks in registration order. The session is reset
// before the request goes out, so a failed Send leaves an empty batch and
// fires no callbacks.
func (s *Session) Send(ctx context.Context) (*Collection, error) {
	fragments, statements := s.assemble()
	defer pool.PutStringSlice(fragments)
	if len(s.statements) == 0 {
		s.Reset()
		return newCollection(s, nil), nil
	}

	req := &executor.Request{
		Script:     script.Join(fragments),
		Params:     s.script.Params(),
		Statements: statements,
		Bindings:   make(map[string]entity.Entity, len(s.bound)),
	}
	for k, v := range s.bound {
		req.Bindings[k] = v
	}
	variables := s.variables
	deleted := s.deleted
	callbacks := s.callbacks
	s.Reset()

	resp, err := s.send(ctx, req)
	if err != nil {
		return nil, err
	}

	returned, _ := resp.First().(map[string]any)
	rows := make([]any, 0, len(variables))
	entities := make([]entity.Entity, 0, len(variables))
	for _, variable := range variables {
		e := req.Bindings[variable]
		if row, ok := returned[variable].(map[string]any); ok {
			e.Refresh(row)
			rows = append(rows, row)
		} else {
			rows = append(rows, e.Data())
		}
		entities = append(entities, e)
		fire(e, callbacks[variable])
	}
	for _, d := range deleted {
		fire(d.entity, callbacks[d.key])
	}

	c := newCollection(s, rows)
	for i, e := range entities {
		c.Set(i, e)
	}
	return c, nil
}

func fire(e entity.Entity, callbacks []Callback) {
	for _, cb := range callbacks {
		cb(e)
	}
}

// Query runs one statement immediately, outside the batch.
func (s *Session) Query(ctx context.Context, st script.Statement) (*Collection, error) {
	return s.query(ctx, st)
}

// Start seeds a statement at e's stored element, g.V(id) for vertices and
// g.E(id) for edges. Run it with Query to read the element back.
func (s *Session) Start(e entity.Entity) (script.Statement, error) {
	if e == nil {
		return script.Statement{}, &EntityError{Op: "start", Message: "no entity"}
	}
	if !e.HasID() {
		return script.Statement{}, &EntityError{Op: "start", Type: e.Type(), Message: "the entity has not been saved"}
	}
	return script.Statement{
		Op:      script.OpLookup,
		Element: element(e),
		ID:      e.ID(),
		Scope:   e.Type(),
	}, nil
}

// assemble returns the batch fragments and statements with the commit and
// return trailers appended. The fragment slice comes from the pool; callers
// put it back once joined.
func (s *Session) assemble() ([]string, []script.Statement) {
	fragments := append(pool.GetStringSlice(), s.fragments...)
	statements := append([]script.Statement(nil), s.statements...)
	trailer := func(st script.Statement) {
		text, err := s.script.Render(st)
		if err != nil {
			s.log.Error("render trailer", zap.String("op", string(st.Op)), zap.Error(err))
			return
		}
		fragments = append(fragments, text)
		statements = append(statements, st)
	}
	if !s.autoCommit {
		trailer(script.Statement{Op: script.OpCommit})
	}
	if len(s.variables) > 0 {
		trailer(script.Statement{Op: script.OpReturn, Returns: append([]string(nil), s.variables...)})
	}
	return fragments, statements
}

func (s *Session) send(ctx context.Context, req *executor.Request) (*executor.Response, error) {
	if ce := s.log.Check(zap.DebugLevel, "sending script"); ce != nil {
		ce.Write(
			zap.String("script", req.Script),
			zap.Any("params", req.Params),
			zap.String("interpolated", script.Interpolate(req.Script, req.Params)),
		)
	}
	resp, err := s.exec.Send(ctx, req)
	if err != nil {
		s.log.Debug("script failed", zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// absorb merges a drained mapper into the batch.
func (s *Session) absorb(out output) {
	s.fragments = append(s.fragments, out.fragments...)
	s.statements = append(s.statements, out.statements...)
	for _, variable := range out.variables {
		e := out.bound[variable]
		s.variables = append(s.variables, variable)
		s.bound[variable] = e
		if _, ok := s.identity[e.Ref()]; !ok {
			s.identity[e.Ref()] = variable
		}
	}
	s.deleted = append(s.deleted, out.deleted...)
	for key, callbacks := range out.callbacks {
		s.callbacks[key] = append(s.callbacks[key], callbacks...)
	}
}

// resolver

func (s *Session) variableOf(ref entity.Ref) (string, bool) {
	v, ok := s.identity[ref]
	return v, ok
}

func (s *Session) nextVariable() string {
	s.counter++
	return s.prefix + "_" + strconv.Itoa(s.counter)
}

func (s *Session) usage(typ string) int {
	s.usages[typ]++
	return s.usages[typ]
}

func (s *Session) builder() *script.Builder { return s.script }

func (s *Session) save(ctx context.Context, e entity.Entity) (string, error) {
	return s.Save(ctx, e)
}

func (s *Session) query(ctx context.Context, st script.Statement) (*Collection, error) {
	b := script.NewBuilder(s.graph, nil)
	text, err := b.Render(st)
	if err != nil {
		return nil, &QueryError{Op: string(st.Op), Message: err.Error()}
	}
	resp, err := s.send(ctx, &executor.Request{
		Script:     text,
		Params:     b.Params(),
		Statements: []script.Statement{st},
	})
	if err != nil {
		return nil, err
	}
	return newCollection(s, resp.Data), nil
}

func (s *Session) models() *Registry { return s.registry }

func (s *Session) now() time.Time { return s.clock() }

func (s *Session) logger() *zap.Logger { return s.log }
