package script

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/orneryd/nornicogm/pkg/convert"
	"github.com/orneryd/nornicogm/pkg/pool"
)

// DefaultGraph is the traversal source variable used by Gremlin Server.
const DefaultGraph = "g"

// Builder renders statements against one Bindings table.
type Builder struct {
	graph    string
	bindings *Bindings
}

// NewBuilder creates a builder. An empty graph means DefaultGraph; a nil
// bindings table gets a fresh one.
func NewBuilder(graph string, bindings *Bindings) *Builder {
	if graph == "" {
		graph = DefaultGraph
	}
	if bindings == nil {
		bindings = NewBindings()
	}
	return &Builder{graph: graph, bindings: bindings}
}

// Bindings returns the builder's parameter table.
func (b *Builder) Bindings() *Bindings { return b.bindings }

// Params returns the parameters bound so far.
func (b *Builder) Params() map[string]any { return b.bindings.Params() }

// Reset clears bound parameters.
func (b *Builder) Reset() { b.bindings.Reset() }

// Render turns a statement into a fragment, assigning it to the statement's
// variable when one is set.
func (b *Builder) Render(st Statement) (string, error) {
	sb := pool.GetStringBuilder()
	defer pool.PutStringBuilder(sb)

	var err error
	switch st.Op {
	case OpAddVertex:
		err = b.addVertex(sb, st)
	case OpAddEdge:
		err = b.addEdge(sb, st)
	case OpUpdate:
		err = b.update(sb, st)
	case OpLookup:
		err = b.lookup(sb, st)
	case OpDelete:
		err = b.delete(sb, st)
	case OpFindVertices:
		b.findVertices(sb, st)
	case OpFindEdges:
		err = b.findEdges(sb, st)
	case OpCommit:
		sb.WriteString(b.graph)
		sb.WriteString(".tx().commit()")
	case OpReturn:
		b.returns(sb, st)
	default:
		err = fmt.Errorf("%w: unknown op %q", ErrMalformed, st.Op)
	}
	if err != nil {
		return "", err
	}
	return Assign(st.Variable, sb.String()), nil
}

func (b *Builder) addVertex(sb *pool.StringBuilder, st Statement) error {
	if st.Label == "" {
		return fmt.Errorf("%w: add_vertex without label", ErrMalformed)
	}
	sb.WriteString(b.graph)
	sb.WriteString(".addV(")
	sb.WriteString(b.bind(st.Scope, "label", st.Label))
	sb.WriteByte(')')
	for _, p := range st.Properties {
		if p.Value == nil {
			continue
		}
		sb.WriteString(".property(")
		sb.WriteQuoted(p.Key)
		sb.WriteString(", ")
		b.literal(sb, st.Scope+"_"+p.Key, p.Value)
		sb.WriteByte(')')
	}
	sb.WriteString(".next()")
	return nil
}

func (b *Builder) addEdge(sb *pool.StringBuilder, st Statement) error {
	if st.Label == "" {
		return fmt.Errorf("%w: add_edge without label", ErrMalformed)
	}
	if st.Out.IsZero() || st.In.IsZero() {
		return fmt.Errorf("%w: add_edge without endpoints", ErrMalformed)
	}
	b.vertexRef(sb, st.Scope, "out", st.Out)
	sb.WriteString(".addEdge(")
	sb.WriteString(b.bind(st.Scope, "label", st.Label))
	sb.WriteString(", ")
	b.vertexRef(sb, st.Scope, "in", st.In)
	for _, p := range st.Properties {
		if p.Value == nil {
			continue
		}
		sb.WriteString(", ")
		sb.WriteQuoted(p.Key)
		sb.WriteString(", ")
		b.literal(sb, st.Scope+"_"+p.Key, p.Value)
	}
	sb.WriteByte(')')
	return nil
}

func (b *Builder) update(sb *pool.StringBuilder, st Statement) error {
	if err := b.start(sb, st); err != nil {
		return err
	}
	var drops []string
	for _, p := range st.Properties {
		if p.Value == nil {
			drops = append(drops, p.Key)
			continue
		}
		sb.WriteString(".property(")
		sb.WriteQuoted(p.Key)
		sb.WriteString(", ")
		b.literal(sb, st.Scope+"_"+p.Key, p.Value)
		sb.WriteByte(')')
	}
	drops = append(drops, st.Remove...)
	if len(drops) > 0 {
		sb.WriteString(".sideEffect(__.properties(")
		for i, key := range drops {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteQuoted(key)
		}
		sb.WriteString(").drop())")
	}
	sb.WriteString(".next()")
	return nil
}

func (b *Builder) lookup(sb *pool.StringBuilder, st Statement) error {
	if err := b.start(sb, st); err != nil {
		return err
	}
	sb.WriteString(".next()")
	return nil
}

func (b *Builder) delete(sb *pool.StringBuilder, st Statement) error {
	if err := b.start(sb, st); err != nil {
		return err
	}
	sb.WriteString(".drop().iterate()")
	return nil
}

// start writes g.V(id) or g.E(id).
func (b *Builder) start(sb *pool.StringBuilder, st Statement) error {
	if isEmptyID(st.ID) {
		return fmt.Errorf("%w: %s without id", ErrMalformed, st.Op)
	}
	sb.WriteString(b.graph)
	sb.WriteByte('.')
	sb.WriteString(string(st.element()))
	sb.WriteByte('(')
	sb.WriteString(b.bind(st.Scope, "id", st.ID))
	sb.WriteByte(')')
	return nil
}

func (b *Builder) findVertices(sb *pool.StringBuilder, st Statement) {
	sb.WriteString(b.graph)
	sb.WriteString(".V()")
	if st.Label != "" {
		sb.WriteString(".hasLabel(")
		sb.WriteString(b.bind(st.Scope, "label", st.Label))
		sb.WriteByte(')')
	}
	for _, p := range st.Match {
		sb.WriteString(".has(")
		sb.WriteQuoted(p.Key)
		sb.WriteString(", ")
		b.literal(sb, st.Scope+"_"+p.Key, p.Value)
		sb.WriteByte(')')
	}
	b.limit(sb, st)
	sb.WriteString(".toList()")
}

func (b *Builder) findEdges(sb *pool.StringBuilder, st Statement) error {
	if st.Out.IsZero() || st.In.IsZero() {
		return fmt.Errorf("%w: find_edges without endpoints", ErrMalformed)
	}
	sb.WriteString(b.graph)
	sb.WriteString(".V(")
	b.refArg(sb, st.Scope, "out", st.Out)
	sb.WriteString(").outE(")
	if st.Label != "" {
		sb.WriteString(b.bind(st.Scope, "label", st.Label))
	}
	sb.WriteString(").where(__.inV().hasId(")
	b.refArg(sb, st.Scope, "in", st.In)
	sb.WriteString("))")
	b.limit(sb, st)
	sb.WriteString(".toList()")
	return nil
}

func (b *Builder) limit(sb *pool.StringBuilder, st Statement) {
	if st.Limit > 0 {
		sb.WriteString(".limit(")
		sb.WriteString(b.bind(st.Scope, "limit", st.Limit))
		sb.WriteByte(')')
	}
}

func (b *Builder) returns(sb *pool.StringBuilder, st Statement) {
	if len(st.Returns) == 0 {
		sb.WriteString("[:]")
		return
	}
	sb.WriteByte('[')
	for i, v := range st.Returns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteQuoted(v)
		sb.WriteString(": ")
		sb.WriteString(v)
	}
	sb.WriteByte(']')
}

// vertexRef writes a vertex object: the variable itself or a lookup by id.
func (b *Builder) vertexRef(sb *pool.StringBuilder, scope, role string, ref Ref) {
	if ref.Variable != "" {
		sb.WriteString(ref.Variable)
		return
	}
	sb.WriteString(b.graph)
	sb.WriteString(".V(")
	sb.WriteString(b.bind(scope, role, ref.ID))
	sb.WriteString(").next()")
}

// refArg writes a traversal argument: the variable or a bound id.
func (b *Builder) refArg(sb *pool.StringBuilder, scope, role string, ref Ref) {
	if ref.Variable != "" {
		sb.WriteString(ref.Variable)
		return
	}
	sb.WriteString(b.bind(scope, role, ref.ID))
}

// literal writes v: scalars as bound parameters, maps and lists as Groovy
// literals built recursively.
func (b *Builder) literal(sb *pool.StringBuilder, hint string, v any) {
	switch {
	case convert.IsMap(v):
		m, _ := convert.ToMap(v)
		if len(m) == 0 {
			sb.WriteString("[:]")
			return
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('[')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteQuoted(k)
			sb.WriteString(": ")
			b.literal(sb, hint+"_"+k, m[k])
		}
		sb.WriteByte(']')
	case convert.IsList(v):
		l, _ := convert.ToList(v)
		sb.WriteByte('[')
		for i, item := range l {
			if i > 0 {
				sb.WriteString(", ")
			}
			b.literal(sb, fmt.Sprintf("%s_%d", hint, i), item)
		}
		sb.WriteByte(']')
	default:
		sb.WriteString(b.bindings.Bind(hint, v))
	}
}

func (b *Builder) bind(scope, name string, v any) string {
	if scope == "" {
		return b.bindings.Bind(name, v)
	}
	return b.bindings.Bind(scope+"_"+name, v)
}

func isEmptyID(id any) bool {
	if id == nil {
		return true
	}
	if s, ok := id.(string); ok {
		return s == ""
	}
	return false
}

// Interpolate substitutes parameter values into a script for logging. The
// result is never sent.
func Interpolate(script string, params map[string]any) string {
	if len(params) == 0 {
		return script
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, regexp.QuoteMeta(name))
	}
	// Longest first so p_1 does not shadow p_10.
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	re := regexp.MustCompile(`\b(` + strings.Join(names, "|") + `)\b`)

	return re.ReplaceAllStringFunc(script, func(name string) string {
		return formatValue(params[name])
	})
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		sb := pool.GetStringBuilder()
		defer pool.PutStringBuilder(sb)
		sb.WriteQuoted(val)
		return sb.String()
	}
	return fmt.Sprint(v)
}
