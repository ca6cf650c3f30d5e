// Package field implements typed value slots with change tracking.
//
// A Field is built from a Prototype declared on an entity schema. It keeps the
// current value plus a baseline captured at the last Commit, which is what the
// query compiler compares against to decide whether an update needs to write
// anything.
//
// Mutability policy per field:
//   - Immutable: Set is always rejected. Load (construction and refresh) still works.
//   - SetOnce: Set is rejected once the field holds a non-empty value.
//   - Untracked: the field never reports as changed.
//
// Example:
//
//	name := field.String("name", field.SetOnce()).New()
//	name.Set("alice") // true
//	name.Set("bob")   // false, value stays "alice"
package field

import (
	"reflect"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/orneryd/nornicogm/pkg/convert"
)

// Kind is the declared value kind of a field.
type Kind string

const (
	KindString   Kind = "string"
	KindInteger  Kind = "integer"
	KindFloat    Kind = "float"
	KindBoolean  Kind = "boolean"
	KindDateTime Kind = "datetime"
	KindList     Kind = "list"
	KindMap      Kind = "map"
	KindAny      Kind = "any"
)

// Prototype declares a field on a schema. Prototypes are values; every entity
// instance gets its own Field built with New.
type Prototype struct {
	Name      string
	Kind      Kind
	Default   func() any
	Immutable bool
	SetOnce   bool
	Untracked bool
}

// Option configures a Prototype.
type Option func(*Prototype)

// Default sets a static default. Maps and lists are deep-copied for every
// instance.
func Default(v any) Option {
	return func(p *Prototype) {
		p.Default = func() any { return convert.Clone(v) }
	}
}

// DefaultFunc sets a zero-argument default producer.
func DefaultFunc(fn func() any) Option {
	return func(p *Prototype) { p.Default = fn }
}

// Immutable rejects every Set after construction.
func Immutable() Option {
	return func(p *Prototype) { p.Immutable = true }
}

// SetOnce rejects Set once the field is non-empty.
func SetOnce() Option {
	return func(p *Prototype) { p.SetOnce = true }
}

// Untracked excludes the field from change detection.
func Untracked() Option {
	return func(p *Prototype) { p.Untracked = true }
}

func newPrototype(name string, kind Kind, opts []Option) Prototype {
	p := Prototype{Name: name, Kind: kind}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Prototype constructors, one per Kind.
func String(name string, opts ...Option) Prototype { return newPrototype(name, KindString, opts) }
func Integer(name string, opts ...Option) Prototype { return newPrototype(name, KindInteger, opts) }
func Float(name string, opts ...Option) Prototype { return newPrototype(name, KindFloat, opts) }
func Boolean(name string, opts ...Option) Prototype { return newPrototype(name, KindBoolean, opts) }
func DateTime(name string, opts ...Option) Prototype { return newPrototype(name, KindDateTime, opts) }
func List(name string, opts ...Option) Prototype { return newPrototype(name, KindList, opts) }
func Map(name string, opts ...Option) Prototype { return newPrototype(name, KindMap, opts) }
func Any(name string, opts ...Option) Prototype { return newPrototype(name, KindAny, opts) }

// Infer builds a prototype for an undeclared field from the shape of its
// first value: string-keyed maps become KindMap, sequences KindList, and
// everything else KindAny.
func Infer(name string, v any) Prototype {
	switch {
	case convert.IsMap(v):
		return Map(name)
	case convert.IsList(v):
		return List(name)
	}
	return Any(name)
}

// New creates a Field holding the prototype's default as both current and
// baseline value.
func (p Prototype) New() *Field {
	f := &Field{proto: p}
	if p.Default != nil {
		f.value = f.coerce(p.Default())
	}
	f.initial = convert.Clone(f.value)
	return f
}

// Field is one value slot of an entity.
type Field struct {
	proto   Prototype
	value   any
	initial any
}

func (f *Field) Name() string { return f.proto.Name }
func (f *Field) Kind() Kind { return f.proto.Kind }
func (f *Field) Prototype() Prototype { return f.proto }
func (f *Field) Value() any { return f.value }
func (f *Field) Initial() any { return f.initial }
func (f *Field) Immutable() bool { return f.proto.Immutable }
func (f *Field) SetOnce() bool { return f.proto.SetOnce }
func (f *Field) Tracked() bool { return !f.proto.Untracked }

// Set assigns v unless the field is immutable or set-once and already holds a
// value. Returns false when the write was rejected.
func (f *Field) Set(v any) bool {
	if f.proto.Immutable {
		return false
	}
	if f.proto.SetOnce && !f.Empty() {
		return false
	}
	f.value = f.coerce(v)
	return true
}

// Load assigns v bypassing immutability and set-once. Used when hydrating
// an entity from data.
func (f *Field) Load(v any) {
	f.value = f.coerce(v)
}

// Empty reports whether the field holds nil, an empty string, an empty
// collection or the zero time.
func (f *Field) Empty() bool {
	return isEmpty(f.value)
}

// Changed reports whether a tracked field differs from its baseline.
func (f *Field) Changed() bool {
	if f.proto.Untracked {
		return false
	}
	return !equal(f.value, f.initial)
}

// Commit makes the current value the new baseline.
func (f *Field) Commit() {
	f.initial = convert.Clone(f.value)
}

// Render returns the graph representation of the value without touching the
// field. Datetimes become unix microseconds; lists and maps are rendered
// element by element.
func (f *Field) Render() any {
	return Render(f.value)
}

// Render converts a value to its graph representation.
func Render(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().UnixMicro()
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().UnixMicro()
	}
	switch {
	case convert.IsMap(v):
		m, _ := convert.ToMap(v)
		out := make(map[string]any, len(m))
		for k, item := range m {
			out[k] = Render(item)
		}
		return out
	case convert.IsList(v):
		l, _ := convert.ToList(v)
		out := make([]any, len(l))
		for i, item := range l {
			out[i] = Render(item)
		}
		return out
	}
	return v
}

func (f *Field) coerce(v any) any {
	if v == nil {
		return nil
	}
	switch f.proto.Kind {
	case KindInteger:
		if i, ok := convert.ToInt64(v); ok {
			return i
		}
	case KindFloat:
		if n, ok := convert.ToFloat64(v); ok {
			return n
		}
	case KindBoolean:
		if b, ok := convert.ToBool(v); ok {
			return b
		}
	case KindDateTime:
		if t, ok := convert.ToTime(v); ok {
			return t
		}
	case KindList:
		if convert.IsList(v) {
			return convert.NormalizeNumbers(v)
		}
	case KindMap:
		if convert.IsMap(v) {
			return convert.NormalizeNumbers(v)
		}
	case KindAny:
		return convert.NormalizeNumbers(v)
	}
	return v
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case time.Time:
		return val.IsZero()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer:
		return rv.IsNil()
	}
	return false
}

var compareOpts = []cmp.Option{
	cmpopts.EquateEmpty(),
	cmp.Exporter(func(reflect.Type) bool { return true }),
}

func equal(a, b any) bool {
	return cmp.Equal(a, b, compareOpts...)
}
