package field

import "sort"

// Set is the ordered collection of fields belonging to one entity.
//
// Access to unknown names is permissive: when undefined fields are not
// allowed, writes are dropped and reads return nil. When they are allowed the
// first write materializes a field with an inferred kind and the first read
// materializes an empty KindAny field.
type Set struct {
	allowUndefined bool
	order          []string
	fields         map[string]*Field
	removed        []string
}

// NewSet builds a fresh set from prototypes. Later prototypes with the same
// name replace earlier ones but keep the original position.
func NewSet(allowUndefined bool, protos ...Prototype) *Set {
	s := &Set{
		allowUndefined: allowUndefined,
		fields:         make(map[string]*Field, len(protos)),
	}
	for _, p := range protos {
		s.Add(p)
	}
	return s
}

// AllowUndefined reports whether the set accepts undeclared names.
func (s *Set) AllowUndefined() bool { return s.allowUndefined }

// Add installs a new field for p, replacing any field with the same name.
func (s *Set) Add(p Prototype) *Field {
	f := p.New()
	if _, exists := s.fields[p.Name]; !exists {
		s.order = append(s.order, p.Name)
	}
	s.fields[p.Name] = f
	s.unremove(p.Name)
	return f
}

// Field returns the named field.
func (s *Set) Field(name string) (*Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Has reports whether the named field exists.
func (s *Set) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Len returns the number of fields.
func (s *Set) Len() int { return len(s.order) }

// Names returns field names in declaration order.
func (s *Set) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Set writes a value through the field's mutability policy. Returns false
// when the write was dropped.
func (s *Set) Set(name string, v any) bool {
	if f, ok := s.fields[name]; ok {
		return f.Set(v)
	}
	if !s.allowUndefined {
		return false
	}
	return s.Add(Infer(name, v)).Set(v)
}

// Load writes a value bypassing immutability and set-once.
func (s *Set) Load(name string, v any) bool {
	if f, ok := s.fields[name]; ok {
		f.Load(v)
		return true
	}
	if !s.allowUndefined {
		return false
	}
	s.Add(Infer(name, v)).Load(v)
	return true
}

// Get returns the value of the named field, or nil.
func (s *Set) Get(name string) any {
	if f, ok := s.fields[name]; ok {
		return f.Value()
	}
	if !s.allowUndefined {
		return nil
	}
	return s.Add(Any(name)).Value()
}

// Delete removes an undefined-capable field and records the removal so an
// update can drop the property. Returns false for strict sets or unknown
// names.
func (s *Set) Delete(name string) bool {
	if !s.allowUndefined {
		return false
	}
	if _, ok := s.fields[name]; !ok {
		return false
	}
	delete(s.fields, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.removed = append(s.removed, name)
	return true
}

// Data returns a name to value snapshot of every field.
func (s *Set) Data() map[string]any {
	out := make(map[string]any, len(s.order))
	for _, name := range s.order {
		out[name] = s.fields[name].Value()
	}
	return out
}

// Changed returns tracked fields whose value differs from the baseline.
func (s *Set) Changed() []*Field {
	var out []*Field
	for _, name := range s.order {
		if f := s.fields[name]; f.Changed() {
			out = append(out, f)
		}
	}
	return out
}

// Unchanged returns tracked fields equal to their baseline.
func (s *Set) Unchanged() []*Field {
	var out []*Field
	for _, name := range s.order {
		if f := s.fields[name]; f.Tracked() && !f.Changed() {
			out = append(out, f)
		}
	}
	return out
}

// Removed returns deleted field names, sorted.
func (s *Set) Removed() []string {
	out := make([]string, len(s.removed))
	copy(out, s.removed)
	sort.Strings(out)
	return out
}

// Dirty reports whether any field changed or was removed.
func (s *Set) Dirty() bool {
	return len(s.removed) > 0 || len(s.Changed()) > 0
}

// Commit captures every current value as baseline and forgets removals.
func (s *Set) Commit() {
	for _, f := range s.fields {
		f.Commit()
	}
	s.removed = nil
}

func (s *Set) unremove(name string) {
	for i, n := range s.removed {
		if n == name {
			s.removed = append(s.removed[:i], s.removed[i+1:]...)
			return
		}
	}
}
