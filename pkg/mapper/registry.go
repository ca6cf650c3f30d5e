package mapper

import (
	"errors"
	"fmt"

	"github.com/orneryd/nornicogm/pkg/entity"
)

var (
	// ErrDuplicatePolicy is returned when two policies name the same type.
	ErrDuplicatePolicy = errors.New("duplicate mapper policy")
	// ErrUnknownType is returned for a policy whose type is not registered.
	ErrUnknownType = errors.New("unknown entity type")
)

// Registry pairs the entity type registry with the mapper policy of each
// type. It is built once at startup and never mutated.
type Registry struct {
	types    *entity.Registry
	policies map[string]Policy
}

// NewRegistry builds a registry. A nil types registry holds only the
// generic schemas. Types without a policy get the zero policy.
func NewRegistry(types *entity.Registry, policies ...Policy) (*Registry, error) {
	if types == nil {
		types = entity.MustRegistry()
	}
	r := &Registry{types: types, policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		if _, ok := types.Lookup(p.Type); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, p.Type)
		}
		if _, ok := r.policies[p.Type]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePolicy, p.Type)
		}
		r.policies[p.Type] = p
	}
	return r, nil
}

// Types returns the entity type registry.
func (r *Registry) Types() *entity.Registry { return r.types }

// Policy returns the policy registered for typ, falling back to the
// generic policy of the given kind.
func (r *Registry) Policy(typ string, kind entity.Kind) Policy {
	if p, ok := r.policies[typ]; ok {
		return p
	}
	generic := entity.GenericVertex.Name()
	if kind == entity.KindEdge {
		generic = entity.GenericEdge.Name()
	}
	if p, ok := r.policies[generic]; ok {
		return p
	}
	return Policy{Type: typ}
}
