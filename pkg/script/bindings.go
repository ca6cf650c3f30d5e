package script

import (
	"strconv"
	"strings"
)

// Bindings is the parameter namespace of one batch. Every Bind returns a
// name that is unique within the batch and safe to use as a Groovy
// identifier.
type Bindings struct {
	params map[string]any
	order  []string
}

// NewBindings creates an empty table.
func NewBindings() *Bindings {
	return &Bindings{params: make(map[string]any)}
}

// Bind stores v under a name derived from hint and returns the name.
func (b *Bindings) Bind(hint string, v any) string {
	name := sanitize(hint)
	if _, taken := b.params[name]; taken {
		for i := 2; ; i++ {
			candidate := name + "_" + strconv.Itoa(i)
			if _, taken := b.params[candidate]; !taken {
				name = candidate
				break
			}
		}
	}
	b.params[name] = v
	b.order = append(b.order, name)
	return name
}

// Params returns a copy of the table.
func (b *Bindings) Params() map[string]any {
	out := make(map[string]any, len(b.params))
	for k, v := range b.params {
		out[k] = v
	}
	return out
}

// Names returns bound names in binding order.
func (b *Bindings) Names() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Len returns the number of bound parameters.
func (b *Bindings) Len() int { return len(b.order) }

// Reset empties the table.
func (b *Bindings) Reset() {
	b.params = make(map[string]any)
	b.order = nil
}

// sanitize maps a hint onto [a-z0-9_], never starting with a digit.
func sanitize(hint string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(hint) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	name := sb.String()
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "p_" + name
	}
	return name
}
