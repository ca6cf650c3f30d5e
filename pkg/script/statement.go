// Package script renders structured graph statements as parameterized
// Gremlin-Groovy.
//
// The mapper never writes script text itself. It produces Statements, and a
// Builder turns each one into a fragment while binding every scalar through a
// batch-wide Bindings table, so user data never reaches the script text.
// Nested maps and lists become Groovy literals whose leaves are bound
// parameters.
//
// Statements keep their raw values, which lets the embedded executor run a
// batch without parsing Groovy.
package script

import (
	"errors"
	"fmt"
	"strings"
)

// Op identifies what a statement does.
type Op string

const (
	OpAddVertex    Op = "add_vertex"
	OpAddEdge      Op = "add_edge"
	OpUpdate       Op = "update"
	OpLookup       Op = "lookup"
	OpDelete       Op = "delete"
	OpFindVertices Op = "find_vertices"
	OpFindEdges    Op = "find_edges"
	OpCommit       Op = "commit"
	OpReturn       Op = "return"
)

// Element selects the traversal start step.
type Element string

const (
	ElementVertex Element = "V"
	ElementEdge   Element = "E"
)

// ErrMalformed is returned when a statement lacks what its Op needs.
var ErrMalformed = errors.New("malformed statement")

// Property is an ordered key/value pair.
type Property struct {
	Key   string
	Value any
}

// Ref points at a vertex either through a script variable bound earlier in
// the batch or through a graph id.
type Ref struct {
	Variable string
	ID       any
}

// Var references a script variable.
func Var(name string) Ref { return Ref{Variable: name} }

// ID references a graph id.
func ID(id any) Ref { return Ref{ID: id} }

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	if r.Variable != "" {
		return false
	}
	if s, ok := r.ID.(string); ok {
		return s == ""
	}
	return r.ID == nil
}

func (r Ref) String() string {
	if r.Variable != "" {
		return r.Variable
	}
	return fmt.Sprint(r.ID)
}

// Statement is one structured script fragment.
type Statement struct {
	Op Op
	// Variable receives the statement's result. Empty for statements that
	// produce nothing the caller binds.
	Variable string
	Element  Element
	ID       any
	Label    string
	// Properties to write, in order.
	Properties []Property
	// Remove lists property keys to drop on update.
	Remove []string
	Out    Ref
	In     Ref
	// Match holds property filters for find_vertices.
	Match []Property
	// Limit caps find results. Zero means no limit.
	Limit   int
	Returns []string
	// Scope prefixes parameter names, for example "person_1".
	Scope string
}

// Element defaults to vertices.
func (s Statement) element() Element {
	if s.Element == "" {
		return ElementVertex
	}
	return s.Element
}

// Assign binds a fragment's result to a variable.
func Assign(variable, text string) string {
	if variable == "" {
		return text
	}
	return variable + " = " + text
}

// Join concatenates fragments into one script.
func Join(fragments []string) string {
	return strings.Join(fragments, ";\n")
}
