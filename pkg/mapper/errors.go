package mapper

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrEntity = errors.New("entity error")
	ErrQuery  = errors.New("query error")
	ErrMapper = errors.New("mapper error")
)

// EntityError reports an entity that lacks the type or id an operation
// needs.
type EntityError struct {
	Op      string
	Type    string
	Message string
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("entity error (%s %s): %s", e.Op, e.Type, e.Message)
}

func (e *EntityError) Is(target error) bool { return target == ErrEntity }

// QueryError reports a compile-time violation: an insert without a type, an
// edge without a label or endpoints, an update without an id.
type QueryError struct {
	Op      string
	Type    string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query error (%s %s): %s", e.Op, e.Type, e.Message)
}

func (e *QueryError) Is(target error) bool { return target == ErrQuery }

// MapperError reports a uniqueness violation on a policy configured to fail
// instead of upserting.
type MapperError struct {
	Type    string
	Fields  []string
	Message string
}

func (e *MapperError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("mapper error (%s): %s", e.Type, e.Message)
	}
	return fmt.Sprintf("mapper error (%s on %v): %s", e.Type, e.Fields, e.Message)
}

func (e *MapperError) Is(target error) bool { return target == ErrMapper }
