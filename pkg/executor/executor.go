// Package executor runs compiled batches against a graph.
//
// The mapper hands an Executor one Request per batch: the Gremlin script, its
// parameter table, the structured statements the script was rendered from,
// and the variable to entity bindings. Remote executors send the script;
// the Local executor interprets the statements against an embedded store.
// Every executor answers with flat entity rows (see graphson.go), so the
// mapper never sees a wire format.
//
// Executors never retry. A failed request is returned to the caller as is.
package executor

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orneryd/nornicogm/pkg/entity"
	"github.com/orneryd/nornicogm/pkg/script"
)

var tracer = otel.Tracer("nornicogm/executor")

// Trace attribute keys.
const (
	TraceAttributeScriptLength = "script-length"
	TraceAttributeParamCount   = "param-count"
	TraceAttributeRequestID    = "request-id"
)

var (
	// ErrRequest wraps transport failures.
	ErrRequest = errors.New("request failed")
	// ErrBadResponse wraps undecodable responses.
	ErrBadResponse = errors.New("bad response")
	// ErrAuth is returned when the server rejects the credentials.
	ErrAuth = errors.New("authentication failed")
)

// Executor sends one request and returns its rows.
type Executor interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, req *Request) (*Response, error)

func (f Func) Send(ctx context.Context, req *Request) (*Response, error) { return f(ctx, req) }

// Request is one batch or immediate query.
type Request struct {
	Script     string
	Params     map[string]any
	Statements []script.Statement
	// Bindings maps script variables to the entities their results belong to.
	Bindings map[string]entity.Entity
}

// Response holds normalized result rows.
type Response struct {
	RequestID string
	Data      []any
}

// First returns the first row, or nil.
func (r *Response) First() any {
	if r == nil || len(r.Data) == 0 {
		return nil
	}
	return r.Data[0]
}

// ServerError is a non-success status reported by a Gremlin server.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("gremlin server returned status %d: %s", e.Code, e.Message)
}

// recordAndEnd records err on the span, if any, and ends it.
func recordAndEnd(err error, span trace.Span) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
