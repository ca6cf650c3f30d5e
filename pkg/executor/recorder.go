package executor

import (
	"context"
	"sync"
)

// Responder produces the answer for a recorded request.
type Responder func(ctx context.Context, req *Request) (*Response, error)

// Recorder keeps every request it receives and answers through an optional
// responder. Without a responder it returns an empty response, which makes it
// a dry-run executor.
type Recorder struct {
	mu        sync.Mutex
	requests  []*Request
	responder Responder
}

// NewRecorder creates a recorder. A nil responder answers with no rows.
func NewRecorder(responder Responder) *Recorder {
	return &Recorder{responder: responder}
}

// Send records req and delegates to the responder.
func (r *Recorder) Send(ctx context.Context, req *Request) (*Response, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	responder := r.responder
	r.mu.Unlock()

	if responder == nil {
		return &Response{}, nil
	}
	return responder(ctx, req)
}

// Requests returns the recorded requests in arrival order.
func (r *Recorder) Requests() []*Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Request, len(r.requests))
	copy(out, r.requests)
	return out
}

// Last returns the most recent request, or nil.
func (r *Recorder) Last() *Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		return nil
	}
	return r.requests[len(r.requests)-1]
}

// Reset forgets recorded requests.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = nil
}
