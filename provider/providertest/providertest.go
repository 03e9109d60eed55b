// Package providertest offers scriptable providers for tests.
package providertest

import (
	"context"
	"errors"
	"sync"

	"github.com/mohammad-safakhou/choir/models"
)

// ErrExhausted is returned by Sequence when it runs out of replies.
var ErrExhausted = errors.New("providertest: no scripted reply left")

// Reply is one scripted outcome.
type Reply struct {
	Response models.CompletionResponse
	Err      error
}

// Recorder captures every request it sees. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	requests []models.CompletionRequest
}

func (r *Recorder) record(req models.CompletionRequest) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := req
	cp.Messages = append([]models.Message(nil), req.Messages...)
	r.requests = append(r.requests, cp)
	return len(r.requests) - 1
}

// Requests returns a copy of the recorded requests in arrival order.
func (r *Recorder) Requests() []models.CompletionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.CompletionRequest(nil), r.requests...)
}

// Calls returns how many requests were made.
func (r *Recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// Sequence replies in order, one scripted Reply per call.
type Sequence struct {
	Recorder
	Replies []Reply
}

func (s *Sequence) Complete(_ context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	i := s.record(req)
	if i >= len(s.Replies) {
		return models.CompletionResponse{}, ErrExhausted
	}
	return s.Replies[i].Response, s.Replies[i].Err
}

// Func routes every call through Fn, which may inspect the request.
type Func struct {
	Recorder
	Fn func(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error)
}

func (f *Func) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	f.record(req)
	return f.Fn(ctx, req)
}

// Text is a convenience text-only response.
func Text(s string) Reply { return Reply{Response: models.CompletionResponse{Content: s}} }

// Calls is a convenience tool-call response.
func Calls(calls ...models.ToolCall) Reply {
	return Reply{Response: models.CompletionResponse{ToolCalls: calls}}
}

// Fail is a convenience error response.
func Fail(err error) Reply { return Reply{Err: err} }
