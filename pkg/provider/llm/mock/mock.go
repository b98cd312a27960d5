// Package mock provides a test double for the llm.Provider interface.
//
// Responses are consumed in order from Responses; once exhausted the last
// entry repeats. A nil Response with a nil Err yields an empty completion.
//
//	p := &mock.Provider{Responses: []mock.Reply{{Content: "Hello!"}}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intervox/pkg/provider/llm"
)

// Reply is one scripted outcome of Complete.
type Reply struct {
	Content string
	Err     error

	// FinishReason defaults to "stop".
	FinishReason string
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are returned in call order; the last one repeats.
	Responses []Reply

	// Block, if non-nil, is received from before Complete returns. Tests use
	// it to hold a request in flight. Context cancellation unblocks it.
	Block chan struct{}

	// Hook, if set, is invoked on every call before the reply is chosen.
	// When it returns a non-nil reply that reply wins.
	Hook func(req llm.CompletionRequest) *Reply

	calls []CompleteCall
}

// Complete records the call and returns the next scripted reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	idx := len(p.calls)
	p.calls = append(p.calls, CompleteCall{Ctx: ctx, Req: req})
	block := p.Block
	hook := p.Hook
	var r Reply
	if n := len(p.Responses); n > 0 {
		r = p.Responses[min(idx, n-1)]
	}
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if hook != nil {
		if h := hook(req); h != nil {
			r = *h
		}
	}
	if r.Err != nil {
		return nil, r.Err
	}
	finish := r.FinishReason
	if finish == "" {
		finish = "stop"
	}
	return &llm.CompletionResponse{Content: r.Content, FinishReason: finish}, nil
}

// Calls returns a copy of every recorded invocation.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of Complete invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

var _ llm.Provider = (*Provider)(nil)
