// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote model API (Gemini, Groq, OpenRouter, OpenAI,
// a local Ollama instance) and exposes a single blocking completion call. The
// interview engine never consumes partial output, so there is no streaming
// surface here: a call either yields the whole reply or an error.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Message roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single entry of the conversation sent to the model.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages or SystemPrompt must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is injected before the conversation history as a
	// system-role message.
	SystemPrompt string

	// Messages is the ordered conversation history.
	Messages []Message

	// Temperature controls output randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int

	// Stop lists sequences at which generation halts.
	Stop []string
}

// CompletionResponse is the complete reply of a single request.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// FinishReason is the backend's stop reason ("stop", "length", ...).
	FinishReason string

	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ErrEmptyCompletion is returned by backends whose reply carried no choices
// or no text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// ErrTruncatedCompletion reports a reply cut off at the token limit.
var ErrTruncatedCompletion = errors.New("llm: completion truncated at token limit")

// FinishLength is the finish reason of a reply cut off at MaxTokens.
const FinishLength = "length"

// StatusError reports a non-2xx HTTP status returned by a backend.
type StatusError struct {
	// Provider is the backend name ("openai", "gemini", ...).
	Provider string
	// Status is the HTTP status code.
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: %s: status %d: %v", e.Provider, e.Status, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Retryable reports whether the status signals a transient condition such as
// rate limiting or a server-side fault.
func (e *StatusError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}
