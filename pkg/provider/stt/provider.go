// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A session accepts raw PCM frames from the candidate's microphone and
// emits two transcript streams: low-latency partials for live captions and
// finals, each of which is one complete spoken answer segment.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session is closed")

// Transcript is one recognition result.
type Transcript struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// StreamConfig describes the audio format and recognition hints.
type StreamConfig struct {
	// SampleRate in Hz. Zero selects the provider default (16000).
	SampleRate int

	// Language is a BCP-47 tag. Empty selects the provider default.
	Language string

	// Keywords are vocabulary hints such as "Kubernetes" or "memoization"
	// taken from the candidate's tech stack.
	Keywords []string

	// EndpointingMs is the silence in milliseconds after which a spoken
	// segment is considered finished. Zero selects the provider default.
	EndpointingMs int
}

// SessionHandle is an open streaming session. Callers must Close it.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit mono PCM.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits complete answer segments. Closed when the session ends.
	Finals() <-chan Transcript

	// Close flushes pending audio and releases the session. Idempotent.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
