// Package tts defines the Provider interface for Text-to-Speech backends.
//
// The interviewer's lines are narrated one chunk (usually a sentence) at a
// time. Synthesize turns a chunk into a stream of raw PCM frames: 16-bit
// little-endian mono at the provider's configured sample rate (16 kHz by
// default), ready to be forwarded to a browser or a speaker.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Voice identifies a synthesis voice of a specific provider.
type Voice struct {
	// ID is the provider-specific voice identifier ("Joanna", an ElevenLabs
	// voice_id, ...).
	ID string

	// Name is a human-readable label.
	Name string

	// Provider names the backend the voice belongs to.
	Provider string

	// Language is a BCP-47 tag when the provider reports one.
	Language string

	// Metadata holds provider-specific labels.
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize narrates text with voice and returns a channel of PCM frames.
	// The channel is closed when synthesis finishes, fails mid-stream or ctx
	// is cancelled. A non-nil error means synthesis could not start.
	Synthesize(ctx context.Context, text string, voice Voice) (<-chan []byte, error)

	// ListVoices returns the voices available from the backend.
	ListVoices(ctx context.Context) ([]Voice, error)
}
