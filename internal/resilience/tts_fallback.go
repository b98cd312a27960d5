package resilience

import (
	"context"

	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// voiced pairs a TTS backend with the voice it narrates in. Voice IDs are
// provider specific, so a fallback cannot reuse the primary's voice.
type voiced struct {
	provider tts.Provider
	voice    tts.Voice
}

// TTSFallback implements [tts.Provider] with failover across narration
// backends, each guarded by its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[voiced]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] whose preferred backend is primary
// speaking with voice.
func NewTTSFallback(name string, primary tts.Provider, voice tts.Voice, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(voiced{primary, voice}, name, cfg)}
}

// AddFallback registers another backend with its own default voice.
func (f *TTSFallback) AddFallback(name string, p tts.Provider, voice tts.Voice) {
	f.group.AddFallback(name, voiced{p, voice})
}

// Healthy reports whether any backend would accept a request.
func (f *TTSFallback) Healthy() bool { return f.group.Healthy() }

// Synthesize narrates text on the first healthy backend. voice is honoured
// only by the backend it belongs to; every other backend uses its own
// default voice. Failover covers stream setup only.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	return ExecuteWithResult(f.group, func(v voiced) (<-chan []byte, error) {
		use := v.voice
		if voice.ID != "" && voice.Provider == v.voice.Provider {
			use = voice
		}
		return v.provider.Synthesize(ctx, text, use)
	})
}

// ListVoices returns the voices of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return ExecuteWithResult(f.group, func(v voiced) ([]tts.Voice, error) {
		return v.provider.ListVoices(ctx)
	})
}
