// Package mock provides a test double for the tts.Provider interface.
//
//	p := &mock.Provider{Frames: [][]byte{[]byte("pcm")}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice tts.Voice
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Frames are emitted on every Synthesize channel.
	Frames [][]byte

	// SynthesizeErr, if non-nil, is returned from Synthesize.
	SynthesizeErr error

	// Hold, if non-nil, delays closing each audio channel until Hold is
	// closed or ctx is cancelled. Use it to simulate long narration.
	Hold chan struct{}

	Voices        []tts.Voice
	ListVoicesErr error

	calls []SynthesizeCall
}

// Synthesize records the call and streams Frames.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (<-chan []byte, error) {
	p.mu.Lock()
	p.calls = append(p.calls, SynthesizeCall{Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	frames := make([][]byte, len(p.Frames))
	copy(frames, p.Frames)
	hold := p.Hold
	p.mu.Unlock()

	ch := make(chan []byte, len(frames))
	go func() {
		defer close(ch)
		for _, f := range frames {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
		if hold != nil {
			select {
			case <-hold:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// ListVoices returns Voices, ListVoicesErr.
func (p *Provider) ListVoices(context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Voices, p.ListVoicesErr
}

// Calls returns a copy of every recorded Synthesize invocation.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.calls))
	copy(out, p.calls)
	return out
}

var _ tts.Provider = (*Provider)(nil)
