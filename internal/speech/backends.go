package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// errNoAudio is returned when a TTS stream closes without producing audio.
var errNoAudio = errors.New("speech: synthesizer produced no audio")

// Sink receives synthesized PCM, typically a browser connection.
type Sink interface {
	WriteAudio(ctx context.Context, pcm []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, pcm []byte) error

func (f SinkFunc) WriteAudio(ctx context.Context, pcm []byte) error { return f(ctx, pcm) }

// NarratorOption configures a TTSNarrator.
type NarratorOption func(*TTSNarrator)

// WithPacing makes Narrate return only once the audio written so far would
// have finished playing, so chunk boundaries follow the listener's ear
// rather than the network. lead lets audio run ahead of real time.
func WithPacing(format audio.Format, lead time.Duration) NarratorOption {
	return func(n *TTSNarrator) {
		n.format = format
		n.lead = lead
		n.pace = format.Valid()
	}
}

// WithDurationMetric records the time from synthesis request to first
// audio frame of every chunk in h.
func WithDurationMetric(h metric.Float64Histogram) NarratorOption {
	return func(n *TTSNarrator) { n.latency = h }
}

// TTSNarrator narrates through a tts.Provider and streams the PCM to a Sink.
type TTSNarrator struct {
	provider tts.Provider
	voice    tts.Voice
	sink     Sink
	latency  metric.Float64Histogram

	pace   bool
	format audio.Format
	lead   time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewTTSNarrator returns a Narrator that synthesizes with p in voice and
// writes the audio to sink.
func NewTTSNarrator(p tts.Provider, voice tts.Voice, sink Sink, opts ...NarratorOption) *TTSNarrator {
	n := &TTSNarrator{provider: p, voice: voice, sink: sink}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Narrate implements Narrator.
func (n *TTSNarrator) Narrate(ctx context.Context, chunk string) error {
	ctx, cancel := context.WithCancel(ctx)
	n.mu.Lock()
	n.cancel = cancel
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		n.cancel = nil
		n.mu.Unlock()
		cancel()
	}()

	requested := time.Now()
	frames, err := n.provider.Synthesize(ctx, chunk, n.voice)
	if err != nil {
		return fmt.Errorf("speech: synthesize: %w", err)
	}

	var (
		start  = time.Now()
		played time.Duration
		bytes  int
	)
	for pcm := range frames {
		if bytes == 0 && n.latency != nil {
			n.latency.Record(ctx, time.Since(requested).Seconds())
		}
		if ctx.Err() != nil {
			go audio.Drain(frames)
			return ctx.Err()
		}
		if err := n.sink.WriteAudio(ctx, pcm); err != nil {
			go audio.Drain(frames)
			return fmt.Errorf("speech: write audio: %w", err)
		}
		bytes += len(pcm)
		if n.pace {
			played += n.format.Duration(len(pcm))
			if err := sleepUntil(ctx, start.Add(played-n.lead)); err != nil {
				go audio.Drain(frames)
				return err
			}
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if bytes == 0 {
		return errNoAudio
	}
	if n.pace {
		return sleepUntil(ctx, start.Add(played))
	}
	return nil
}

// Halt implements Narrator.
func (n *TTSNarrator) Halt() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		n.cancel()
	}
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// STTListener opens streams on an stt.Provider with a fixed config.
type STTListener struct {
	provider stt.Provider
	cfg      stt.StreamConfig
}

// NewSTTListener returns a Listener for p.
func NewSTTListener(p stt.Provider, cfg stt.StreamConfig) *STTListener {
	return &STTListener{provider: p, cfg: cfg}
}

// Start implements Listener.
func (l *STTListener) Start(ctx context.Context) (stt.SessionHandle, error) {
	return l.provider.StartStream(ctx, l.cfg)
}

var (
	_ Narrator = (*TTSNarrator)(nil)
	_ Listener = (*STTListener)(nil)
)
