// Package speech coordinates spoken narration and voice capture for one
// interview session.
//
// Every call to [Coordinator.Speak] allocates a new epoch. Asynchronous work
// belonging to an older epoch (a chunk boundary, a backend error, a
// completion) compares its captured epoch with the current one before it
// touches state and silently gives up when they differ. [Coordinator.CancelAll]
// bumps the epoch and halts the backend, so nothing narrated before the call
// can report completion afterwards.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

const (
	// DefaultChunkPause is the silence inserted between narrated chunks.
	DefaultChunkPause = 150 * time.Millisecond

	// haltRepeats is how often CancelAll halts the narrator. Some backends
	// ignore a halt that races with the start of a new chunk.
	haltRepeats = 2
)

// ErrCancelled is returned by Speak when the narration was superseded or
// cancelled.
var ErrCancelled = errors.New("speech: narration cancelled")

// ErrNoListener is returned by Listen when the coordinator has no capture
// backend.
var ErrNoListener = errors.New("speech: no listener configured")

// ChannelError reports a failing narration or capture backend. It is not
// fatal to the session.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("speech: %s channel failed: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Narrator turns one chunk of text into audible speech. Narrate blocks until
// the chunk has been delivered or ctx is cancelled. Halt stops whatever is
// being narrated right now and must be safe to call at any time.
type Narrator interface {
	Narrate(ctx context.Context, chunk string) error
	Halt()
}

// Listener opens a speech-to-text stream.
type Listener interface {
	Start(ctx context.Context) (stt.SessionHandle, error)
}

// UtteranceState is the lifecycle of one narration.
type UtteranceState int

const (
	Pending UtteranceState = iota
	Speaking
	Done
	Cancelled
)

func (s UtteranceState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Speaking:
		return "speaking"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("UtteranceState(%d)", int(s))
	}
}

// Utterance is one narration request.
type Utterance struct {
	Epoch uint64
	Text  string
	State UtteranceState
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithChunkPause overrides DefaultChunkPause. Zero disables the pause.
func WithChunkPause(d time.Duration) Option {
	return func(c *Coordinator) { c.chunkPause = d }
}

// WithListener sets the capture backend.
func WithListener(l Listener) Option {
	return func(c *Coordinator) { c.listener = l }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// Coordinator serialises narration for a session and manages capture
// streams. All methods are safe for concurrent use.
type Coordinator struct {
	narrator   Narrator
	listener   Listener
	chunkPause time.Duration
	log        *slog.Logger

	// turn is held by the goroutine currently inside Narrator.Narrate so a
	// superseding Speak waits for the old chunk to unwind.
	turn sync.Mutex

	// cb is held while a SpeakAsync callback runs.
	cb sync.Mutex

	mu       sync.Mutex
	epoch    uint64
	current  Utterance
	has      bool
	cancel   context.CancelFunc
	degraded bool
	handles  map[*Handle]struct{}
	closed   bool
}

// New creates a Coordinator. A nil narrator puts it in text-only mode.
func New(narrator Narrator, opts ...Option) *Coordinator {
	c := &Coordinator{
		narrator:   narrator,
		chunkPause: DefaultChunkPause,
		log:        slog.Default(),
		handles:    make(map[*Handle]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if narrator == nil {
		c.degraded = true
	}
	return c
}

// Epoch returns the current narration epoch.
func (c *Coordinator) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Current returns the most recent utterance, if any.
func (c *Coordinator) Current() (Utterance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.has
}

// Degraded reports whether narration is disabled, either because no narrator
// was configured or because the narrator failed.
func (c *Coordinator) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Speak narrates text and blocks until it finished, failed or was cancelled.
// It supersedes any narration in progress. In text-only mode it returns nil
// immediately. A backend failure returns a *ChannelError and switches the
// coordinator to text-only mode.
func (c *Coordinator) Speak(ctx context.Context, text string) error {
	return c.Prepare(ctx, text)()
}

// Prepare supersedes any narration in progress and returns the call that
// narrates text, with the same results as Speak. The epoch is allocated
// before Prepare returns, so a CancelAll issued in between makes the
// returned call a no-op that reports ErrCancelled.
func (c *Coordinator) Prepare(ctx context.Context, text string) func() error {
	r, err := c.start(ctx, text)
	if err != nil {
		return func() error { return err }
	}
	return func() error { return c.play(r) }
}

// SpeakAsync narrates text in the background. The epoch is allocated before
// SpeakAsync returns, so a CancelAll issued afterwards always cancels this
// narration. onDone runs once the narration completed or failed, unless it
// was superseded or cancelled first. CancelAll waits for a running onDone to
// return, so onDone must not call CancelAll or Close.
func (c *Coordinator) SpeakAsync(ctx context.Context, text string, onDone func()) {
	r, err := c.start(ctx, text)
	if err != nil {
		return
	}
	go func() {
		if err := c.play(r); errors.Is(err, ErrCancelled) {
			return
		}
		if onDone == nil {
			return
		}
		c.cb.Lock()
		defer c.cb.Unlock()
		if c.isCurrent(r.epoch) {
			onDone()
		}
	}()
}

// run is one narration between start and play.
type run struct {
	epoch  uint64
	chunks []string
	ctx    context.Context
	cancel context.CancelFunc
}

// start allocates a new epoch and cancels whatever was narrating.
func (c *Coordinator) start(ctx context.Context, text string) (*run, error) {
	chunks := SplitSentences(text)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCancelled
	}
	c.epoch++
	r := &run{epoch: c.epoch, chunks: chunks}
	prevCancel := c.cancel
	wasSpeaking := c.has && c.current.State == Speaking
	c.current = Utterance{Epoch: r.epoch, Text: text, State: Pending}
	c.has = true
	c.cancel = nil
	if c.degraded || len(chunks) == 0 {
		c.current.State = Done
	} else {
		r.ctx, r.cancel = context.WithCancel(ctx)
		c.cancel = r.cancel
	}
	c.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
	if wasSpeaking {
		c.narrator.Halt()
	}
	return r, nil
}

// play narrates the chunks of r one by one.
func (c *Coordinator) play(r *run) error {
	if r.cancel == nil {
		return nil
	}
	defer r.cancel()

	c.turn.Lock()
	defer c.turn.Unlock()

	for i, chunk := range r.chunks {
		if i > 0 && c.chunkPause > 0 {
			t := time.NewTimer(c.chunkPause)
			select {
			case <-t.C:
			case <-r.ctx.Done():
				t.Stop()
			}
		}
		if !c.transition(r.epoch, Speaking) || r.ctx.Err() != nil {
			c.transition(r.epoch, Cancelled)
			return ErrCancelled
		}

		err := c.narrator.Narrate(r.ctx, chunk)

		switch {
		case !c.isCurrent(r.epoch):
			return ErrCancelled
		case r.ctx.Err() != nil:
			c.transition(r.epoch, Cancelled)
			return ErrCancelled
		case err != nil:
			c.mu.Lock()
			if c.epoch == r.epoch {
				c.current.State = Done
			}
			c.degraded = true
			c.mu.Unlock()
			c.log.Warn("speech: narration failed, switching to text-only", "err", err)
			return &ChannelError{Op: "narrate", Err: err}
		}
	}

	if !c.transition(r.epoch, Done) {
		return ErrCancelled
	}
	return nil
}

// transition sets the state of the current utterance when it still belongs
// to epoch and reports whether it did.
func (c *Coordinator) transition(epoch uint64, state UtteranceState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.current.State = state
	return true
}

func (c *Coordinator) isCurrent(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

// CancelAll stops narration immediately. Every narration started before the
// call ends with ErrCancelled. A completion callback that already passed its
// epoch check finishes before CancelAll returns; none runs afterwards.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	c.epoch++
	if c.has && (c.current.State == Pending || c.current.State == Speaking) {
		c.current.State = Cancelled
	}
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	c.cb.Lock()
	defer c.cb.Unlock()

	if cancel != nil {
		cancel()
	}
	if c.narrator != nil {
		for range haltRepeats {
			c.narrator.Halt()
		}
	}
}

// Listen opens a capture stream. onPartial and onFinal are called from a
// dedicated goroutine for every interim and final transcript until the
// handle is stopped or the stream ends. Either callback may be nil.
// Listening does not affect narration.
func (c *Coordinator) Listen(ctx context.Context, onPartial, onFinal func(string)) (*Handle, error) {
	if c.listener == nil {
		return nil, ErrNoListener
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrCancelled
	}

	sess, err := c.listener.Start(ctx)
	if err != nil {
		c.log.Warn("speech: listen failed", "err", err)
		return nil, &ChannelError{Op: "listen", Err: err}
	}

	h := &Handle{sess: sess, done: make(chan struct{})}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = sess.Close()
		return nil, ErrCancelled
	}
	c.handles[h] = struct{}{}
	c.mu.Unlock()

	go h.pump(onPartial, onFinal)
	return h, nil
}

// StopListening closes h and waits for its callbacks to return. It is
// idempotent and accepts nil. It must not be called from one of h's own
// callbacks.
func (c *Coordinator) StopListening(h *Handle) {
	if h == nil {
		return
	}
	c.mu.Lock()
	delete(c.handles, h)
	c.mu.Unlock()
	h.stop()
}

// Close cancels narration, stops every capture stream and rejects further
// calls. It is idempotent.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	handles := make([]*Handle, 0, len(c.handles))
	for h := range c.handles {
		handles = append(handles, h)
	}
	clear(c.handles)
	c.mu.Unlock()

	c.CancelAll()
	for _, h := range handles {
		h.stop()
	}
}

// Handle is an open capture stream.
type Handle struct {
	sess stt.SessionHandle
	done chan struct{}
	once sync.Once
}

// SendAudio forwards 16 kHz mono PCM to the stream.
func (h *Handle) SendAudio(pcm []byte) error {
	return h.sess.SendAudio(pcm)
}

// Done is closed once the stream has ended and no more callbacks will run.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) stop() {
	h.once.Do(func() { _ = h.sess.Close() })
	<-h.done
}

func (h *Handle) pump(onPartial, onFinal func(string)) {
	defer close(h.done)
	partials, finals := h.sess.Partials(), h.sess.Finals()
	for partials != nil || finals != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if onPartial != nil && t.Text != "" {
				onPartial(t.Text)
			}
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if onFinal != nil && t.Text != "" {
				onFinal(t.Text)
			}
		}
	}
}
