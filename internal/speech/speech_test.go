package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/MrWong99/intervox/pkg/provider/stt"
	sttmock "github.com/MrWong99/intervox/pkg/provider/stt/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeNarrator records chunks. Chunks containing blockOn wait for ctx.
type fakeNarrator struct {
	mu      sync.Mutex
	chunks  []string
	halts   int
	err     error
	blockOn string
	started chan string
}

func (f *fakeNarrator) Narrate(ctx context.Context, chunk string) error {
	f.mu.Lock()
	f.chunks = append(f.chunks, chunk)
	err, blockOn, started := f.err, f.blockOn, f.started
	f.mu.Unlock()

	if started != nil {
		started <- chunk
	}
	if blockOn != "" && strings.Contains(chunk, blockOn) {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeNarrator) Halt() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.halts++
}

func (f *fakeNarrator) Chunks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.chunks...)
}

func (f *fakeNarrator) Halts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.halts
}

func sttConfig() stt.StreamConfig {
	return stt.StreamConfig{Keywords: []string{"goroutine"}}
}

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for narration to start")
		return ""
	}
}

func TestSpeak_Completes(t *testing.T) {
	t.Parallel()

	n := &fakeNarrator{}
	c := New(n, WithChunkPause(0))

	if err := c.Speak(context.Background(), "Welcome to your interview. Let's begin."); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	u, ok := c.Current()
	if !ok || u.State != Done || u.Epoch != 1 {
		t.Errorf("Current = %+v, %v; want Done at epoch 1", u, ok)
	}
	if got := n.Chunks(); len(got) != 1 || got[0] != "Welcome to your interview. Let's begin." {
		t.Errorf("chunks = %q", got)
	}
}

func TestSpeak_NarratesLongTextInChunks(t *testing.T) {
	t.Parallel()

	n := &fakeNarrator{}
	c := New(n, WithChunkPause(time.Millisecond))

	text := strings.Repeat("This sentence is exactly long enough to matter here. ", 10)
	if err := c.Speak(context.Background(), text); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	chunks := n.Chunks()
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want several", len(chunks))
	}
	if got := strings.Join(chunks, " "); got != strings.TrimSpace(text) {
		t.Errorf("joined chunks differ from text:\n%q\n%q", got, text)
	}
}

func TestSpeak_SupersedesEarlierNarration(t *testing.T) {
	t.Parallel()

	n := &fakeNarrator{blockOn: "first", started: make(chan string, 4)}
	c := New(n, WithChunkPause(0))

	var firstDone atomic.Bool
	c.SpeakAsync(context.Background(), "This is the first question.", func() { firstDone.Store(true) })
	waitFor(t, n.started)

	if err := c.Speak(context.Background(), "Second question."); err != nil {
		t.Fatalf("second Speak: %v", err)
	}
	waitFor(t, n.started)

	if firstDone.Load() {
		t.Error("superseded narration reported completion")
	}
	u, _ := c.Current()
	if u.Epoch != 2 || u.State != Done || u.Text != "Second question." {
		t.Errorf("Current = %+v", u)
	}
	if n.Halts() != 1 {
		t.Errorf("halts = %d, want 1", n.Halts())
	}
}

func TestCancelAll_NoCompletionAfterCancel(t *testing.T) {
	t.Parallel()

	n := &fakeNarrator{blockOn: "long", started: make(chan string, 1)}
	c := New(n, WithChunkPause(0))

	done := make(chan struct{}, 1)
	c.SpeakAsync(context.Background(), "A long explanation.", func() { done <- struct{}{} })
	waitFor(t, n.started)

	before := c.Epoch()
	c.CancelAll()

	if c.Epoch() <= before {
		t.Error("CancelAll did not advance the epoch")
	}
	if got := n.Halts(); got != haltRepeats {
		t.Errorf("halts = %d, want %d", got, haltRepeats)
	}
	u, _ := c.Current()
	if u.State != Cancelled {
		t.Errorf("state = %v, want cancelled", u.State)
	}

	select {
	case <-done:
		t.Fatal("cancelled narration ran its completion callback")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelAll_WaitsForRunningCallback(t *testing.T) {
	t.Parallel()

	c := New(nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	c.SpeakAsync(context.Background(), "Intro.", func() {
		close(entered)
		<-release
	})
	<-entered

	cancelled := make(chan struct{})
	go func() {
		c.CancelAll()
		close(cancelled)
	}()
	select {
	case <-cancelled:
		t.Fatal("CancelAll returned while a completion callback was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("CancelAll did not return after the callback finished")
	}
}

func TestPrepare_CancelAllBeforePlay(t *testing.T) {
	t.Parallel()

	n := &fakeNarrator{}
	c := New(n, WithChunkPause(0))

	narrate := c.Prepare(context.Background(), "What is a goroutine?")
	c.CancelAll()

	if err := narrate(); !errors.Is(err, ErrCancelled) {
		t.Errorf("prepared narration = %v, want ErrCancelled", err)
	}
	if got := n.Chunks(); len(got) != 0 {
		t.Errorf("narrator received %q after cancellation", got)
	}
	if err := c.Speak(context.Background(), "Next question."); err != nil {
		t.Errorf("Speak after cancellation = %v", err)
	}
}

func TestSpeak_CancelledReturnsErrCancelled(t *testing.T) {
	t.Parallel()

	n := &fakeNarrator{blockOn: "wait", started: make(chan string, 1)}
	c := New(n, WithChunkPause(0))

	errc := make(chan error, 1)
	go func() { errc <- c.Speak(context.Background(), "Please wait.") }()
	waitFor(t, n.started)
	c.CancelAll()

	if err := <-errc; !errors.Is(err, ErrCancelled) {
		t.Errorf("Speak = %v, want ErrCancelled", err)
	}
}

func TestSpeak_CallerContextCancel(t *testing.T) {
	t.Parallel()

	n := &fakeNarrator{blockOn: "wait", started: make(chan string, 1)}
	c := New(n, WithChunkPause(0))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Speak(ctx, "Please wait.") }()
	waitFor(t, n.started)
	cancel()

	if err := <-errc; !errors.Is(err, ErrCancelled) {
		t.Errorf("Speak = %v, want ErrCancelled", err)
	}
	if c.Degraded() {
		t.Error("caller cancellation must not degrade narration")
	}
}

func TestSpeak_BackendFailureDegrades(t *testing.T) {
	t.Parallel()

	boom := errors.New("socket closed")
	n := &fakeNarrator{err: boom}
	c := New(n, WithChunkPause(0))

	err := c.Speak(context.Background(), "Hello there.")
	var chErr *ChannelError
	if !errors.As(err, &chErr) || !errors.Is(err, boom) {
		t.Fatalf("Speak = %v, want ChannelError wrapping %v", err, boom)
	}
	if !c.Degraded() {
		t.Fatal("coordinator should be degraded")
	}

	if err := c.Speak(context.Background(), "Next question."); err != nil {
		t.Errorf("Speak in text-only mode = %v", err)
	}
	if got := len(n.Chunks()); got != 1 {
		t.Errorf("narrator called %d times, want 1", got)
	}
}

func TestSpeakAsync_TextOnlyCompletes(t *testing.T) {
	t.Parallel()

	c := New(nil)
	if !c.Degraded() {
		t.Fatal("nil narrator should be text-only")
	}
	done := make(chan struct{})
	c.SpeakAsync(context.Background(), "Intro.", func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onDone not called in text-only mode")
	}
}

func TestListen_DeliversTranscripts(t *testing.T) {
	t.Parallel()

	sess := sttmock.NewSession()
	p := &sttmock.Provider{Session: sess}
	c := New(&fakeNarrator{}, WithListener(NewSTTListener(p, sttConfig())))

	var (
		mu       sync.Mutex
		partials []string
	)
	finals := make(chan string, 1)
	h, err := c.Listen(context.Background(),
		func(s string) {
			mu.Lock()
			partials = append(partials, s)
			mu.Unlock()
		},
		func(s string) { finals <- s },
	)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	if err := h.SendAudio([]byte{1, 2}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	sess.EmitPartial("I would")
	sess.EmitFinal("I would use a heap")

	select {
	case got := <-finals:
		if got != "I would use a heap" {
			t.Errorf("final = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no final delivered")
	}

	c.StopListening(h)
	c.StopListening(h)

	if !sess.Closed() || sess.CloseCount() != 1 {
		t.Errorf("session closed=%v count=%d", sess.Closed(), sess.CloseCount())
	}
	mu.Lock()
	if len(partials) != 1 || partials[0] != "I would" {
		t.Errorf("partials = %q", partials)
	}
	mu.Unlock()
	if got := sess.Audio(); len(got) != 1 {
		t.Errorf("audio chunks = %d, want 1", len(got))
	}
	if cfg := p.Calls(); len(cfg) != 1 || cfg[0].Keywords[0] != "goroutine" {
		t.Errorf("stream configs = %+v", cfg)
	}
}

func TestListen_DoesNotCancelNarration(t *testing.T) {
	t.Parallel()

	n := &fakeNarrator{}
	c := New(n, WithChunkPause(0), WithListener(NewSTTListener(&sttmock.Provider{}, sttConfig())))
	if err := c.Speak(context.Background(), "Question."); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	epoch := c.Epoch()
	h, err := c.Listen(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer c.StopListening(h)
	if c.Epoch() != epoch {
		t.Error("Listen changed the narration epoch")
	}
}

func TestListen_Errors(t *testing.T) {
	t.Parallel()

	if _, err := New(nil).Listen(context.Background(), nil, nil); !errors.Is(err, ErrNoListener) {
		t.Errorf("Listen without listener = %v", err)
	}

	boom := errors.New("dial failed")
	c := New(nil, WithListener(NewSTTListener(&sttmock.Provider{StartStreamErr: boom}, sttConfig())))
	_, err := c.Listen(context.Background(), nil, nil)
	var chErr *ChannelError
	if !errors.As(err, &chErr) || chErr.Op != "listen" || !errors.Is(err, boom) {
		t.Errorf("Listen = %v, want listen ChannelError", err)
	}
}

func TestClose_StopsEverything(t *testing.T) {
	t.Parallel()

	sess := sttmock.NewSession()
	c := New(&fakeNarrator{}, WithListener(NewSTTListener(&sttmock.Provider{Session: sess}, sttConfig())))
	h, err := c.Listen(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	c.Close()
	c.Close()

	select {
	case <-h.Done():
	default:
		t.Error("handle not stopped by Close")
	}
	if !sess.Closed() {
		t.Error("session not closed")
	}
	if err := c.Speak(context.Background(), "Too late."); !errors.Is(err, ErrCancelled) {
		t.Errorf("Speak after Close = %v", err)
	}
	if _, err := c.Listen(context.Background(), nil, nil); !errors.Is(err, ErrCancelled) {
		t.Errorf("Listen after Close = %v", err)
	}
}

func TestUtteranceState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[UtteranceState]string{
		Pending: "pending", Speaking: "speaking", Done: "done", Cancelled: "cancelled",
	} {
		if got := s.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", s, got, want)
		}
	}
}
