package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/resilience"
	"github.com/MrWong99/intervox/internal/speech"
	"github.com/MrWong99/intervox/pkg/audio"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/provider/tts"
	"github.com/MrWong99/intervox/pkg/store"
)

const (
	// persistTimeout bounds saving one result and merging its weak areas.
	persistTimeout = 15 * time.Second

	// narrationLead lets narration audio run ahead of real time so the
	// browser's playback buffer never starves.
	narrationLead = 300 * time.Millisecond

	persistBanner = "Your results could not be saved. They are shown here but will not appear in your history."
)

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("app: session not found")

	// ErrShuttingDown is returned by StartSession once Shutdown has begun.
	ErrShuttingDown = errors.New("app: shutting down")

	// ErrVoiceUnavailable is returned by SendAudio when no STT provider is
	// configured.
	ErrVoiceUnavailable = errors.New("app: voice answers are not available")
)

// SessionConfig is what a client chooses when starting an interview.
type SessionConfig struct {
	UserID           string                  `json:"user_id"`
	InterviewType    interview.InterviewType `json:"interview_type"`
	Difficulty       interview.Difficulty    `json:"difficulty"`
	CompanyTarget    interview.CompanyTarget `json:"company_target"`
	DurationMinutes  int                     `json:"duration_minutes"`
	TechStack        []string                `json:"tech_stack"`
	NarrationEnabled bool                    `json:"narration_enabled"`
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// Router is required.
	Router interview.Router

	// Pool, when set with ResetBetweenSessions, has its failures cleared
	// when a session starts while no other interview is running.
	Pool                 *resilience.ProviderPool
	ResetBetweenSessions bool

	// Results and WeakAreas may be nil, in which case nothing is persisted.
	Results   store.ResultStore
	WeakAreas store.WeakAreaIndex

	// TTS narrates in Voice. Nil disables narration for every session.
	TTS   tts.Provider
	Voice tts.Voice

	// STT transcribes spoken answers. Nil disables voice answers.
	STT stt.Provider

	Interview  config.InterviewConfig
	ChunkPause time.Duration
	Metrics    *observe.Metrics

	// ControllerOptions are passed to every interview.New call.
	ControllerOptions []interview.Option
}

// Session is one running or recently finished interview.
type Session struct {
	ID         string
	StartedAt  time.Time
	Controller *interview.Controller
	Hub        *Hub

	narrated bool
	speech   *speech.Coordinator
	ctx      context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	listen *speech.Handle
}

// Narrated reports whether the session streams narration audio.
func (s *Session) Narrated() bool { return s.narrated }

// SendAudio forwards candidate speech in format to the transcriber. The
// capture stream opens on first use and reopens if the provider closed it.
// Final transcripts are submitted as voice answers.
func (s *Session) SendAudio(pcm []byte, format audio.Format) error {
	h, err := s.capture()
	if err != nil {
		return err
	}
	if format != audio.Speech {
		pcm = audio.Convert(pcm, format, audio.Speech)
	}
	return h.SendAudio(pcm)
}

func (s *Session) capture() (*speech.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listen != nil {
		select {
		case <-s.listen.Done():
			s.listen = nil
		default:
			return s.listen, nil
		}
	}
	h, err := s.speech.Listen(s.ctx,
		func(text string) { s.Hub.Publish(Message{Partial: text}) },
		func(text string) {
			outcome := s.Controller.SubmitAnswer(s.ctx, text, interview.SourceVoice)
			observe.Logger(s.ctx).Debug("voice answer submitted", "outcome", outcome)
		},
	)
	if errors.Is(err, speech.ErrNoListener) {
		return nil, ErrVoiceUnavailable
	}
	if err != nil {
		return nil, err
	}
	s.listen = h
	return h, nil
}

// SessionManager owns every interview session of the server. Sessions run
// concurrently and share the provider chain. All exported methods are safe
// for concurrent use.
type SessionManager struct {
	cfg SessionManagerConfig

	mu       sync.Mutex
	sessions map[string]*Session
	defaults config.InterviewConfig
	closing  bool

	wg sync.WaitGroup
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &SessionManager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		defaults: cfg.Interview,
	}
}

// SetDefaults replaces the interview defaults used by sessions started
// afterwards.
func (sm *SessionManager) SetDefaults(iv config.InterviewConfig) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.defaults = iv
}

// StartSession creates and starts a new interview.
func (sm *SessionManager) StartSession(ctx context.Context, sc SessionConfig) (*Session, error) {
	sm.mu.Lock()
	if sm.closing {
		sm.mu.Unlock()
		return nil, ErrShuttingDown
	}
	defaults := sm.defaults
	sm.mu.Unlock()

	duration := defaults.Duration()
	if sc.DurationMinutes > 0 {
		duration = time.Duration(sc.DurationMinutes) * time.Minute
	}
	id := uuid.NewString()
	narrated := sc.NarrationEnabled && sm.cfg.TTS != nil
	icfg := interview.Config{
		SessionID:  id,
		UserID:     sc.UserID,
		Type:       sc.InterviewType,
		Difficulty: sc.Difficulty,
		Company:    sc.CompanyTarget,
		TechStack:  sc.TechStack,
		Duration:   duration,
		Narration:  narrated,
		Limits:     defaults.Limits(),
	}
	if err := icfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: invalid session config: %w", err)
	}

	hub := NewHub(0)
	sctx, cancel := context.WithCancel(observe.WithSessionID(context.Background(), id))
	coord := sm.newCoordinator(hub, narrated, sc.TechStack)

	ctrl, err := interview.New(icfg, interview.Deps{
		Router:  sm.cfg.Router,
		Speech:  coord,
		Emit:    hub.Emit,
		Metrics: sm.cfg.Metrics,
	}, sm.cfg.ControllerOptions...)
	if err != nil {
		cancel()
		coord.Close()
		return nil, fmt.Errorf("app: create session: %w", err)
	}

	s := &Session{
		ID:         id,
		StartedAt:  time.Now().UTC(),
		Controller: ctrl,
		Hub:        hub,
		narrated:   narrated,
		speech:     coord,
		ctx:        sctx,
		cancel:     cancel,
	}

	sm.mu.Lock()
	if sm.closing {
		sm.mu.Unlock()
		cancel()
		coord.Close()
		return nil, ErrShuttingDown
	}
	// The pool is shared, so credentials are only re-enabled while no other
	// interview can be relying on their failure marks.
	if sm.cfg.ResetBetweenSessions && sm.cfg.Pool != nil && sm.runningLocked() == 0 {
		sm.cfg.Pool.ResetEpoch()
	}
	sm.sessions[id] = s
	sm.wg.Add(1)
	sm.mu.Unlock()

	go sm.watch(s)
	if err := ctrl.Start(ctx); err != nil {
		ctrl.End(ctx)
		return nil, fmt.Errorf("app: start session: %w", err)
	}

	slog.Info("session started",
		"session_id", id,
		"user_id", sc.UserID,
		"interview_type", sc.InterviewType,
		"narration", narrated,
	)
	return s, nil
}

func (sm *SessionManager) newCoordinator(hub *Hub, narrated bool, techStack []string) *speech.Coordinator {
	var opts []speech.Option
	if sm.cfg.ChunkPause > 0 {
		opts = append(opts, speech.WithChunkPause(sm.cfg.ChunkPause))
	}
	if sm.cfg.STT != nil {
		opts = append(opts, speech.WithListener(speech.NewSTTListener(sm.cfg.STT, stt.StreamConfig{
			SampleRate: audio.Speech.SampleRate,
			Keywords:   techStack,
		})))
	}
	if !narrated {
		return speech.New(nil, opts...)
	}
	sink := speech.SinkFunc(func(_ context.Context, pcm []byte) error {
		hub.Publish(Message{Audio: pcm})
		return nil
	})
	narrator := speech.NewTTSNarrator(sm.cfg.TTS, sm.cfg.Voice, sink,
		speech.WithPacing(audio.Speech, narrationLead),
		speech.WithDurationMetric(sm.cfg.Metrics.TTSDuration),
	)
	return speech.New(narrator, opts...)
}

// watch waits for s to complete, persists its result and retires it.
func (sm *SessionManager) watch(s *Session) {
	defer sm.wg.Done()
	<-s.Controller.Done()

	s.speech.Close()
	s.cancel()
	s.Controller.Wait()

	if res, ok := s.Controller.Result(); ok {
		sm.persist(s, res)
	}
	s.Hub.Close()

	sm.mu.Lock()
	delete(sm.sessions, s.ID)
	sm.mu.Unlock()
}

// persist saves the result and merges the user's weak areas in parallel.
// Failures are logged and surfaced as a banner; the result itself has
// already been delivered.
func (sm *SessionManager) persist(s *Session, res interview.Result) {
	if sm.cfg.Results == nil && sm.cfg.WeakAreas == nil {
		return
	}
	ctx, cancel := context.WithTimeout(observe.WithSessionID(context.Background(), s.ID), persistTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if sm.cfg.Results != nil {
		g.Go(func() error {
			rec, err := res.Record()
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			if err := sm.cfg.Results.SaveResult(gctx, rec); err != nil {
				return fmt.Errorf("save result: %w", err)
			}
			return nil
		})
	}
	if sm.cfg.WeakAreas != nil {
		g.Go(func() error {
			if err := interview.MergeWeakAreas(gctx, sm.cfg.WeakAreas, res.UserID, s.ID, res); err != nil {
				return fmt.Errorf("merge weak areas: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observe.Logger(ctx).Error("failed to persist interview result", "err", err)
		s.Hub.Emit(interview.Event{
			Kind:      interview.EventBanner,
			SessionID: s.ID,
			At:        time.Now(),
			Step:      interview.StepComplete,
			Banner:    persistBanner,
		})
	}
}

// runningLocked counts sessions whose interview has not completed. Sessions
// that are only persisting their result no longer use the router.
func (sm *SessionManager) runningLocked() int {
	n := 0
	for _, s := range sm.sessions {
		select {
		case <-s.Controller.Done():
		default:
			n++
		}
	}
	return n
}

// Session returns a live session.
func (sm *SessionManager) Session(id string) (*Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	return s, ok
}

// Active returns the number of live sessions.
func (sm *SessionManager) Active() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Submit records a typed answer.
func (sm *SessionManager) Submit(ctx context.Context, id, text string) (interview.SubmitOutcome, error) {
	s, ok := sm.Session(id)
	if !ok {
		return 0, ErrSessionNotFound
	}
	return s.Controller.SubmitAnswer(ctx, text, interview.SourceText), nil
}

// EndSession ends a live session and returns its result. Persistence runs
// in the background and never delays the result.
func (sm *SessionManager) EndSession(ctx context.Context, id string) (interview.Result, error) {
	s, ok := sm.Session(id)
	if !ok {
		return interview.Result{}, ErrSessionNotFound
	}
	return s.Controller.End(ctx), nil
}

// Result returns the result of a finished session, live or persisted.
func (sm *SessionManager) Result(ctx context.Context, id string) (interview.Result, error) {
	if s, ok := sm.Session(id); ok {
		if res, done := s.Controller.Result(); done {
			return res, nil
		}
		return interview.Result{}, interview.ErrSessionNotEnded
	}
	if sm.cfg.Results == nil {
		return interview.Result{}, ErrSessionNotFound
	}
	rec, err := sm.cfg.Results.Result(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return interview.Result{}, ErrSessionNotFound
	}
	if err != nil {
		return interview.Result{}, fmt.Errorf("app: load result: %w", err)
	}
	return interview.ResultFromRecord(rec)
}

// History lists a user's persisted results, newest first.
func (sm *SessionManager) History(ctx context.Context, userID string, limit int) ([]interview.Result, error) {
	if sm.cfg.Results == nil {
		return nil, nil
	}
	recs, err := sm.cfg.Results.Results(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("app: list results: %w", err)
	}
	out := make([]interview.Result, 0, len(recs))
	for _, rec := range recs {
		res, err := interview.ResultFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("app: decode result %s: %w", rec.ID, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// WeakAreas returns a user's weak-area index.
func (sm *SessionManager) WeakAreas(ctx context.Context, userID string) ([]store.WeakArea, error) {
	if sm.cfg.WeakAreas == nil {
		return nil, nil
	}
	areas, err := sm.cfg.WeakAreas.WeakAreas(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("app: weak areas: %w", err)
	}
	return areas, nil
}

// Shutdown ends every live session and waits for their results to be
// persisted or for ctx to expire.
func (sm *SessionManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	sm.closing = true
	live := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		live = append(live, s)
	}
	sm.mu.Unlock()

	for _, s := range live {
		s.Controller.End(ctx)
	}

	done := make(chan struct{})
	go func() {
		sm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
