// Package app wires all Intervox subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens the result store and
// builds the [SessionManager], ApplyConfig hot-applies reloadable settings,
// and Shutdown ends every session and tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics, WithControllerOptions). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/health"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/resilience"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/provider/tts"
	"github.com/MrWong99/intervox/pkg/store"
	"github.com/MrWong99/intervox/pkg/store/memory"
	"github.com/MrWong99/intervox/pkg/store/postgres"
	"github.com/MrWong99/intervox/pkg/store/sqlite"
)

// Providers holds the constructed provider stack. Nil TTS or STT means the
// capability is not configured. Populated by main.go via the config registry.
type Providers struct {
	// Pool is the credential state behind Router. It may be nil when Router
	// is not backed by a pool.
	Pool   *resilience.ProviderPool
	Router interview.Router

	TTS   tts.Provider
	Voice tts.Voice
	STT   stt.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	level     *slog.LevelVar
	ctrlOpts  []interview.Option

	store    store.Store
	sessions *SessionManager
	health   *health.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a result store instead of opening one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics overrides the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets ApplyConfig change the level of the running logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithControllerOptions passes options to every interview controller.
func WithControllerOptions(opts ...interview.Option) Option {
	return func(a *App) { a.ctrlOpts = append(a.ctrlOpts, opts...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Router == nil {
		return nil, errors.New("app: an LLM router is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Result store ──────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Sessions ──────────────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Router:               providers.Router,
		Pool:                 providers.Pool,
		ResetBetweenSessions: cfg.Providers.ResetEnabled(),
		Results:              a.store,
		WeakAreas:            a.store,
		TTS:                  providers.TTS,
		Voice:                providers.Voice,
		STT:                  providers.STT,
		Interview:            cfg.Interview,
		ChunkPause:           cfg.Speech.ChunkPause,
		Metrics:              a.metrics,
		ControllerOptions:    a.ctrlOpts,
	})

	// ── 3. Health ────────────────────────────────────────────────────────
	checkers := []health.Checker{health.StoreChecker(a.store)}
	if providers.Pool != nil {
		checkers = append(checkers, health.ProvidersChecker(providers.Pool))
	}
	a.health = health.New(checkers...)

	return a, nil
}

// initStore opens the configured backend unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	var (
		s   store.Store
		err error
	)
	switch driver := a.cfg.Store.EffectiveDriver(); driver {
	case config.StoreMemory:
		s = memory.New()
	case config.StoreSQLite:
		s, err = sqlite.Open(ctx, a.cfg.Store.DSN)
	case config.StorePostgres:
		s, err = postgres.NewStore(ctx, a.cfg.Store.DSN)
	default:
		return fmt.Errorf("unknown store driver %q", driver)
	}
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	slog.Info("result store opened", "driver", a.cfg.Store.EffectiveDriver())
	return nil
}

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Store returns the result store.
func (a *App) Store() store.Store { return a.store }

// Health returns the liveness and readiness handler.
func (a *App) Health() *health.Handler { return a.health }

// Metrics returns the metrics sink shared by all sessions.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// ApplyConfig hot-applies a reloaded log level and interview defaults. It is
// the [config.Watcher] callback; running sessions keep their limits.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.InterviewChanged {
		a.sessions.SetDefaults(d.NewInterview)
		slog.Info("interview defaults changed; new sessions use them",
			"duration", d.NewInterview.Duration(), "limits", fmt.Sprintf("%+v", d.NewInterview.Limits()))
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends every session, waits for results to be persisted and closes
// the store. It respects the context deadline: if ctx expires before the
// sessions finish, the store is still closed and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if err := a.sessions.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: end sessions: %w", err))
		}
		for _, c := range a.closers {
			if err := c(); err != nil {
				errs = append(errs, fmt.Errorf("app: close: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}
