package app_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/intervox/internal/app"
	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/resilience"
	"github.com/MrWong99/intervox/pkg/store/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":0", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			Chain: []config.LLMEntry{{Name: "ollama", Model: "llama3"}},
		},
		Interview: config.InterviewConfig{NextQuestionDelay: time.Millisecond},
	}
}

func newApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	pool, err := resilience.NewProviderPool(cfg.Providers.Specs())
	if err != nil {
		t.Fatalf("NewProviderPool: %v", err)
	}
	opts = append([]app.Option{
		app.WithMetrics(testMetrics(t)),
		app.WithControllerOptions(interview.WithTickInterval(time.Hour)),
	}, opts...)
	a, err := app.New(context.Background(), cfg, &app.Providers{Pool: pool, Router: &fakeRouter{}}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return a
}

func TestNew_RequiresRouter(t *testing.T) {
	t.Parallel()

	if _, err := app.New(context.Background(), testConfig(), &app.Providers{}); err == nil {
		t.Fatal("New without router: want error")
	}
	if _, err := app.New(context.Background(), testConfig(), nil); err == nil {
		t.Fatal("New with nil providers: want error")
	}
}

func TestNew_Stores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		store config.StoreConfig
	}{
		{name: "default memory", store: config.StoreConfig{}},
		{name: "sqlite", store: config.StoreConfig{Driver: config.StoreSQLite, DSN: filepath.Join(t.TempDir(), "results.db")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			cfg.Store = tt.store
			a := newApp(t, cfg)
			if a.Store() == nil {
				t.Fatal("Store() is nil")
			}
			if err := a.Store().Ping(context.Background()); err != nil {
				t.Errorf("Ping: %v", err)
			}
		})
	}
}

func TestNew_InjectedStore(t *testing.T) {
	t.Parallel()

	st := memory.New()
	a := newApp(t, testConfig(), app.WithStore(st))
	if a.Store() != st {
		t.Error("Store() did not return the injected store")
	}
}

func TestApp_SessionPersistsToStore(t *testing.T) {
	t.Parallel()

	st := memory.New()
	a := newApp(t, testConfig(), app.WithStore(st))
	ctx := context.Background()

	s, err := a.Sessions().StartSession(ctx, technical())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := a.Sessions().EndSession(ctx, s.ID); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	waitUntil(t, "persisted result", func() bool {
		_, err := st.Result(ctx, s.ID)
		return err == nil
	})
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()

	level := new(slog.LevelVar)
	prev := testConfig()
	a := newApp(t, prev, app.WithLogLevel(level))

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Interview.MaxQuestions = 11
	next.Store.Driver = config.StoreSQLite
	a.ApplyConfig(config.Diff(prev, next))

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %s, want debug", level.Level())
	}
	s, err := a.Sessions().StartSession(context.Background(), technical())
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if got := s.Controller.Config().Limits.MaxQuestions; got != 11 {
		t.Errorf("MaxQuestions = %d, want the reloaded 11", got)
	}
	if a.Store() == nil {
		t.Error("store was replaced by a restart-only change")
	}
}

func TestApp_Health(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig())
	rec := httptest.NewRecorder()
	a.Health().Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Checks["store"] != "ok" || body.Checks["providers"] != "ok" {
		t.Errorf("checks = %v, want store and providers ok", body.Checks)
	}
}

func TestApp_ShutdownIdempotent(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig())
	if _, err := a.Sessions().StartSession(context.Background(), technical()); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if a.Sessions().Active() != 0 {
		t.Errorf("Active = %d, want 0", a.Sessions().Active())
	}
}
