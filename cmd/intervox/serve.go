package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/intervox/internal/api"
	"github.com/MrWong99/intervox/internal/app"
	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/observe"
)

const (
	defaultListenAddr = ":8080"
	shutdownTimeout   = 20 * time.Second
)

var (
	watchInterval  time.Duration
	allowedOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket interview API",
	Long: `Start the interview server. Sessions are created over the REST API and
streamed over /api/sessions/{id}/events. The config file is watched: log level
and interview defaults are applied without a restart.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&watchInterval, "watch-interval", 5*time.Second, "how often the config file is checked for changes")
	serveCmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origin", nil, "host pattern allowed to open event sockets (repeatable)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, level := newLogger(os.Stderr, cfg.Server)
	slog.SetDefault(logger)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}
	slog.Info("intervox starting",
		"version", version,
		"config", configPath,
		"listen_addr", listenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		return err
	}

	printStartupSummary(cmd.OutOrStdout(), cfg, listenAddr)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithLogLevel(level),
	)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(configPath, application.ApplyConfig, config.WithInterval(watchInterval))
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-hup:
					if err := watcher.Reload(); err != nil {
						slog.Warn("config reload rejected, keeping the running configuration", "err", err)
					}
				}
			}
		}()
	}

	// ── HTTP ──────────────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr: listenAddr,
		Handler: api.NewRouter(api.Config{
			Sessions:       application.Sessions(),
			Health:         application.Health(),
			Metrics:        metrics,
			MetricsHandler: tel.MetricsHandler(),
			AllowedOrigins: allowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()
	slog.Info("server ready, press Ctrl+C to shut down")

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		runErr = errors.Join(runErr, err)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if runErr == nil {
		slog.Info("goodbye")
	}
	return runErr
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, listenAddr string) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        Intervox startup summary       ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	for i, e := range cfg.Providers.Chain {
		printProvider(w, fmt.Sprintf("LLM #%d", i+1), e.Name, e.Model)
	}
	printProvider(w, "TTS", cfg.Speech.TTS.Name, cfg.Speech.TTS.Model)
	printProvider(w, "TTS fallback", cfg.Speech.TTSFallback.Name, cfg.Speech.TTSFallback.Model)
	printProvider(w, "STT", cfg.Speech.STT.Name, cfg.Speech.STT.Model)
	printProvider(w, "Store", string(cfg.Store.EffectiveDriver()), "")
	fmt.Fprintf(w, "║  Duration        : %-19s ║\n", cfg.Interview.Duration())
	fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", listenAddr)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, value)
}
