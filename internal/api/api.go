// Package api exposes interview sessions over HTTP and WebSocket.
//
// REST routes start, inspect, answer and end sessions and read a user's
// history. GET /api/sessions/{id}/events upgrades to a WebSocket that streams
// session events as JSON text frames and narration as binary 16 kHz mono
// PCM frames. Binary frames sent by the client are forwarded to the
// transcriber; text frames carry typed answers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/intervox/internal/app"
	"github.com/MrWong99/intervox/internal/health"
	"github.com/MrWong99/intervox/internal/observe"
)

// Config holds the dependencies of the HTTP surface.
type Config struct {
	// Sessions is required.
	Sessions *app.SessionManager

	// Health serves /healthz and /readyz when set.
	Health *health.Handler

	// Metrics instruments every request. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler

	// AllowedOrigins are host patterns accepted for WebSocket upgrades.
	// Empty allows only same-origin requests.
	AllowedOrigins []string
}

// Handler serves the session API.
type Handler struct {
	sessions *app.SessionManager
	origins  []string
}

// NewHandler creates a Handler backed by sm.
func NewHandler(sm *app.SessionManager, allowedOrigins []string) *Handler {
	return &Handler{sessions: sm, origins: allowedOrigins}
}

// RegisterRoutes mounts the session routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", h.startSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.endSession)
			r.Post("/answers", h.submitAnswer)
			r.Get("/result", h.getResult)
			r.Get("/events", h.events)
		})
		r.Get("/users/{user}/results", h.history)
		r.Get("/users/{user}/weak-areas", h.weakAreas)
	})
}

// NewRouter builds the complete HTTP handler of the server.
func NewRouter(cfg Config) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(observe.Middleware(cfg.Metrics))

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	NewHandler(cfg.Sessions, cfg.AllowedOrigins).RegisterRoutes(r)
	return r
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
