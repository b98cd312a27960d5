package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/intervox/internal/app"
	"github.com/MrWong99/intervox/internal/interview"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// sessionView is the live view of a session.
type sessionView struct {
	ID        string          `json:"session_id"`
	StartedAt time.Time       `json:"started_at"`
	Narrated  bool            `json:"narrated"`
	State     interview.State `json:"state"`
}

func viewOf(s *app.Session) sessionView {
	return sessionView{
		ID:        s.ID,
		StartedAt: s.StartedAt,
		Narrated:  s.Narrated(),
		State:     s.Controller.Snapshot(),
	}
}

type answerRequest struct {
	Text string `json:"text"`
}

type answerResponse struct {
	Outcome string `json:"outcome"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	var sc app.SessionConfig
	if !decode(w, r, &sc) {
		return
	}
	s, err := h.sessions.StartSession(r.Context(), sc)
	switch {
	case errors.Is(err, app.ErrShuttingDown):
		Error(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	JSON(w, http.StatusCreated, viewOf(s))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s, ok := h.sessions.Session(id); ok {
		JSON(w, http.StatusOK, viewOf(s))
		return
	}
	h.getResult(w, r)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := h.sessions.Submit(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	status := http.StatusAccepted
	switch out {
	case interview.SubmitEmpty:
		status = http.StatusBadRequest
	case interview.SubmitDropped, interview.SubmitNotReady, interview.SubmitSessionEnded:
		status = http.StatusConflict
	}
	JSON(w, status, answerResponse{Outcome: out.String()})
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	res, err := h.sessions.EndSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.sessionError(w, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

func (h *Handler) getResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.sessions.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.sessionError(w, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	results, err := h.sessions.History(r.Context(), chi.URLParam(r, "user"), limit)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	if results == nil {
		results = []interview.Result{}
	}
	JSON(w, http.StatusOK, results)
}

func (h *Handler) weakAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := h.sessions.WeakAreas(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.sessionError(w, err)
		return
	}
	if areas == nil {
		JSON(w, http.StatusOK, []struct{}{})
		return
	}
	JSON(w, http.StatusOK, areas)
}

// sessionError maps session manager errors to HTTP statuses.
func (h *Handler) sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, interview.ErrSessionNotEnded):
		Error(w, http.StatusConflict, "session still running")
	default:
		slog.Error("api: request failed", "err", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
