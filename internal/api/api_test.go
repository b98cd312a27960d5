package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/intervox/internal/api"
	"github.com/MrWong99/intervox/internal/app"
	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/health"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/resilience"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/store/memory"
)

const evalReply = `{"score": 70, "strengths": ["concise"], "improvements": ["indexes"], "feedback": "Fine.", "follow_up": ""}`

type fakeRouter struct{}

func (fakeRouter) Request(_ context.Context, req llm.CompletionRequest) (resilience.Response, error) {
	last := req.Messages[len(req.Messages)-1].Content
	switch {
	case strings.Contains(last, "Greet the candidate"):
		return resilience.Response{Text: "Hello there.", ProviderID: "fake"}, nil
	case strings.Contains(last, "Evaluate the candidate"):
		return resilience.Response{Text: evalReply, ProviderID: "fake"}, nil
	default:
		return resilience.Response{Text: "[TYPE:CONCEPT] What is a transaction?", ProviderID: "fake"}, nil
	}
}

type testServer struct {
	*httptest.Server
	sessions *app.SessionManager
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	st := memory.New()
	sm := app.NewSessionManager(app.SessionManagerConfig{
		Router:            fakeRouter{},
		Results:           st,
		WeakAreas:         st,
		Interview:         config.InterviewConfig{NextQuestionDelay: time.Millisecond},
		Metrics:           metrics,
		ControllerOptions: []interview.Option{interview.WithTickInterval(time.Hour)},
	})
	srv := httptest.NewServer(api.NewRouter(api.Config{
		Sessions: sm,
		Health:   health.New(health.StoreChecker(st)),
		Metrics:  metrics,
	}))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sm.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return &testServer{Server: srv, sessions: sm}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, buf.Bytes()
}

func startBody() map[string]any {
	return map[string]any{
		"user_id":        "ada",
		"interview_type": "technical",
		"difficulty":     "beginner",
		"company_target": "startup",
		"tech_stack":     []string{"sql"},
	}
}

type sessionView struct {
	ID    string `json:"session_id"`
	State struct {
		Step           string `json:"step"`
		QuestionNumber int    `json:"question_number"`
	} `json:"state"`
}

func (s *testServer) start(t *testing.T) sessionView {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/api/sessions", startBody())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d, body %s", resp.StatusCode, body)
	}
	var v sessionView
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func waitQuestion(t *testing.T, s *testServer, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		sess, ok := s.sessions.Session(id)
		if !ok {
			t.Fatal("session vanished")
		}
		if sess.Controller.Snapshot().Step == interview.StepQuestion {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the first question")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestJSON(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	api.JSON(w, http.StatusTeapot, map[string]string{"foo": "bar"})
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["foo"] != "bar" {
		t.Errorf("foo = %q, want bar", got["foo"])
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	v := s.start(t)
	if v.ID == "" {
		t.Fatal("empty session id")
	}
	waitQuestion(t, s, v.ID)

	resp, body := s.do(t, http.MethodGet, "/api/sessions/"+v.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, body %s", resp.StatusCode, body)
	}
	var live sessionView
	if err := json.Unmarshal(body, &live); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if live.State.Step != "question" || live.State.QuestionNumber != 1 {
		t.Errorf("state = %+v, want question 1", live.State)
	}

	resp, body = s.do(t, http.MethodGet, "/api/sessions/"+v.ID+"/result", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("result while running: status = %d, want 409", resp.StatusCode)
	}

	resp, body = s.do(t, http.MethodPost, "/api/sessions/"+v.ID+"/answers", map[string]string{"text": "A unit of work that commits or rolls back as a whole."})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("answer status = %d, body %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), `"accepted"`) {
		t.Errorf("answer body = %s, want accepted outcome", body)
	}

	resp, body = s.do(t, http.MethodDelete, "/api/sessions/"+v.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, body %s", resp.StatusCode, body)
	}
	var res interview.Result
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.SessionID != v.ID || res.UserID != "ada" {
		t.Errorf("result = %s/%s, want %s/ada", res.SessionID, res.UserID, v.ID)
	}

	deadline := time.Now().Add(5 * time.Second)
	for s.sessions.Active() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not retired")
		}
		time.Sleep(2 * time.Millisecond)
	}

	resp, body = s.do(t, http.MethodGet, "/api/sessions/"+v.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get after end: status = %d, body %s", resp.StatusCode, body)
	}

	resp, body = s.do(t, http.MethodGet, "/api/users/ada/results?limit=5", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var hist []interview.Result
	if err := json.Unmarshal(body, &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist) != 1 {
		t.Errorf("history has %d results, want 1", len(hist))
	}

	resp, body = s.do(t, http.MethodGet, "/api/users/ada/weak-areas", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("weak areas status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "indexes") {
		t.Errorf("weak areas = %s, want indexes", body)
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "unknown session", method: http.MethodGet, path: "/api/sessions/nope", want: http.StatusNotFound},
		{name: "end unknown", method: http.MethodDelete, path: "/api/sessions/nope", want: http.StatusNotFound},
		{name: "answer unknown", method: http.MethodPost, path: "/api/sessions/nope/answers", body: map[string]string{"text": "x"}, want: http.StatusNotFound},
		{name: "bad interview type", method: http.MethodPost, path: "/api/sessions", body: map[string]any{"interview_type": "poetry", "difficulty": "beginner", "company_target": "startup"}, want: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/api/sessions", body: map[string]any{"colour": "blue"}, want: http.StatusBadRequest},
		{name: "bad limit", method: http.MethodGet, path: "/api/users/ada/results?limit=-1", want: http.StatusBadRequest},
		{name: "events unknown", method: http.MethodGet, path: "/api/sessions/nope/events", want: http.StatusNotFound},
		{name: "empty weak areas", method: http.MethodGet, path: "/api/users/nobody/weak-areas", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d; body %s", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestHealthRoutes(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, body := s.do(t, http.MethodGet, path, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, body %s", path, resp.StatusCode, body)
		}
	}
}

func TestEventsSocket(t *testing.T) {
	t.Parallel()

	s := newServer(t)
	v := s.start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/sessions/" + v.ID + "/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	waitQuestion(t, s, v.ID)

	// Voice is not configured: binary audio yields a banner.
	if err := conn.Write(ctx, websocket.MessageBinary, make([]byte, 320)); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"end"}`)); err != nil {
		t.Fatalf("write end: %v", err)
	}

	var kinds []string
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				t.Fatalf("Read: %v", err)
			}
			break
		}
		if typ != websocket.MessageText {
			continue
		}
		var f struct {
			Type  string `json:"type"`
			Event struct {
				Kind   string `json:"kind"`
				Banner string `json:"banner"`
			} `json:"event"`
		}
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if f.Type == "event" {
			kinds = append(kinds, f.Event.Kind)
		}
	}

	if !slices.Contains(kinds, string(interview.EventBanner)) {
		t.Errorf("events %v, want a voice banner", kinds)
	}
	if !slices.Contains(kinds, string(interview.EventComplete)) {
		t.Errorf("events %v, want complete", kinds)
	}
}
