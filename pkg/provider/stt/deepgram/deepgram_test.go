package deepgram

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

func TestNew_RequiresKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		opts  []Option
		cfg   stt.StreamConfig
		want  map[string]string
		multi map[string][]string
	}{
		{
			name: "defaults",
			want: map[string]string{
				"model":           "nova-3",
				"language":        "en",
				"sample_rate":     "16000",
				"channels":        "1",
				"encoding":        "linear16",
				"interim_results": "true",
				"endpointing":     "1200",
			},
		},
		{
			name: "overrides",
			opts: []Option{WithModel("nova-2"), WithLanguage("de")},
			cfg:  stt.StreamConfig{SampleRate: 48000, EndpointingMs: 2000, Keywords: []string{"Kubernetes", " ", "Redis"}},
			want: map[string]string{
				"model":       "nova-2",
				"language":    "de",
				"sample_rate": "48000",
				"endpointing": "2000",
			},
			multi: map[string][]string{"keywords": {"Kubernetes:2", "Redis:2"}},
		},
		{
			name:  "nova-3 keyterms",
			cfg:   stt.StreamConfig{Language: "fr", Keywords: []string{"memoization"}},
			want:  map[string]string{"language": "fr"},
			multi: map[string][]string{"keyterm": {"memoization"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := New("key", tt.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			raw, err := p.buildURL(tt.cfg)
			if err != nil {
				t.Fatalf("buildURL: %v", err)
			}
			u, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			q := u.Query()
			for k, v := range tt.want {
				if got := q.Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
			for k, v := range tt.multi {
				if got := q[k]; strings.Join(got, ",") != strings.Join(v, ",") {
					t.Errorf("%s = %v, want %v", k, got, v)
				}
			}
		})
	}
}

func TestParseResult(t *testing.T) {
	t.Parallel()

	var r response
	r.Type = "Results"
	r.IsFinal = true
	r.Channel.Alternatives = append(r.Channel.Alternatives, struct {
		Transcript string  `json:"transcript"`
		Confidence float64 `json:"confidence"`
	}{Transcript: "  use a hash map ", Confidence: 0.9})

	got, ok := parseResult(r)
	if !ok {
		t.Fatal("parseResult returned !ok")
	}
	if got.Text != "use a hash map" || !got.IsFinal || got.Confidence != 0.9 {
		t.Errorf("parseResult = %+v", got)
	}

	if _, ok := parseResult(response{Type: "Metadata"}); ok {
		t.Error("metadata message should be ignored")
	}
	if _, ok := parseResult(response{Type: "Results"}); ok {
		t.Error("result without alternatives should be ignored")
	}
}

func TestStream_JoinsSegmentsUntilSpeechFinal(t *testing.T) {
	t.Parallel()

	msgs := []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"two","confidence":0.5}]}}`,
		`{"type":"Results","is_final":true,"speech_final":false,"channel":{"alternatives":[{"transcript":"two pointers","confidence":0.8}]}}`,
		`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"then sort","confidence":1.0}]}}`,
	}

	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
		for _, m := range msgs {
			if err := conn.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	p, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartStream(ctx, stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer sess.Close()

	if err := sess.SendAudio(make([]byte, 320)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case p := <-sess.Partials():
		if p.Text != "two" || p.IsFinal {
			t.Errorf("partial = %+v", p)
		}
	case <-ctx.Done():
		t.Fatal("no partial received")
	}

	select {
	case f := <-sess.Finals():
		if f.Text != "two pointers then sort" {
			t.Errorf("final text = %q", f.Text)
		}
		if math.Abs(f.Confidence-0.9) > 1e-9 {
			t.Errorf("final confidence = %v, want 0.9", f.Confidence)
		}
	case <-ctx.Done():
		t.Fatal("no final received")
	}

	if got := <-gotAuth; got != "Token secret" {
		t.Errorf("Authorization = %q", got)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.SendAudio([]byte{0}); err != stt.ErrSessionClosed {
		t.Errorf("SendAudio after Close = %v, want ErrSessionClosed", err)
	}
}
