package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/intervox/internal/app"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/pkg/audio"
)

const (
	// maxFrameBytes bounds one client frame: a second of 48 kHz stereo PCM.
	maxFrameBytes = 192000

	writeTimeout = 10 * time.Second

	voiceUnavailableBanner = "Voice answers are not available right now. Please type your answer."
)

// serverFrame is a JSON text frame sent to the client.
type serverFrame struct {
	Type  string           `json:"type"`
	Event *interview.Event `json:"event,omitempty"`
	Text  string           `json:"text,omitempty"`
}

// clientFrame is a JSON text frame received from the client.
type clientFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// captureFormat reads the PCM format of client audio from the query string.
// It defaults to 16 kHz mono.
func captureFormat(r *http.Request) (audio.Format, error) {
	f := audio.Speech
	q := r.URL.Query()
	if v := q.Get("sample_rate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, errors.New("sample_rate must be an integer")
		}
		f.SampleRate = n
	}
	if v := q.Get("channels"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, errors.New("channels must be an integer")
		}
		f.Channels = n
	}
	if !f.Valid() {
		return f, errors.New("unsupported audio format " + f.String())
	}
	return f, nil
}

// events streams a session over a WebSocket until the session completes or
// the client disconnects.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, ok := h.sessions.Session(id)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	format, err := captureFormat(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("api: websocket accept failed", "session_id", id, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFrameBytes)

	msgs, unsubscribe := s.Hub.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		readLoop(ctx, conn, s, format)
	}()

	if err := writeLoop(ctx, conn, msgs); err != nil && ctx.Err() == nil {
		slog.Debug("api: websocket write failed", "session_id", id, "err", err)
	}
	cancel()
	<-readDone
}

// writeLoop forwards hub messages until the hub closes, which happens once
// the session has completed and its result was persisted.
func writeLoop(ctx context.Context, conn *websocket.Conn, msgs <-chan app.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return conn.Close(websocket.StatusNormalClosure, "session complete")
			}
			if err := writeMessage(ctx, conn, m); err != nil {
				return err
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, m app.Message) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	switch {
	case len(m.Audio) > 0:
		return conn.Write(wctx, websocket.MessageBinary, m.Audio)
	case m.Event != nil:
		return wsjson.Write(wctx, conn, serverFrame{Type: "event", Event: m.Event})
	default:
		return wsjson.Write(wctx, conn, serverFrame{Type: "partial", Text: m.Partial})
	}
}

// readLoop handles client frames: binary frames are candidate speech, text
// frames are JSON commands.
func readLoop(ctx context.Context, conn *websocket.Conn, s *app.Session, format audio.Format) {
	warned := false
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		switch typ {
		case websocket.MessageBinary:
			err := s.SendAudio(data, format)
			if errors.Is(err, app.ErrVoiceUnavailable) {
				if !warned {
					warned = true
					s.Hub.Emit(interview.Event{
						Kind:      interview.EventBanner,
						SessionID: s.ID,
						At:        time.Now(),
						Step:      s.Controller.Snapshot().Step,
						Banner:    voiceUnavailableBanner,
					})
				}
				continue
			}
			if err != nil {
				slog.Debug("api: forward audio failed", "session_id", s.ID, "err", err)
			}
		case websocket.MessageText:
			var f clientFrame
			if err := json.Unmarshal(data, &f); err != nil {
				slog.Debug("api: malformed client frame", "session_id", s.ID, "err", err)
				continue
			}
			switch f.Type {
			case "answer":
				out := s.Controller.SubmitAnswer(ctx, f.Text, interview.SourceText)
				slog.Debug("api: typed answer", "session_id", s.ID, "outcome", out)
			case "end":
				s.Controller.End(ctx)
			default:
				slog.Debug("api: unknown client frame", "session_id", s.ID, "type", f.Type)
			}
		}
	}
}
