// Package deepgram provides an STT provider backed by the Deepgram live
// streaming WebSocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

const (
	defaultEndpoint    = "wss://api.deepgram.com/v1/listen"
	defaultModel       = "nova-3"
	defaultLanguage    = "en"
	defaultSampleRate  = 16000
	defaultEndpointing = 1200
	keywordBoost       = 2
)

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model ("nova-3", "nova-2", ...).
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default recognition language.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithEndpoint overrides the listen URL.
func WithEndpoint(u string) Option {
	return func(p *Provider) { p.endpoint = u }
}

// Provider implements stt.Provider.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: defaultEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a live transcription session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess := &session{
		conn:     conn,
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 16),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}
	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)
	return sess, nil
}

func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}
	endpointing := cfg.EndpointingMs
	if endpointing == 0 {
		endpointing = defaultEndpointing
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("endpointing", strconv.Itoa(endpointing))
	for _, kw := range cfg.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		// nova-3 takes keyterm, older models take keywords with a boost.
		if strings.HasPrefix(p.model, "nova-3") {
			q.Add("keyterm", kw)
		} else {
			q.Add("keywords", fmt.Sprintf("%s:%d", kw, keywordBoost))
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type response struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session implements stt.SessionHandle. Finalized segments are buffered
// until Deepgram reports speech_final, so one final equals one utterance.
type session struct {
	conn     *websocket.Conn
	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }
func (s *session) Finals() <-chan stt.Transcript   { return s.finals }

func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		pending []string
		confSum float64
	)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		t := stt.Transcript{
			Text:       strings.Join(pending, " "),
			IsFinal:    true,
			Confidence: confSum / float64(len(pending)),
		}
		pending, confSum = nil, 0
		select {
		case s.finals <- t:
		case <-s.done:
		}
	}

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			flush()
			return
		}
		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Type == "UtteranceEnd" {
			flush()
			continue
		}
		t, ok := parseResult(resp)
		if !ok {
			continue
		}
		if !resp.IsFinal {
			select {
			case s.partials <- t:
			case <-s.done:
			default:
				// Partials are advisory; drop rather than stall finals.
			}
			continue
		}
		if t.Text != "" {
			pending = append(pending, t.Text)
			confSum += t.Confidence
		}
		if resp.SpeechFinal {
			flush()
		}
	}
}

func parseResult(resp response) (stt.Transcript, bool) {
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}
	alt := resp.Channel.Alternatives[0]
	return stt.Transcript{
		Text:       strings.TrimSpace(alt.Transcript),
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
	}, true
}

var _ stt.Provider = (*Provider)(nil)
