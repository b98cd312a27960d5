// Package mock provides test doubles for the stt package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. If nil, a fresh Session is created
	// for every call.
	Session *Session

	// StartStreamErr, if non-nil, is returned from StartStream.
	StartStreamErr error

	calls []stt.StreamConfig
}

// StartStream records cfg and returns Session or StartStreamErr.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, cfg)
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// Calls returns the StreamConfig of every StartStream call.
func (p *Provider) Calls() []stt.StreamConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]stt.StreamConfig(nil), p.calls...)
}

var _ stt.Provider = (*Provider)(nil)

// Session is a controllable stt.SessionHandle. Tests push transcripts with
// EmitPartial and EmitFinal.
type Session struct {
	PartialsCh chan stt.Transcript
	FinalsCh   chan stt.Transcript

	mu     sync.Mutex
	audio  [][]byte
	closed bool
	closes int
}

// NewSession returns a Session with buffered channels.
func NewSession() *Session {
	return &Session{
		PartialsCh: make(chan stt.Transcript, 16),
		FinalsCh:   make(chan stt.Transcript, 16),
	}
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	s.audio = append(s.audio, append([]byte(nil), chunk...))
	return nil
}

func (s *Session) Partials() <-chan stt.Transcript { return s.PartialsCh }
func (s *Session) Finals() <-chan stt.Transcript   { return s.FinalsCh }

// Close closes both channels on the first call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.PartialsCh)
	close(s.FinalsCh)
	return nil
}

// EmitPartial pushes an interim transcript. No-op after Close.
func (s *Session) EmitPartial(text string) {
	s.emit(s.PartialsCh, stt.Transcript{Text: text})
}

// EmitFinal pushes a final transcript. No-op after Close.
func (s *Session) EmitFinal(text string) {
	s.emit(s.FinalsCh, stt.Transcript{Text: text, IsFinal: true, Confidence: 1})
}

func (s *Session) emit(ch chan stt.Transcript, t stt.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	ch <- t
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseCount returns how often Close was called.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Audio returns copies of every chunk passed to SendAudio.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

var _ stt.SessionHandle = (*Session)(nil)
