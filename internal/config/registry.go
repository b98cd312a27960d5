package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/intervox/internal/resilience"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// LLMFactory builds the client for one credential of one chain entry.
type LLMFactory func(entry LLMEntry, apiKey string) (llm.Provider, error)

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]LLMFactory
	stt map[string]func(ProviderEntry) (stt.Provider, error)
	tts map[string]func(VoiceEntry) (tts.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm: make(map[string]LLMFactory),
		stt: make(map[string]func(ProviderEntry) (stt.Provider, error)),
		tts: make(map[string]func(VoiceEntry) (tts.Provider, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(VoiceEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateLLM instantiates an LLM client for entry authenticated with apiKey.
// Returns [ErrProviderNotRegistered] if no factory has been registered for entry.Name.
func (r *Registry) CreateLLM(entry LLMEntry, apiKey string) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, apiKey)
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry VoiceEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Specs converts the chain into the router's provider specs.
func (p ProvidersConfig) Specs() []resilience.ProviderSpec {
	specs := make([]resilience.ProviderSpec, 0, len(p.Chain))
	for _, e := range p.Chain {
		specs = append(specs, resilience.ProviderSpec{
			ID:          e.Name,
			Model:       e.Model,
			BaseURL:     e.BaseURL,
			Keys:        append([]string(nil), e.APIKeys...),
			Temperature: e.Temperature,
			MaxTokens:   e.MaxTokens,
			Stop:        append([]string(nil), e.Stop...),
			Timeout:     e.Timeout,
		})
	}
	return specs
}

// ClientFactory adapts the registry to [resilience.ClientFactory] for the
// given chain. Spec IDs are matched to chain entries by name.
func (r *Registry) ClientFactory(chain []LLMEntry) resilience.ClientFactory {
	byName := make(map[string]LLMEntry, len(chain))
	for _, e := range chain {
		byName[e.Name] = e
	}
	return func(spec resilience.ProviderSpec, secret string) (llm.Provider, error) {
		entry, ok := byName[spec.ID]
		if !ok {
			entry = LLMEntry{Name: spec.ID, Model: spec.Model, BaseURL: spec.BaseURL}
		}
		return r.CreateLLM(entry, secret)
	}
}
