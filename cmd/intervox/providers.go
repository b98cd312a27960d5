package main

import (
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/intervox/internal/app"
	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/resilience"
	"github.com/MrWong99/intervox/pkg/provider/llm"
	"github.com/MrWong99/intervox/pkg/provider/llm/anyllm"
	"github.com/MrWong99/intervox/pkg/provider/llm/openai"
	"github.com/MrWong99/intervox/pkg/provider/stt"
	"github.com/MrWong99/intervox/pkg/provider/stt/deepgram"
	"github.com/MrWong99/intervox/pkg/provider/tts"
	"github.com/MrWong99/intervox/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/intervox/pkg/provider/tts/polly"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// Every any-llm-go backend shares the same pattern: optional key and
	// optional base URL. Ollama runs keyless.
	for _, providerName := range []string{"gemini", "groq", "anthropic", "mistral", "deepseek", "ollama"} {
		reg.RegisterLLM(providerName, func(entry config.LLMEntry, apiKey string) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if apiKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(apiKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("openai", func(entry config.LLMEntry, apiKey string) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(apiKey, entry.Model, opts...)
	})

	reg.RegisterLLM("openrouter", func(entry config.LLMEntry, apiKey string) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if ref := optString(entry.Options, "referer"); ref != "" {
			opts = append(opts, openai.WithHeader("HTTP-Referer", ref))
		}
		if title := optString(entry.Options, "title"); title != "" {
			opts = append(opts, openai.WithHeader("X-Title", title))
		}
		return openai.NewOpenRouter(apiKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.VoiceEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("polly", func(entry config.VoiceEntry) (tts.Provider, error) {
		var opts []polly.Option
		if region := optString(entry.Options, "region"); region != "" {
			opts = append(opts, polly.WithRegion(region))
		}
		if engine := optString(entry.Options, "engine"); engine != "" {
			opts = append(opts, polly.WithEngine(engine))
		}
		return polly.New(opts...), nil
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates every provider named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	ps, err := buildChain(cfg, reg, metrics)
	if err != nil {
		return nil, err
	}

	if name := cfg.Speech.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Speech.STT)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("provider not available, voice answers disabled", "kind", "stt", "name", name)
		case err != nil:
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		default:
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}

	if err := buildNarration(cfg.Speech, reg, ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// buildChain creates the credential pool and router of the LLM chain. It
// is all a text-only session needs.
func buildChain(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	pool, err := resilience.NewProviderPool(cfg.Providers.Specs())
	if err != nil {
		return nil, fmt.Errorf("build provider chain: %w", err)
	}
	for _, e := range cfg.Providers.Chain {
		slog.Info("provider chained", "kind", "llm", "name", e.Name, "model", e.Model, "keys", len(e.APIKeys))
	}
	return &app.Providers{
		Pool:   pool,
		Router: resilience.NewRouter(pool, reg.ClientFactory(cfg.Providers.Chain), resilience.WithMetrics(metrics)),
	}, nil
}

// buildNarration creates the TTS backend. With a fallback configured the
// two are composed behind circuit breakers so narration survives an outage
// of the primary.
func buildNarration(sc config.SpeechConfig, reg *config.Registry, ps *app.Providers) error {
	if sc.TTS.Name == "" {
		return nil
	}
	primary, err := createTTS(reg, sc.TTS)
	if err != nil || primary == nil {
		return err
	}
	ps.Voice = voiceOf(sc.TTS)
	ps.TTS = primary

	if sc.TTSFallback.Name == "" {
		return nil
	}
	fallback, err := createTTS(reg, sc.TTSFallback)
	if err != nil || fallback == nil {
		return err
	}
	group := resilience.NewTTSFallback(sc.TTS.Name, primary, ps.Voice, resilience.FallbackConfig{})
	group.AddFallback(sc.TTSFallback.Name, fallback, voiceOf(sc.TTSFallback))
	ps.TTS = group
	slog.Info("narration fallback enabled", "primary", sc.TTS.Name, "fallback", sc.TTSFallback.Name)
	return nil
}

func createTTS(reg *config.Registry, entry config.VoiceEntry) (tts.Provider, error) {
	p, err := reg.CreateTTS(entry)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Warn("provider not available", "kind", "tts", "name", entry.Name)
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", entry.Name, "voice", entry.VoiceID)
	return p, nil
}

func voiceOf(entry config.VoiceEntry) tts.Voice {
	return tts.Voice{ID: entry.VoiceID, Provider: entry.Name}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
