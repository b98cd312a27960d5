package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"gemini", "groq", "openrouter", "openai", "anthropic", "mistral", "deepseek", "ollama"},
	"stt": {"deepgram"},
	"tts": {"elevenlabs", "polly"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// ${VAR} references are replaced by the environment before decoding.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces every ${VAR} in data with the value of the environment
// variable VAR. Unset variables expand to the empty string. A bare $ is left
// alone so secrets containing dollar signs survive.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Provider chain
	if len(cfg.Providers.Chain) == 0 {
		errs = append(errs, errors.New("providers.chain must list at least one provider"))
	}
	seen := make(map[string]int, len(cfg.Providers.Chain))
	for i, e := range cfg.Providers.Chain {
		prefix := fmt.Sprintf("providers.chain[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[e.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers.chain[%d]", prefix, e.Name, prev))
			}
			seen[e.Name] = i
			validateProviderName("llm", e.Name)
		}
		if e.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model is required", prefix))
		}
		if e.Temperature < 0 || e.Temperature > 2 {
			errs = append(errs, fmt.Errorf("%s.temperature %.2f is out of range [0, 2]", prefix, e.Temperature))
		}
		if e.MaxTokens < 0 {
			errs = append(errs, fmt.Errorf("%s.max_tokens must not be negative", prefix))
		}
		if e.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout must not be negative", prefix))
		}
		if len(e.APIKeys) == 0 && e.Name != "ollama" {
			slog.Warn("provider has no api keys; it will be tried without credentials", "provider", e.Name)
		}
	}

	// Speech
	validateProviderName("tts", cfg.Speech.TTS.Name)
	validateProviderName("tts", cfg.Speech.TTSFallback.Name)
	validateProviderName("stt", cfg.Speech.STT.Name)
	if cfg.Speech.TTSFallback.Name != "" && cfg.Speech.TTS.Name == "" {
		errs = append(errs, errors.New("speech.tts_fallback requires speech.tts to be configured"))
	}
	if cfg.Speech.TTSFallback.Name != "" && cfg.Speech.TTSFallback.Name == cfg.Speech.TTS.Name {
		errs = append(errs, fmt.Errorf("speech.tts_fallback %q must differ from speech.tts", cfg.Speech.TTSFallback.Name))
	}
	if cfg.Speech.ChunkPause < 0 {
		errs = append(errs, errors.New("speech.chunk_pause must not be negative"))
	}

	// Interview defaults
	iv := cfg.Interview
	if iv.DurationMinutes < 0 || iv.DurationMinutes > 180 {
		errs = append(errs, fmt.Errorf("interview.duration_minutes %d is out of range [0, 180]", iv.DurationMinutes))
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"max_follow_ups", iv.MaxFollowUps},
		{"stuck_threshold", iv.StuckThreshold},
		{"max_problems", iv.MaxProblems},
		{"max_questions", iv.MaxQuestions},
	} {
		if f.v < 0 {
			errs = append(errs, fmt.Errorf("interview.%s must not be negative", f.name))
		}
	}
	if iv.NextQuestionDelay < 0 {
		errs = append(errs, errors.New("interview.next_question_delay must not be negative"))
	}

	// Store
	if cfg.Store.Driver != "" && !cfg.Store.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: memory, sqlite, postgres", cfg.Store.Driver))
	}
	if d := cfg.Store.EffectiveDriver(); (d == StoreSQLite || d == StorePostgres) && cfg.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("store.dsn is required for driver %q", d))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
