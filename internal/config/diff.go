package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// InterviewChanged is set when session defaults differ. New sessions
	// pick up NewInterview; running sessions keep their limits.
	InterviewChanged bool
	NewInterview     InterviewConfig

	// RestartRequired lists sections that changed but only take effect
	// after a restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Interview != new.Interview {
		d.InterviewChanged = true
		d.NewInterview = new.Interview
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFormat != new.Server.LogFormat {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !chainEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !speechEqual(old.Speech, new.Speech) {
		d.RestartRequired = append(d.RestartRequired, "speech")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}

	return d
}

func chainEqual(a, b ProvidersConfig) bool {
	if a.ResetEnabled() != b.ResetEnabled() || len(a.Chain) != len(b.Chain) {
		return false
	}
	for i := range a.Chain {
		x, y := a.Chain[i], b.Chain[i]
		if x.Name != y.Name || x.Model != y.Model || x.BaseURL != y.BaseURL ||
			x.Temperature != y.Temperature || x.MaxTokens != y.MaxTokens || x.Timeout != y.Timeout ||
			!slices.Equal(x.APIKeys, y.APIKeys) || !slices.Equal(x.Stop, y.Stop) {
			return false
		}
	}
	return true
}

func speechEqual(a, b SpeechConfig) bool {
	return entryEqual(a.TTS.ProviderEntry, b.TTS.ProviderEntry) && a.TTS.VoiceID == b.TTS.VoiceID &&
		entryEqual(a.TTSFallback.ProviderEntry, b.TTSFallback.ProviderEntry) && a.TTSFallback.VoiceID == b.TTSFallback.VoiceID &&
		entryEqual(a.STT, b.STT) && a.ChunkPause == b.ChunkPause
}

// entryEqual ignores Options, which are not comparable.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
