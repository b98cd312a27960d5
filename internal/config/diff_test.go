package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/intervox/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{Chain: []config.LLMEntry{
			{Name: "gemini", Model: "flash", APIKeys: []string{"k1"}},
		}},
		Interview: config.InterviewConfig{MaxQuestions: 6},
		Store:     config.StoreConfig{Driver: config.StoreMemory},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.LogLevelChanged || d.InterviewChanged || len(d.RestartRequired) != 0 {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	next := baseConfig()
	next.Server.LogLevel = config.LogDebug

	d := config.Diff(baseConfig(), next)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("got %+v", d)
	}
}

func TestDiff_InterviewChanged(t *testing.T) {
	t.Parallel()
	next := baseConfig()
	next.Interview.NextQuestionDelay = 3 * time.Second

	d := config.Diff(baseConfig(), next)
	if !d.InterviewChanged {
		t.Fatal("InterviewChanged should be true")
	}
	if d.NewInterview.NextQuestionDelay != 3*time.Second {
		t.Errorf("NewInterview = %+v", d.NewInterview)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("interview change must hot-apply, got restart %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{name: "listen addr", mutate: func(c *config.Config) { c.Server.ListenAddr = ":9090" }, want: "server"},
		{name: "api key", mutate: func(c *config.Config) { c.Providers.Chain[0].APIKeys = []string{"k2"} }, want: "providers"},
		{
			name: "added provider",
			mutate: func(c *config.Config) {
				c.Providers.Chain = append(c.Providers.Chain, config.LLMEntry{Name: "groq", Model: "llama"})
			},
			want: "providers",
		},
		{name: "tts voice", mutate: func(c *config.Config) { c.Speech.TTS.VoiceID = "v2" }, want: "speech"},
		{name: "store", mutate: func(c *config.Config) { c.Store.Driver = config.StoreSQLite }, want: "store"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			next := baseConfig()
			tc.mutate(next)
			d := config.Diff(baseConfig(), next)
			if !slices.Contains(d.RestartRequired, tc.want) {
				t.Errorf("RestartRequired = %v, want it to contain %q", d.RestartRequired, tc.want)
			}
		})
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	next := baseConfig()
	next.Server.LogLevel = config.LogWarn
	next.Interview.MaxQuestions = 10
	next.Store.DSN = "other"

	d := config.Diff(baseConfig(), next)
	if !d.LogLevelChanged || !d.InterviewChanged {
		t.Errorf("got %+v", d)
	}
	if !slices.Equal(d.RestartRequired, []string{"store"}) {
		t.Errorf("RestartRequired = %v, want [store]", d.RestartRequired)
	}
}
