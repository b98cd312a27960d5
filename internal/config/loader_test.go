package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/intervox/internal/config"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("INTERVOX_TEST_A", "alpha")

	tests := []struct {
		in   string
		want string
	}{
		{in: "key: ${INTERVOX_TEST_A}", want: "key: alpha"},
		{in: "key: ${INTERVOX_TEST_UNSET_VAR}", want: "key: "},
		{in: "key: $INTERVOX_TEST_A", want: "key: $INTERVOX_TEST_A"},
		{in: "key: ${not valid}", want: "key: ${not valid}"},
		{in: "a: ${INTERVOX_TEST_A}-${INTERVOX_TEST_A}", want: "a: alpha-alpha"},
	}
	for _, tc := range tests {
		if got := string(config.ExpandEnv([]byte(tc.in))); got != tc.want {
			t.Errorf("ExpandEnv(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "intervox.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Interview.MaxQuestions != 8 {
		t.Errorf("max_questions: got %d, want 8", cfg.Interview.MaxQuestions)
	}
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}

func TestStoreConfig_EffectiveDriver(t *testing.T) {
	t.Parallel()
	if got := (config.StoreConfig{}).EffectiveDriver(); got != config.StoreMemory {
		t.Errorf("default driver = %q, want memory", got)
	}
	if got := (config.StoreConfig{Driver: config.StorePostgres}).EffectiveDriver(); got != config.StorePostgres {
		t.Errorf("driver = %q, want postgres", got)
	}
}
