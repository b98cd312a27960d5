package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/intervox/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
	}{
		{"empty provider", "", "gemini-2.0-flash"},
		{"empty model", "gemini", ""},
		{"unsupported", "fakecloud", "some-model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.provider, tt.model, anyllmlib.WithAPIKey("dummy")); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_Backends(t *testing.T) {
	for _, name := range []string{"anthropic", "openai"} {
		t.Run(name, func(t *testing.T) {
			p, err := New(name, "m", anyllmlib.WithAPIKey("test-key"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.name != name {
				t.Errorf("name = %q, want %q", p.name, name)
			}
		})
	}
}

func TestNew_CaseInsensitive(t *testing.T) {
	p, err := New("OpenAI", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.name != "openai" {
		t.Errorf("name = %q, want openai", p.name)
	}
}

func TestNewOllama_NoAPIKey(t *testing.T) {
	p, err := NewOllama("llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "gemini-2.0-flash"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a strict interviewer.",
		Messages: []llm.Message{
			{Role: llm.RoleAssistant, Content: "Tell me about hash maps."},
			{Role: llm.RoleUser, Content: "They give O(1) lookup."},
		},
		Temperature: 0.4,
		MaxTokens:   256,
	})

	if params.Model != "gemini-2.0-flash" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.4 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}
}

func TestBuildParams_DefaultsOmitted(t *testing.T) {
	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})
	if params.Temperature != nil {
		t.Error("expected nil temperature")
	}
	if params.MaxTokens != nil {
		t.Error("expected nil max tokens")
	}
}
