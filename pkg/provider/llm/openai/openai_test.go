package openai

import (
	"testing"

	"github.com/MrWong99/intervox/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role    string
		wantErr bool
	}{
		{role: llm.RoleSystem},
		{role: llm.RoleUser},
		{role: llm.RoleAssistant},
		{role: "tool", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			t.Parallel()
			msg, err := convertMessage(llm.Message{Role: tt.role, Content: "hi"})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unknown role")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch tt.role {
			case llm.RoleSystem:
				if msg.OfSystem == nil {
					t.Fatal("expected OfSystem to be set")
				}
			case llm.RoleUser:
				if msg.OfUser == nil {
					t.Fatal("expected OfUser to be set")
				}
			case llm.RoleAssistant:
				if msg.OfAssistant == nil {
					t.Fatal("expected OfAssistant to be set")
				}
			}
		})
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are an interviewer.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Start."}},
		Temperature:  0.7,
		MaxTokens:    300,
		Stop:         []string{"Candidate:"},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages (system + user), got %d", len(params.Messages))
	}
	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", params.Model)
	}
	if len(params.Stop.OfStringArray) != 1 {
		t.Errorf("expected one stop sequence, got %v", params.Stop.OfStringArray)
	}
}

func TestBuildParams_Empty(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error for request without messages")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestNewOpenRouter_Name(t *testing.T) {
	t.Parallel()

	p, err := NewOpenRouter("sk-or-test", "meta-llama/llama-3.1-8b-instruct:free")
	if err != nil {
		t.Fatalf("NewOpenRouter: %v", err)
	}
	if p.name != "openrouter" {
		t.Errorf("name = %q, want openrouter", p.name)
	}
}
