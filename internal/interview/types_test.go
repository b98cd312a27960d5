package interview

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := testConfig(TypeDSA)
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing session", func(c *Config) { c.SessionID = "" }, "session id"},
		{"unknown type", func(c *Config) { c.Type = "trivia" }, `interview type "trivia"`},
		{"unknown difficulty", func(c *Config) { c.Difficulty = "expert" }, `difficulty "expert"`},
		{"unknown company", func(c *Config) { c.Company = "bank" }, `company target "bank"`},
		{"zero duration", func(c *Config) { c.Duration = 0 }, "duration"},
		{"bad limits", func(c *Config) { c.Limits.StuckThreshold = 0 }, "invalid limits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(TypeDSA)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	t.Parallel()

	err := Config{}.Validate()
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) < 5 {
		t.Errorf("Validate(empty) = %v, want every problem reported", err)
	}
}

func TestConfig_QuestionsTotal(t *testing.T) {
	t.Parallel()

	if got := testConfig(TypeDSA).QuestionsTotal(); got != 2 {
		t.Errorf("dsa QuestionsTotal = %d, want 2", got)
	}
	if got := testConfig(TypeBehavioral).QuestionsTotal(); got != 6 {
		t.Errorf("behavioral QuestionsTotal = %d, want 6", got)
	}
}

func TestDefaultLimits(t *testing.T) {
	t.Parallel()

	want := Limits{MaxFollowUps: 2, StuckThreshold: 3, MaxProblems: 2, MaxQuestions: 6, NextQuestionDelay: 1500 * time.Millisecond}
	if got := DefaultLimits(); got != want {
		t.Errorf("DefaultLimits() = %+v, want %+v", got, want)
	}
}

func TestStep_Text(t *testing.T) {
	t.Parallel()

	for s, want := range map[Step]string{
		StepLoading:  "loading",
		StepIntro:    "intro",
		StepQuestion: "question",
		StepCoding:   "coding",
		StepFeedback: "feedback",
		StepComplete: "complete",
		Step(99):     "Step(99)",
	} {
		b, _ := s.MarshalText()
		if string(b) != want {
			t.Errorf("Step(%d) text = %q, want %q", int(s), b, want)
		}
	}
}

func TestState_CloneIsDeep(t *testing.T) {
	t.Parallel()

	s := State{
		Conversation:   []Turn{{Role: RoleAI, Text: "q"}},
		Current:        &Question{Text: "q", Patterns: []string{"dp"}},
		AnsweredTopics: map[int]bool{1: true},
	}
	c := s.clone()
	c.Conversation[0].Text = "changed"
	c.Current.Patterns[0] = "graphs"
	c.AnsweredTopics[2] = true

	if s.Conversation[0].Text != "q" || s.Current.Patterns[0] != "dp" || len(s.AnsweredTopics) != 1 {
		t.Errorf("clone shares memory with the original: %+v", s)
	}
}

func TestAddUnique_CaseInsensitive(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	list := addUnique(nil, seen, []string{"Clear code", " clear code ", "", "Edge cases"})
	list = addUnique(list, seen, []string{"EDGE CASES", "Testing"})
	want := []string{"Clear code", "Edge cases", "Testing"}
	if strings.Join(list, "|") != strings.Join(want, "|") {
		t.Errorf("addUnique = %q, want %q", list, want)
	}
}
