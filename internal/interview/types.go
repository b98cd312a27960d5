package interview

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/intervox/internal/directive"
)

// InterviewType selects the interview format.
type InterviewType string

const (
	TypeDSA          InterviewType = "dsa"
	TypeTechnical    InterviewType = "technical"
	TypeBehavioral   InterviewType = "behavioral"
	TypeSystemDesign InterviewType = "system_design"
)

// InterviewTypes lists every supported type.
var InterviewTypes = []InterviewType{TypeDSA, TypeTechnical, TypeBehavioral, TypeSystemDesign}

// Coding reports whether sessions of this type are counted in problems
// rather than questions.
func (t InterviewType) Coding() bool { return t == TypeDSA }

// Difficulty is the target seniority of the questions.
type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

// Difficulties lists every supported difficulty.
var Difficulties = []Difficulty{Beginner, Intermediate, Advanced}

// CompanyTarget tunes the interviewer persona to a kind of employer.
type CompanyTarget string

const (
	CompanyFAANG   CompanyTarget = "faang"
	CompanyProduct CompanyTarget = "product"
	CompanyService CompanyTarget = "service"
	CompanyStartup CompanyTarget = "startup"
)

// CompanyTargets lists every supported company target.
var CompanyTargets = []CompanyTarget{CompanyFAANG, CompanyProduct, CompanyService, CompanyStartup}

// Limits are the session thresholds.
type Limits struct {
	// MaxFollowUps is how many follow-ups one question may receive.
	MaxFollowUps int

	// StuckThreshold is the number of consecutive weak answers that forces
	// a topic change.
	StuckThreshold int

	// MaxProblems ends a coding session.
	MaxProblems int

	// MaxQuestions ends a conversational session.
	MaxQuestions int

	// NextQuestionDelay is the pause between feedback and the next question.
	NextQuestionDelay time.Duration
}

// DefaultLimits returns the standard thresholds.
func DefaultLimits() Limits {
	return Limits{
		MaxFollowUps:      2,
		StuckThreshold:    3,
		MaxProblems:       2,
		MaxQuestions:      6,
		NextQuestionDelay: 1500 * time.Millisecond,
	}
}

// stuckScore is the score below which an answer counts as stuck.
const stuckScore = 50

// solvedScore is the score from which a coding problem counts as solved.
const solvedScore = 70

// Config describes one session.
type Config struct {
	SessionID  string
	UserID     string
	Type       InterviewType
	Difficulty Difficulty
	Company    CompanyTarget
	TechStack  []string
	Duration   time.Duration

	// Narration enables spoken questions. When false the controller never
	// waits for speech.
	Narration bool

	Limits Limits
}

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() error {
	var errs []error
	if c.SessionID == "" {
		errs = append(errs, errors.New("session id is required"))
	}
	if !slices.Contains(InterviewTypes, c.Type) {
		errs = append(errs, fmt.Errorf("unknown interview type %q", c.Type))
	}
	if !slices.Contains(Difficulties, c.Difficulty) {
		errs = append(errs, fmt.Errorf("unknown difficulty %q", c.Difficulty))
	}
	if !slices.Contains(CompanyTargets, c.Company) {
		errs = append(errs, fmt.Errorf("unknown company target %q", c.Company))
	}
	if c.Duration <= 0 {
		errs = append(errs, fmt.Errorf("duration must be positive, got %s", c.Duration))
	}
	l := c.Limits
	if l.MaxFollowUps < 0 || l.StuckThreshold < 1 || l.MaxProblems < 1 || l.MaxQuestions < 1 || l.NextQuestionDelay < 0 {
		errs = append(errs, fmt.Errorf("invalid limits %+v", l))
	}
	return errors.Join(errs...)
}

// QuestionsTotal is the exit threshold of the session.
func (c Config) QuestionsTotal() int {
	if c.Type.Coding() {
		return c.Limits.MaxProblems
	}
	return c.Limits.MaxQuestions
}

// Step is the state of the session.
type Step int

const (
	StepLoading Step = iota
	StepIntro
	StepQuestion
	StepCoding
	StepFeedback
	StepComplete
)

func (s Step) String() string {
	switch s {
	case StepLoading:
		return "loading"
	case StepIntro:
		return "intro"
	case StepQuestion:
		return "question"
	case StepCoding:
		return "coding"
	case StepFeedback:
		return "feedback"
	case StepComplete:
		return "complete"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Step) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Role is the speaker of a turn.
type Role string

const (
	RoleAI        Role = "ai"
	RoleCandidate Role = "candidate"
)

// Source says how a candidate answer was captured.
type Source string

const (
	SourceText  Source = "text"
	SourceVoice Source = "voice"
)

// Turn is one entry of the conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Source    Source    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Evaluation is the graded feedback for one answer.
type Evaluation struct {
	Score        int      `json:"score"`
	Strengths    []string `json:"strengths,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
	Feedback     string   `json:"feedback"`
	FollowUp     string   `json:"follow_up,omitempty"`
}

// ProblemResult records one coding problem.
type ProblemResult struct {
	Title    string `json:"title"`
	Pattern  string `json:"pattern,omitempty"`
	Score    int    `json:"score"`
	Solved   bool   `json:"solved"`
	Attempts int    `json:"attempts"`
}

// PatternRecord is the best outcome for one algorithmic pattern.
type PatternRecord struct {
	Pattern string `json:"pattern"`
	Score   int    `json:"score"`
	Solved  bool   `json:"solved"`
}

// Question is the top-level question currently being discussed.
type Question struct {
	Text     string                 `json:"text"`
	Type     directive.QuestionType `json:"-"`
	Patterns []string               `json:"patterns,omitempty"`
	Fallback bool                   `json:"fallback"`
}

// State is a snapshot of a session.
type State struct {
	SessionID      string          `json:"session_id"`
	Step           Step            `json:"step"`
	FollowUpCount  int             `json:"follow_up_count"`
	StuckCount     int             `json:"stuck_count"`
	QuestionNumber int             `json:"question_number"`
	TimeRemaining  time.Duration   `json:"time_remaining"`
	Conversation   []Turn          `json:"conversation"`
	Problems       []ProblemResult `json:"problems"`
	PatternsAsked  []PatternRecord `json:"patterns_asked"`
	Current        *Question       `json:"current,omitempty"`

	// Running aggregates.
	ScoreSum       int          `json:"-"`
	ScoreCount     int          `json:"-"`
	CodingScores   []int        `json:"-"`
	ConceptScores  []int        `json:"-"`
	Strengths      []string     `json:"-"`
	Improvements   []string     `json:"-"`
	AnsweredTopics map[int]bool `json:"-"`
	seenStrength   map[string]bool
	seenImprove    map[string]bool
}

// clone returns a deep copy safe to hand out.
func (s *State) clone() State {
	out := *s
	out.Conversation = slices.Clone(s.Conversation)
	out.Problems = slices.Clone(s.Problems)
	out.PatternsAsked = slices.Clone(s.PatternsAsked)
	out.CodingScores = slices.Clone(s.CodingScores)
	out.ConceptScores = slices.Clone(s.ConceptScores)
	out.Strengths = slices.Clone(s.Strengths)
	out.Improvements = slices.Clone(s.Improvements)
	out.AnsweredTopics = make(map[int]bool, len(s.AnsweredTopics))
	for k, v := range s.AnsweredTopics {
		out.AnsweredTopics[k] = v
	}
	out.seenStrength, out.seenImprove = nil, nil
	if s.Current != nil {
		q := *s.Current
		q.Patterns = slices.Clone(s.Current.Patterns)
		out.Current = &q
	}
	return out
}

// addUnique appends items to list, skipping case-insensitive duplicates.
func addUnique(list []string, seen map[string]bool, items []string) []string {
	for _, it := range items {
		it = strings.TrimSpace(it)
		key := strings.ToLower(it)
		if it == "" || seen[key] {
			continue
		}
		seen[key] = true
		list = append(list, it)
	}
	return list
}
