package interview

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/MrWong99/intervox/pkg/store"
)

// Score categories of a Result.
const (
	CategoryProblemSolving     = "problem_solving"
	CategoryTechnicalKnowledge = "technical_knowledge"
	CategoryCommunication      = "communication"
)

// maxSuggestions caps the suggestion list of a Result.
const maxSuggestions = 5

// ResultConfig is the part of Config recorded with a result.
type ResultConfig struct {
	Difficulty      Difficulty    `json:"difficulty"`
	Company         CompanyTarget `json:"company_target"`
	TechStack       []string      `json:"tech_stack,omitempty"`
	DurationMinutes int           `json:"duration_minutes"`
	Narration       bool          `json:"narration"`
}

// Result is the immutable outcome of a session, built once at Complete.
type Result struct {
	SessionID          string          `json:"session_id"`
	UserID             string          `json:"user_id,omitempty"`
	InterviewType      InterviewType   `json:"interview_type"`
	Config             ResultConfig    `json:"config"`
	OverallScore       int             `json:"overall_score"`
	Scores             map[string]int  `json:"scores"`
	PatternsAsked      []PatternRecord `json:"patterns_asked"`
	Conversation       []Turn          `json:"conversation"`
	Problems           []ProblemResult `json:"problems"`
	Strengths          []string        `json:"strengths"`
	WeakPoints         []string        `json:"weak_points"`
	Suggestions        []string        `json:"suggestions"`
	TimeTaken          time.Duration   `json:"time_taken"`
	QuestionsAttempted int             `json:"questions_attempted"`
	QuestionsTotal     int             `json:"questions_total"`
	Reason             EndReason       `json:"reason"`
	StartedAt          time.Time       `json:"started_at"`
	CompletedAt        time.Time       `json:"completed_at"`
}

// Finalize builds the result of a session from its final state.
func Finalize(st State, cfg Config, startedAt, now time.Time) Result {
	overall := 0
	if st.ScoreCount > 0 {
		overall = int(math.Round(float64(st.ScoreSum) / float64(st.ScoreCount)))
	}
	answers := candidateTurns(st.Conversation)
	if answers == 0 {
		overall = 0
	}

	scores := map[string]int{
		CategoryProblemSolving:     averageOr(st.CodingScores, overall),
		CategoryTechnicalKnowledge: averageOr(st.ConceptScores, overall),
		CategoryCommunication:      communicationScore(overall, st.Conversation),
	}

	taken := now.Sub(startedAt)
	if taken < 0 {
		taken = 0
	}

	return Result{
		SessionID:     cfg.SessionID,
		UserID:        cfg.UserID,
		InterviewType: cfg.Type,
		Config: ResultConfig{
			Difficulty:      cfg.Difficulty,
			Company:         cfg.Company,
			TechStack:       append([]string(nil), cfg.TechStack...),
			DurationMinutes: int(cfg.Duration.Round(time.Minute).Minutes()),
			Narration:       cfg.Narration,
		},
		OverallScore:       overall,
		Scores:             scores,
		PatternsAsked:      nonNil(st.PatternsAsked),
		Conversation:       nonNil(st.Conversation),
		Problems:           nonNil(st.Problems),
		Strengths:          nonNil(st.Strengths),
		WeakPoints:         nonNil(st.Improvements),
		Suggestions:        suggestions(st, overall, cfg.Type),
		TimeTaken:          taken,
		QuestionsAttempted: len(st.AnsweredTopics),
		QuestionsTotal:     cfg.QuestionsTotal(),
		StartedAt:          startedAt,
		CompletedAt:        now,
	}
}

// UnsolvedPatterns lists asked patterns that were never solved.
func (r Result) UnsolvedPatterns() []string {
	var out []string
	for _, p := range r.PatternsAsked {
		if !p.Solved {
			out = append(out, p.Pattern)
		}
	}
	return out
}

// Record converts r for persistence.
func (r Result) Record() (store.Record, error) {
	rec := store.Record{
		ID:                 r.SessionID,
		UserID:             r.UserID,
		InterviewType:      string(r.InterviewType),
		OverallScore:       r.OverallScore,
		Scores:             r.Scores,
		Strengths:          r.Strengths,
		WeakPoints:         r.WeakPoints,
		Suggestions:        r.Suggestions,
		TimeTaken:          r.TimeTaken,
		QuestionsAttempted: r.QuestionsAttempted,
		QuestionsTotal:     r.QuestionsTotal,
		Reason:             string(r.Reason),
		CreatedAt:          r.CompletedAt,
	}
	var err error
	if rec.Config, err = json.Marshal(r.Config); err != nil {
		return store.Record{}, fmt.Errorf("interview: encode config: %w", err)
	}
	if rec.PatternsAsked, err = json.Marshal(r.PatternsAsked); err != nil {
		return store.Record{}, fmt.Errorf("interview: encode patterns: %w", err)
	}
	if rec.Conversation, err = json.Marshal(r.Conversation); err != nil {
		return store.Record{}, fmt.Errorf("interview: encode conversation: %w", err)
	}
	if rec.Problems, err = json.Marshal(r.Problems); err != nil {
		return store.Record{}, fmt.Errorf("interview: encode problems: %w", err)
	}
	return rec, nil
}

// ResultFromRecord is the inverse of Result.Record. StartedAt is derived
// from the completion time and the time taken.
func ResultFromRecord(rec store.Record) (Result, error) {
	r := Result{
		SessionID:          rec.ID,
		UserID:             rec.UserID,
		InterviewType:      InterviewType(rec.InterviewType),
		OverallScore:       rec.OverallScore,
		Scores:             rec.Scores,
		Strengths:          rec.Strengths,
		WeakPoints:         rec.WeakPoints,
		Suggestions:        rec.Suggestions,
		TimeTaken:          rec.TimeTaken,
		QuestionsAttempted: rec.QuestionsAttempted,
		QuestionsTotal:     rec.QuestionsTotal,
		Reason:             EndReason(rec.Reason),
		StartedAt:          rec.CreatedAt.Add(-rec.TimeTaken),
		CompletedAt:        rec.CreatedAt,
	}
	for _, f := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"config", rec.Config, &r.Config},
		{"patterns", rec.PatternsAsked, &r.PatternsAsked},
		{"conversation", rec.Conversation, &r.Conversation},
		{"problems", rec.Problems, &r.Problems},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return Result{}, fmt.Errorf("interview: decode %s: %w", f.name, err)
		}
	}
	return r, nil
}

func candidateTurns(turns []Turn) int {
	n := 0
	for _, t := range turns {
		if t.Role == RoleCandidate {
			n++
		}
	}
	return n
}

func averageOr(scores []int, fallback int) int {
	if len(scores) == 0 {
		return fallback
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return int(math.Round(float64(sum) / float64(len(scores))))
}

// communicationScore adjusts the overall score by how developed the
// candidate's answers were on average.
func communicationScore(overall int, turns []Turn) int {
	words, answers := 0, 0
	for _, t := range turns {
		if t.Role != RoleCandidate {
			continue
		}
		words += len(strings.Fields(t.Text))
		answers++
	}
	if answers == 0 {
		return 0
	}
	adj := 0
	switch avg := words / answers; {
	case avg < 8:
		adj = -10
	case avg < 20:
		adj = -5
	case avg <= 250:
		adj = 5
	}
	return min(max(overall+adj, 0), 100)
}

func suggestions(st State, overall int, t InterviewType) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		key := strings.ToLower(s)
		if seen[key] || len(out) >= maxSuggestions {
			return
		}
		seen[key] = true
		out = append(out, s)
	}
	for _, p := range st.PatternsAsked {
		if !p.Solved {
			add(fmt.Sprintf("Practice more %s problems.", strings.ReplaceAll(p.Pattern, "_", " ")))
		}
	}
	for _, imp := range st.Improvements {
		add("Work on: " + strings.TrimSuffix(imp, ".") + ".")
	}
	if len(out) == 0 && st.ScoreCount > 0 && overall < solvedScore {
		add(fmt.Sprintf("Review the fundamentals commonly covered in %s interviews.", typeLabels[t]))
	}
	return nonNil(out)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return append([]T(nil), s...)
}
