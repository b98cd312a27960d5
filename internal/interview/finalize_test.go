package interview

import (
	"strings"
	"testing"
	"time"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	cfg := testConfig(TypeDSA)
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	st := State{
		Conversation: []Turn{
			{Role: RoleAI, Text: "hi"},
			{Role: RoleCandidate, Text: words(30)},
			{Role: RoleAI, Text: "ok"},
			{Role: RoleCandidate, Text: words(30)},
		},
		Problems:       []ProblemResult{{Title: "Climb stairs", Pattern: "dp", Score: 40, Attempts: 1}},
		PatternsAsked:  []PatternRecord{{Pattern: "dp", Score: 40}, {Pattern: "graphs", Score: 90, Solved: true}},
		ScoreSum:       150,
		ScoreCount:     2,
		CodingScores:   []int{80},
		ConceptScores:  []int{70},
		Strengths:      []string{"clear"},
		Improvements:   []string{"Edge cases."},
		AnsweredTopics: map[int]bool{1: true, 2: true},
	}

	res := Finalize(st, cfg, start, start.Add(10*time.Minute))

	if res.OverallScore != 75 {
		t.Errorf("OverallScore = %d, want 75", res.OverallScore)
	}
	want := map[string]int{CategoryProblemSolving: 80, CategoryTechnicalKnowledge: 70, CategoryCommunication: 80}
	for k, v := range want {
		if res.Scores[k] != v {
			t.Errorf("Scores[%s] = %d, want %d", k, res.Scores[k], v)
		}
	}
	if res.TimeTaken != 10*time.Minute || res.QuestionsAttempted != 2 || res.QuestionsTotal != 2 {
		t.Errorf("time=%s attempted=%d total=%d", res.TimeTaken, res.QuestionsAttempted, res.QuestionsTotal)
	}
	if got := strings.Join(res.Suggestions, "|"); got != "Practice more dp problems.|Work on: Edge cases." {
		t.Errorf("Suggestions = %q", res.Suggestions)
	}
	if res.Config.DurationMinutes != 30 || res.InterviewType != TypeDSA || res.UserID != "user-1" {
		t.Errorf("config snapshot = %+v %s %s", res.Config, res.InterviewType, res.UserID)
	}
	if got := res.UnsolvedPatterns(); len(got) != 1 || got[0] != "dp" {
		t.Errorf("UnsolvedPatterns = %v", got)
	}
}

func TestFinalize_NoAnswers(t *testing.T) {
	t.Parallel()

	now := time.Now()
	res := Finalize(State{Conversation: []Turn{{Role: RoleAI, Text: "hello"}}}, testConfig(TypeTechnical), now, now)
	if res.OverallScore != 0 {
		t.Errorf("OverallScore = %d, want 0", res.OverallScore)
	}
	for k, v := range res.Scores {
		if v != 0 {
			t.Errorf("Scores[%s] = %d, want 0", k, v)
		}
	}
	if res.Strengths == nil || res.Suggestions == nil || res.Problems == nil {
		t.Error("empty lists should be non-nil")
	}
}

func TestCommunicationScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		overall int
		words   int
		want    int
	}{
		{"terse", 60, 3, 50},
		{"short", 60, 12, 55},
		{"developed", 60, 40, 65},
		{"rambling", 60, 400, 60},
		{"clamped high", 98, 40, 100},
		{"clamped low", 4, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			turns := []Turn{{Role: RoleCandidate, Text: words(tt.words)}}
			if got := communicationScore(tt.overall, turns); got != tt.want {
				t.Errorf("communicationScore = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResult_RecordRoundTrip(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	res := Finalize(State{
		Conversation:   []Turn{{Role: RoleCandidate, Text: "answer", Timestamp: start}},
		Problems:       []ProblemResult{{Title: "p", Solved: true, Score: 90, Attempts: 2}},
		ScoreSum:       90,
		ScoreCount:     1,
		AnsweredTopics: map[int]bool{1: true},
	}, testConfig(TypeDSA), start, start.Add(time.Minute))
	res.Reason = ReasonCompleted

	rec, err := res.Record()
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.ID != "sess-test" || rec.InterviewType != "dsa" || !rec.CreatedAt.Equal(res.CompletedAt) {
		t.Errorf("record = %+v", rec)
	}

	back, err := ResultFromRecord(rec)
	if err != nil {
		t.Fatalf("ResultFromRecord: %v", err)
	}
	if !back.StartedAt.Equal(start) || back.Reason != ReasonCompleted || back.Config.Difficulty != Intermediate {
		t.Errorf("back = %+v", back)
	}
	if len(back.Problems) != 1 || back.Problems[0].Attempts != 2 || back.Conversation[0].Text != "answer" {
		t.Errorf("nested fields lost: %+v %+v", back.Problems, back.Conversation)
	}
}
