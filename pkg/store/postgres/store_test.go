package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/intervox/pkg/store"
	"github.com/MrWong99/intervox/pkg/store/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if INTERVOX_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("INTERVOX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("INTERVOX_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a Store over a freshly dropped schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS weak_area_merges CASCADE",
		"DROP TABLE IF EXISTS weak_areas CASCADE",
		"DROP TABLE IF EXISTS interview_results CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema %q: %v", stmt, err)
		}
	}

	st, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSaveResult_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := store.Record{
		ID:                 "sess-1",
		UserID:             "user-1",
		InterviewType:      "dsa",
		Config:             json.RawMessage(`{"difficulty":"advanced"}`),
		OverallScore:       64,
		Scores:             map[string]int{"problem_solving": 60},
		Conversation:       json.RawMessage(`[{"role":"ai","text":"hi"}]`),
		Strengths:          []string{"clear structure"},
		WeakPoints:         []string{"edge cases"},
		TimeTaken:          12 * time.Minute,
		QuestionsAttempted: 2,
		QuestionsTotal:     2,
		Reason:             "completed",
		CreatedAt:          created,
	}
	if err := st.SaveResult(ctx, rec); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	got, err := st.Result(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if got.OverallScore != 64 || got.Scores["problem_solving"] != 60 {
		t.Errorf("scores = %d %v", got.OverallScore, got.Scores)
	}
	if got.TimeTaken != 12*time.Minute || !got.CreatedAt.Equal(created) {
		t.Errorf("time fields = %s %s", got.TimeTaken, got.CreatedAt)
	}
	if len(got.WeakPoints) != 1 || got.WeakPoints[0] != "edge cases" {
		t.Errorf("WeakPoints = %v", got.WeakPoints)
	}

	list, err := st.Results(ctx, "user-1", 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("Results = %d records, err %v", len(list), err)
	}

	if _, err := st.Result(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Result(nope) err = %v, want ErrNotFound", err)
	}
}

func TestApplyWeakAreas_Idempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seen := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := st.ApplyWeakAreas(ctx, "u", "s1", []store.WeakArea{
		{Topic: "dynamic programming", Count: 2, LastSeen: seen},
	}); err != nil {
		t.Fatalf("ApplyWeakAreas: %v", err)
	}
	err := st.ApplyWeakAreas(ctx, "u", "s1", []store.WeakArea{{Topic: "dynamic programming", Count: 7, LastSeen: seen}})
	if !errors.Is(err, store.ErrAlreadyMerged) {
		t.Fatalf("second apply err = %v, want ErrAlreadyMerged", err)
	}

	areas, err := st.WeakAreas(ctx, "u")
	if err != nil {
		t.Fatalf("WeakAreas: %v", err)
	}
	if len(areas) != 1 || areas[0].Count != 2 || !areas[0].LastSeen.Equal(seen) {
		t.Errorf("WeakAreas = %+v", areas)
	}
}
