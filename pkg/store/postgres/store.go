package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/intervox/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Store implements [store.Store]. All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// SaveResult implements [store.ResultStore].
func (s *Store) SaveResult(ctx context.Context, rec store.Record) error {
	scores, err := json.Marshal(nonNilMap(rec.Scores))
	if err != nil {
		return fmt.Errorf("postgres store: encode scores: %w", err)
	}
	const q = `
		INSERT INTO interview_results (id, user_id, interview_type, config, overall_score, scores,
			patterns_asked, conversation, problems, strengths, weak_points, suggestions,
			time_taken_ns, questions_attempted, questions_total, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id, interview_type = EXCLUDED.interview_type,
			config = EXCLUDED.config, overall_score = EXCLUDED.overall_score,
			scores = EXCLUDED.scores, patterns_asked = EXCLUDED.patterns_asked,
			conversation = EXCLUDED.conversation, problems = EXCLUDED.problems,
			strengths = EXCLUDED.strengths, weak_points = EXCLUDED.weak_points,
			suggestions = EXCLUDED.suggestions, time_taken_ns = EXCLUDED.time_taken_ns,
			questions_attempted = EXCLUDED.questions_attempted,
			questions_total = EXCLUDED.questions_total, reason = EXCLUDED.reason,
			created_at = EXCLUDED.created_at`
	_, err = s.pool.Exec(ctx, q,
		rec.ID, rec.UserID, rec.InterviewType, rawOr(rec.Config, "{}"), rec.OverallScore, string(scores),
		rawOr(rec.PatternsAsked, "[]"), rawOr(rec.Conversation, "[]"), rawOr(rec.Problems, "[]"),
		nonNil(rec.Strengths), nonNil(rec.WeakPoints), nonNil(rec.Suggestions),
		int64(rec.TimeTaken), rec.QuestionsAttempted, rec.QuestionsTotal, rec.Reason, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: save result %s: %w", rec.ID, err)
	}
	return nil
}

const selectResult = `
	SELECT id, user_id, interview_type, config::text, overall_score, scores::text,
		patterns_asked::text, conversation::text, problems::text, strengths, weak_points,
		suggestions, time_taken_ns, questions_attempted, questions_total, reason, created_at
	FROM interview_results`

// Result implements [store.ResultStore].
func (s *Store) Result(ctx context.Context, id string) (store.Record, error) {
	rows, err := s.pool.Query(ctx, selectResult+` WHERE id = $1`, id)
	if err != nil {
		return store.Record{}, fmt.Errorf("postgres store: load result %s: %w", id, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("postgres store: load result %s: %w", id, err)
	}
	return rec, nil
}

// Results implements [store.ResultStore].
func (s *Store) Results(ctx context.Context, userID string, limit int) ([]store.Record, error) {
	q := selectResult + ` WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list results: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan results: %w", err)
	}
	return recs, nil
}

// WeakAreas implements [store.WeakAreaIndex].
func (s *Store) WeakAreas(ctx context.Context, userID string) ([]store.WeakArea, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT topic, count, last_seen, improving FROM weak_areas
		WHERE user_id = $1 ORDER BY count DESC, topic ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list weak areas: %w", err)
	}
	areas, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.WeakArea, error) {
		var a store.WeakArea
		err := row.Scan(&a.Topic, &a.Count, &a.LastSeen, &a.Improving)
		a.LastSeen = a.LastSeen.UTC()
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan weak areas: %w", err)
	}
	return areas, nil
}

// ApplyWeakAreas implements [store.WeakAreaIndex].
func (s *Store) ApplyWeakAreas(ctx context.Context, userID, sessionID string, areas []store.WeakArea) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO weak_area_merges (user_id, session_id) VALUES ($1, $2)
			ON CONFLICT (user_id, session_id) DO NOTHING`, userID, sessionID)
		if err != nil {
			return fmt.Errorf("postgres store: record merge: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrAlreadyMerged
		}

		batch := &pgx.Batch{}
		for _, a := range areas {
			batch.Queue(`
				INSERT INTO weak_areas (user_id, topic, count, last_seen, improving)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (user_id, topic) DO UPDATE SET
					count = EXCLUDED.count, last_seen = EXCLUDED.last_seen,
					improving = EXCLUDED.improving`,
				userID, a.Topic, a.Count, a.LastSeen, a.Improving)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres store: upsert weak areas: %w", err)
		}
		return nil
	})
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.CollectableRow) (store.Record, error) {
	var (
		rec                              store.Record
		config, scores                   string
		patterns, conversation, problems string
		takenNs                          int64
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.InterviewType, &config, &rec.OverallScore, &scores,
		&patterns, &conversation, &problems, &rec.Strengths, &rec.WeakPoints, &rec.Suggestions,
		&takenNs, &rec.QuestionsAttempted, &rec.QuestionsTotal, &rec.Reason, &rec.CreatedAt)
	if err != nil {
		return store.Record{}, err
	}
	if err := json.Unmarshal([]byte(scores), &rec.Scores); err != nil {
		return store.Record{}, fmt.Errorf("decode scores: %w", err)
	}
	rec.Config = json.RawMessage(config)
	rec.PatternsAsked = json.RawMessage(patterns)
	rec.Conversation = json.RawMessage(conversation)
	rec.Problems = json.RawMessage(problems)
	rec.TimeTaken = time.Duration(takenNs)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func rawOr(raw json.RawMessage, def string) string {
	if len(raw) == 0 {
		return def
	}
	return string(raw)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
