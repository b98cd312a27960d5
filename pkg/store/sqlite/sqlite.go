// Package sqlite is a [store.Store] backed by a single SQLite file, using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/intervox/pkg/store"
)

var _ store.Store = (*Store)(nil)

const schema = `
PRAGMA busy_timeout = 5000;
CREATE TABLE IF NOT EXISTS interview_results (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL DEFAULT '',
	interview_type      TEXT NOT NULL,
	config              TEXT NOT NULL DEFAULT '{}',
	overall_score       INTEGER NOT NULL,
	scores              TEXT NOT NULL DEFAULT '{}',
	patterns_asked      TEXT NOT NULL DEFAULT '[]',
	conversation        TEXT NOT NULL DEFAULT '[]',
	problems            TEXT NOT NULL DEFAULT '[]',
	strengths           TEXT NOT NULL DEFAULT '[]',
	weak_points         TEXT NOT NULL DEFAULT '[]',
	suggestions         TEXT NOT NULL DEFAULT '[]',
	time_taken_ms       INTEGER NOT NULL DEFAULT 0,
	questions_attempted INTEGER NOT NULL DEFAULT 0,
	questions_total     INTEGER NOT NULL DEFAULT 0,
	reason              TEXT NOT NULL DEFAULT '',
	created_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_user ON interview_results(user_id, created_at);

CREATE TABLE IF NOT EXISTS weak_areas (
	user_id   TEXT NOT NULL,
	topic     TEXT NOT NULL,
	count     INTEGER NOT NULL,
	last_seen INTEGER NOT NULL,
	improving INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, topic)
);

CREATE TABLE IF NOT EXISTS weak_area_merges (
	user_id    TEXT NOT NULL,
	session_id TEXT NOT NULL,
	merged_at  INTEGER NOT NULL,
	PRIMARY KEY (user_id, session_id)
);
`

// Store implements [store.Store] on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create directory: %w", err)
		}
		dsn = path + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// One writer avoids SQLITE_BUSY and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveResult implements [store.ResultStore].
func (s *Store) SaveResult(ctx context.Context, rec store.Record) error {
	scores, strengths, weak, sugg, err := encodeLists(rec)
	if err != nil {
		return fmt.Errorf("sqlite store: %w", err)
	}
	const q = `
	INSERT INTO interview_results (id, user_id, interview_type, config, overall_score, scores,
		patterns_asked, conversation, problems, strengths, weak_points, suggestions,
		time_taken_ms, questions_attempted, questions_total, reason, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id, interview_type = excluded.interview_type,
		config = excluded.config, overall_score = excluded.overall_score,
		scores = excluded.scores, patterns_asked = excluded.patterns_asked,
		conversation = excluded.conversation, problems = excluded.problems,
		strengths = excluded.strengths, weak_points = excluded.weak_points,
		suggestions = excluded.suggestions, time_taken_ms = excluded.time_taken_ms,
		questions_attempted = excluded.questions_attempted,
		questions_total = excluded.questions_total, reason = excluded.reason,
		created_at = excluded.created_at`
	_, err = s.db.ExecContext(ctx, q,
		rec.ID, rec.UserID, rec.InterviewType, rawOr(rec.Config, "{}"), rec.OverallScore, scores,
		rawOr(rec.PatternsAsked, "[]"), rawOr(rec.Conversation, "[]"), rawOr(rec.Problems, "[]"),
		strengths, weak, sugg,
		rec.TimeTaken.Milliseconds(), rec.QuestionsAttempted, rec.QuestionsTotal, rec.Reason,
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite store: save result %s: %w", rec.ID, err)
	}
	return nil
}

const selectResult = `
	SELECT id, user_id, interview_type, config, overall_score, scores, patterns_asked,
		conversation, problems, strengths, weak_points, suggestions, time_taken_ms,
		questions_attempted, questions_total, reason, created_at
	FROM interview_results`

// Result implements [store.ResultStore].
func (s *Store) Result(ctx context.Context, id string) (store.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectResult+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("sqlite store: load result %s: %w", id, err)
	}
	return rec, nil
}

// Results implements [store.ResultStore].
func (s *Store) Results(ctx context.Context, userID string, limit int) ([]store.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectResult+` WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list results: %w", err)
	}
	defer rows.Close()
	var out []store.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: scan result: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// WeakAreas implements [store.WeakAreaIndex].
func (s *Store) WeakAreas(ctx context.Context, userID string) ([]store.WeakArea, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT topic, count, last_seen, improving FROM weak_areas
		WHERE user_id = ? ORDER BY count DESC, topic ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list weak areas: %w", err)
	}
	defer rows.Close()
	var out []store.WeakArea
	for rows.Next() {
		var (
			a        store.WeakArea
			lastSeen int64
		)
		if err := rows.Scan(&a.Topic, &a.Count, &lastSeen, &a.Improving); err != nil {
			return nil, fmt.Errorf("sqlite store: scan weak area: %w", err)
		}
		a.LastSeen = time.UnixMilli(lastSeen).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// ApplyWeakAreas implements [store.WeakAreaIndex].
func (s *Store) ApplyWeakAreas(ctx context.Context, userID, sessionID string, areas []store.WeakArea) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO weak_area_merges (user_id, session_id, merged_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id, session_id) DO NOTHING`,
		userID, sessionID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite store: record merge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrAlreadyMerged
	}
	for _, a := range areas {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO weak_areas (user_id, topic, count, last_seen, improving) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id, topic) DO UPDATE SET
				count = excluded.count, last_seen = excluded.last_seen, improving = excluded.improving`,
			userID, a.Topic, a.Count, a.LastSeen.UnixMilli(), a.Improving)
		if err != nil {
			return fmt.Errorf("sqlite store: upsert weak area %q: %w", a.Topic, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store: commit: %w", err)
	}
	return nil
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close implements [store.Store].
func (s *Store) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (store.Record, error) {
	var (
		rec                                      store.Record
		config, patterns, conversation, problems string
		scores, strengths, weak, sugg            string
		takenMs, createdMs                       int64
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.InterviewType, &config, &rec.OverallScore, &scores,
		&patterns, &conversation, &problems, &strengths, &weak, &sugg, &takenMs,
		&rec.QuestionsAttempted, &rec.QuestionsTotal, &rec.Reason, &createdMs)
	if err != nil {
		return store.Record{}, err
	}
	rec.Config = json.RawMessage(config)
	rec.PatternsAsked = json.RawMessage(patterns)
	rec.Conversation = json.RawMessage(conversation)
	rec.Problems = json.RawMessage(problems)
	rec.TimeTaken = time.Duration(takenMs) * time.Millisecond
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	for _, f := range []struct {
		raw string
		dst any
	}{
		{scores, &rec.Scores},
		{strengths, &rec.Strengths},
		{weak, &rec.WeakPoints},
		{sugg, &rec.Suggestions},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return store.Record{}, fmt.Errorf("decode column: %w", err)
		}
	}
	return rec, nil
}

func encodeLists(rec store.Record) (scores, strengths, weak, sugg string, err error) {
	enc := func(v any) string {
		if err != nil {
			return ""
		}
		var b []byte
		b, err = json.Marshal(v)
		return string(b)
	}
	scores = enc(nonNilMap(rec.Scores))
	strengths = enc(nonNil(rec.Strengths))
	weak = enc(nonNil(rec.WeakPoints))
	sugg = enc(nonNil(rec.Suggestions))
	if err != nil {
		err = fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	return scores, strengths, weak, sugg, err
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
