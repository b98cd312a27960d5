// Package postgres is a [store.Store] backed by PostgreSQL through a shared
// [pgxpool.Pool].
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlResults = `
CREATE TABLE IF NOT EXISTS interview_results (
    id                  TEXT         PRIMARY KEY,
    user_id             TEXT         NOT NULL DEFAULT '',
    interview_type      TEXT         NOT NULL,
    config              JSONB        NOT NULL DEFAULT '{}',
    overall_score       INTEGER      NOT NULL,
    scores              JSONB        NOT NULL DEFAULT '{}',
    patterns_asked      JSONB        NOT NULL DEFAULT '[]',
    conversation        JSONB        NOT NULL DEFAULT '[]',
    problems            JSONB        NOT NULL DEFAULT '[]',
    strengths           TEXT[]       NOT NULL DEFAULT '{}',
    weak_points         TEXT[]       NOT NULL DEFAULT '{}',
    suggestions         TEXT[]       NOT NULL DEFAULT '{}',
    time_taken_ns       BIGINT       NOT NULL DEFAULT 0,
    questions_attempted INTEGER      NOT NULL DEFAULT 0,
    questions_total     INTEGER      NOT NULL DEFAULT 0,
    reason              TEXT         NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interview_results_user
    ON interview_results (user_id, created_at DESC);
`

const ddlWeakAreas = `
CREATE TABLE IF NOT EXISTS weak_areas (
    user_id   TEXT         NOT NULL,
    topic     TEXT         NOT NULL,
    count     INTEGER      NOT NULL,
    last_seen TIMESTAMPTZ  NOT NULL,
    improving BOOLEAN      NOT NULL DEFAULT false,
    PRIMARY KEY (user_id, topic)
);

CREATE TABLE IF NOT EXISTS weak_area_merges (
    user_id    TEXT         NOT NULL,
    session_id TEXT         NOT NULL,
    merged_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, session_id)
);
`

// Migrate creates all tables and indexes. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []struct{ name, sql string }{
		{"results", ddlResults},
		{"weak areas", ddlWeakAreas},
	} {
		if _, err := pool.Exec(ctx, ddl.sql); err != nil {
			return fmt.Errorf("migrate %s: %w", ddl.name, err)
		}
	}
	return nil
}
