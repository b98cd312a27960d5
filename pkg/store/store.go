// Package store defines persistence for finished interview results and the
// per-user weak-area index.
//
// Three backends are provided: [memory] for tests and the practice CLI,
// [sqlite] for single-node deployments and [postgres] for shared ones. All
// implementations are safe for concurrent use.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no result exists for an id.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyMerged is returned by ApplyWeakAreas when the session's weak
	// areas were merged before. Callers treat it as success.
	ErrAlreadyMerged = errors.New("store: session already merged")
)

// Record is a persisted interview result. Nested collections are stored as
// opaque JSON so that backends need no knowledge of their shape.
type Record struct {
	ID                 string
	UserID             string
	InterviewType      string
	Config             json.RawMessage
	OverallScore       int
	Scores             map[string]int
	PatternsAsked      json.RawMessage
	Conversation       json.RawMessage
	Problems           json.RawMessage
	Strengths          []string
	WeakPoints         []string
	Suggestions        []string
	TimeTaken          time.Duration
	QuestionsAttempted int
	QuestionsTotal     int
	Reason             string
	CreatedAt          time.Time
}

// WeakArea is one entry of a user's topic-frequency index.
type WeakArea struct {
	Topic     string    `json:"topic"`
	Count     int       `json:"count"`
	LastSeen  time.Time `json:"last_seen"`
	Improving bool      `json:"improving"`
}

// ResultStore persists finished results.
type ResultStore interface {
	// SaveResult inserts rec, replacing any record with the same ID.
	SaveResult(ctx context.Context, rec Record) error

	// Result returns the record with id or ErrNotFound.
	Result(ctx context.Context, id string) (Record, error)

	// Results lists a user's records, newest first. limit <= 0 means all.
	Results(ctx context.Context, userID string, limit int) ([]Record, error)
}

// WeakAreaIndex is the long-lived per-user weak-area index.
type WeakAreaIndex interface {
	// WeakAreas returns the user's entries ordered by count, descending.
	WeakAreas(ctx context.Context, userID string) ([]WeakArea, error)

	// ApplyWeakAreas upserts areas by topic and records sessionID as merged,
	// atomically. It returns ErrAlreadyMerged without changes when
	// sessionID was applied before.
	ApplyWeakAreas(ctx context.Context, userID, sessionID string, areas []WeakArea) error
}

// Store is the full persistence surface of a backend.
type Store interface {
	ResultStore
	WeakAreaIndex

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
