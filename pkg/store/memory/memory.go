// Package memory is an in-process [store.Store].
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/intervox/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps everything in maps guarded by one mutex.
type Store struct {
	mu      sync.Mutex
	results map[string]store.Record
	areas   map[string]map[string]store.WeakArea
	merged  map[string]bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		results: make(map[string]store.Record),
		areas:   make(map[string]map[string]store.WeakArea),
		merged:  make(map[string]bool),
	}
}

// SaveResult implements [store.ResultStore].
func (s *Store) SaveResult(_ context.Context, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[rec.ID] = cloneRecord(rec)
	return nil
}

// Result implements [store.ResultStore].
func (s *Store) Result(_ context.Context, id string) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.results[id]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Results implements [store.ResultStore].
func (s *Store) Results(_ context.Context, userID string, limit int) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Record
	for _, rec := range s.results {
		if rec.UserID == userID {
			out = append(out, cloneRecord(rec))
		}
	}
	slices.SortFunc(out, func(a, b store.Record) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WeakAreas implements [store.WeakAreaIndex].
func (s *Store) WeakAreas(_ context.Context, userID string) ([]store.WeakArea, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.areas[userID]))
	sortAreas(out)
	return out, nil
}

// ApplyWeakAreas implements [store.WeakAreaIndex].
func (s *Store) ApplyWeakAreas(_ context.Context, userID, sessionID string, areas []store.WeakArea) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "\x00" + sessionID
	if s.merged[key] {
		return store.ErrAlreadyMerged
	}
	s.merged[key] = true
	idx := s.areas[userID]
	if idx == nil {
		idx = make(map[string]store.WeakArea)
		s.areas[userID] = idx
	}
	for _, a := range areas {
		idx[a.Topic] = a
	}
	return nil
}

// Ping implements [store.Store].
func (s *Store) Ping(context.Context) error { return nil }

// Close implements [store.Store].
func (s *Store) Close() error { return nil }

func sortAreas(areas []store.WeakArea) {
	slices.SortFunc(areas, func(a, b store.WeakArea) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Topic, b.Topic)
	})
}

func cloneRecord(r store.Record) store.Record {
	r.Config = slices.Clone(r.Config)
	r.PatternsAsked = slices.Clone(r.PatternsAsked)
	r.Conversation = slices.Clone(r.Conversation)
	r.Problems = slices.Clone(r.Problems)
	r.Scores = maps.Clone(r.Scores)
	r.Strengths = slices.Clone(r.Strengths)
	r.WeakPoints = slices.Clone(r.WeakPoints)
	r.Suggestions = slices.Clone(r.Suggestions)
	return r
}
