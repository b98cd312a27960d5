package interview

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/intervox/internal/topicmatch"
	"github.com/MrWong99/intervox/pkg/store"
)

var topics = topicmatch.New()

// WeakTopics lists the weak areas a result contributes: its weak points
// followed by its unsolved patterns, without near-duplicates.
func (r Result) WeakTopics() []string {
	var out []string
	candidates := append(slices.Clone(r.WeakPoints), humanizePatterns(r.UnsolvedPatterns())...)
	for _, c := range candidates {
		c = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(c), "."))
		if c == "" {
			continue
		}
		if _, _, dup := topics.Match(c, out); dup {
			continue
		}
		out = append(out, c)
	}
	return out
}

// MergeWeakAreas folds the weak topics of res into the user's weak-area
// index. Each weak topic increments the count of the closest existing
// entry, or starts a new one, and refreshes its last-seen time. An existing
// entry this session did not flag is marked improving when one of the
// result's strengths covers it. Merging the same session twice is a no-op.
func MergeWeakAreas(ctx context.Context, index store.WeakAreaIndex, userID, sessionID string, res Result) error {
	if userID == "" {
		return nil
	}
	existing, err := index.WeakAreas(ctx, userID)
	if err != nil {
		return fmt.Errorf("interview: load weak areas: %w", err)
	}
	updated := mergeWeakAreas(existing, res)
	err = index.ApplyWeakAreas(ctx, userID, sessionID, updated)
	if errors.Is(err, store.ErrAlreadyMerged) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("interview: apply weak areas: %w", err)
	}
	return nil
}

// mergeWeakAreas returns the entries that change when res is merged into
// existing.
func mergeWeakAreas(existing []store.WeakArea, res Result) []store.WeakArea {
	known := make([]string, len(existing))
	for i, a := range existing {
		known[i] = a.Topic
	}

	changed := make(map[string]store.WeakArea)
	flagged := make(map[string]bool)
	for _, topic := range res.WeakTopics() {
		area := store.WeakArea{Topic: topicmatch.Normalize(topic)}
		if area.Topic == "" {
			continue
		}
		if match, _, ok := topics.Match(topic, known); ok {
			area = existing[slices.Index(known, match)]
		}
		if prev, ok := changed[area.Topic]; ok {
			area = prev
		}
		area.Count++
		area.LastSeen = res.CompletedAt
		area.Improving = false
		changed[area.Topic] = area
		flagged[area.Topic] = true
	}

	for _, a := range existing {
		if flagged[a.Topic] || a.Improving {
			continue
		}
		if topics.CoveredBy(a.Topic, res.Strengths) {
			a.Improving = true
			changed[a.Topic] = a
		}
	}

	out := make([]store.WeakArea, 0, len(changed))
	for _, a := range changed {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b store.WeakArea) int { return cmp.Compare(a.Topic, b.Topic) })
	return out
}

func humanizePatterns(patterns []string) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = strings.ReplaceAll(p, "_", " ")
	}
	return out
}
