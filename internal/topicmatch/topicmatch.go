// Package topicmatch compares short free-text topic labels such as
// "time complexity analysis" or "Edge-case handling" using Jaro-Winkler
// similarity.
//
// Labels are normalized first: lower-cased, punctuation folded to spaces and
// filler words removed. Two scores are offered:
//
//   - [Matcher.Similarity] is symmetric and decides whether two labels name
//     the same topic. It takes the best of a full-string comparison, a
//     space-stripped comparison and a token-coverage comparison in both
//     directions.
//   - [Matcher.Covers] is asymmetric and decides whether a longer phrase
//     (for example an evaluation strength) speaks to every token of a topic.
package topicmatch

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const defaultThreshold = 0.88

var fillers = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "in": true,
	"on": true, "for": true, "to": true, "with": true, "your": true, "more": true,
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithThreshold sets the minimum score for a match. Default: 0.88.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) { m.threshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	threshold float64
}

// New returns a Matcher configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{threshold: defaultThreshold}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Threshold returns the configured match threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Normalize returns the canonical form of a label: lower case, single
// spaces, no punctuation and no filler words.
func Normalize(s string) string {
	return strings.Join(tokens(s), " ")
}

// Similarity scores how likely a and b name the same topic, in [0, 1].
func (m *Matcher) Similarity(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	fa, fb := strings.Join(ta, " "), strings.Join(tb, " ")
	if fa == fb {
		return 1
	}
	score := matchr.JaroWinkler(fa, fb, false)
	if len(ta) > 1 || len(tb) > 1 {
		if s := matchr.JaroWinkler(strings.Join(ta, ""), strings.Join(tb, ""), false); s > score {
			score = s
		}
	}
	if s := min(coverage(ta, tb), coverage(tb, ta)); s > score {
		score = s
	}
	return score
}

// Covers scores how completely text addresses every token of topic.
func (m *Matcher) Covers(topic, text string) float64 {
	tt, tx := tokens(topic), tokens(text)
	if len(tt) == 0 || len(tx) == 0 {
		return 0
	}
	return coverage(tt, tx)
}

// Match returns the candidate most similar to topic when its score reaches
// the threshold.
func (m *Matcher) Match(topic string, candidates []string) (best string, score float64, matched bool) {
	for _, c := range candidates {
		if s := m.Similarity(topic, c); s >= m.threshold && s > score {
			best, score = c, s
		}
	}
	return best, score, best != ""
}

// CoveredBy reports whether any of texts covers topic.
func (m *Matcher) CoveredBy(topic string, texts []string) bool {
	for _, t := range texts {
		if m.Covers(topic, t) >= m.threshold {
			return true
		}
	}
	return false
}

// coverage is the mean, over the tokens of a, of the best Jaro-Winkler score
// against any token of b.
func coverage(a, b []string) float64 {
	var sum float64
	for _, x := range a {
		best := 0.0
		for _, y := range b {
			if s := matchr.JaroWinkler(x, y, false); s > best {
				best = s
			}
		}
		sum += best
	}
	return sum / float64(len(a))
}

func tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !fillers[f] {
			out = append(out, f)
		}
	}
	return out
}
