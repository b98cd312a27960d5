package directive

import "strings"

// KnownPatterns is the enumerated pattern vocabulary the interviewer prompt
// asks models to use.
var KnownPatterns = []string{
	"sliding_window",
	"two_pointers",
	"dp",
	"graphs",
	"trees",
	"binary_search",
	"backtracking",
	"heap",
	"greedy",
	"linked_list",
	"stack",
	"hashing",
	"intervals",
	"trie",
	"union_find",
	"bit_manipulation",
	"matrix",
	"recursion",
	"sorting",
	"prefix_sum",
}

var (
	known = func() map[string]struct{} {
		m := make(map[string]struct{}, len(KnownPatterns))
		for _, p := range KnownPatterns {
			m[p] = struct{}{}
		}
		return m
	}()

	// aliases maps common model spellings onto the canonical slug.
	aliases = map[string]string{
		"dynamic_programming": "dp",
		"graph":               "graphs",
		"bfs":                 "graphs",
		"dfs":                 "graphs",
		"tree":                "trees",
		"binary_tree":         "trees",
		"two_pointer":         "two_pointers",
		"hash_map":            "hashing",
		"hashmap":             "hashing",
		"hash_table":          "hashing",
		"heaps":               "heap",
		"priority_queue":      "heap",
		"linked_lists":        "linked_list",
		"stacks":              "stack",
		"monotonic_stack":     "stack",
		"interval":            "intervals",
		"tries":               "trie",
		"dsu":                 "union_find",
		"disjoint_set":        "union_find",
		"bit":                 "bit_manipulation",
		"bits":                "bit_manipulation",
		"prefix_sums":         "prefix_sum",
	}
)

// NormalizePattern converts a raw slug such as "Sliding-Window" or
// "dynamic programming" to its lower snake case form and resolves aliases.
func NormalizePattern(raw string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r == ' ' || r == '-' || r == '_':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		default:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	slug := strings.TrimRight(b.String(), "_")
	if canon, ok := aliases[slug]; ok {
		return canon
	}
	return slug
}

// IsKnownPattern reports whether slug is in [KnownPatterns].
func IsKnownPattern(slug string) bool {
	_, ok := known[NormalizePattern(slug)]
	return ok
}
