package speech

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "   ", want: nil},
		{name: "short sentences merge", in: "Hi. How are you? Good!", want: []string{"Hi. How are you? Good!"}},
		{name: "decimal is not a boundary", in: "Version 1.5 shipped.", want: []string{"Version 1.5 shipped."}},
		{
			name: "code fence skipped",
			in:   "Implement this:\n```go\nfunc f() {}\n```\nThen explain.",
			want: []string{"Implement this: Then explain."},
		},
		{name: "unterminated fence", in: "Look: ```python\nprint(1)", want: []string{"Look:"}},
		{name: "whitespace collapsed", in: "One.\n  Two\t three.", want: []string{"One. Two three."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SplitSentences(tt.in)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("SplitSentences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitSentences_RespectsMaxChunk(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 150) + strings.Repeat("x", 500) + ". Done."
	for _, c := range SplitSentences(long) {
		if n := utf8.RuneCountInString(c); n > maxChunkRunes {
			t.Errorf("chunk of %d runes exceeds %d", n, maxChunkRunes)
		}
		if c == "" {
			t.Error("empty chunk")
		}
	}
}

func TestSplitSentences_ParagraphsMerge(t *testing.T) {
	t.Parallel()

	got := SplitSentences("First paragraph without stop\n\nSecond one")
	if len(got) != 1 || got[0] != "First paragraph without stop Second one" {
		t.Errorf("got %q", got)
	}
}
