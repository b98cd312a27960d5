package speech

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxChunkRunes caps the length of one narrated chunk.
const maxChunkRunes = 220

// SplitSentences breaks text into narration chunks. Sentences end at '.',
// '!' or '?' followed by whitespace, or at a blank line. Short sentences are
// merged up to maxChunkRunes; longer ones are cut at word boundaries.
// Fenced code blocks are not narrated.
func SplitSentences(text string) []string {
	text = stripCodeFences(text)

	var sentences []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.Join(strings.Fields(para), " ")
		for para != "" {
			idx := sentenceBoundary(para)
			if idx < 0 {
				sentences = append(sentences, para)
				break
			}
			sentences = append(sentences, para[:idx+1])
			para = strings.TrimLeft(para[idx+1:], " ")
		}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	for _, s := range sentences {
		for _, piece := range cutLong(s) {
			if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+1+utf8.RuneCountInString(piece) > maxChunkRunes {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(piece)
		}
	}
	flush()
	return chunks
}

// sentenceBoundary returns the index of the first terminator followed by
// whitespace, or -1.
func sentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			if unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}

// cutLong splits s at spaces into pieces of at most maxChunkRunes. A single
// word longer than the limit is hard-cut.
func cutLong(s string) []string {
	if utf8.RuneCountInString(s) <= maxChunkRunes {
		return []string{s}
	}
	var out []string
	var cur []rune
	for _, w := range strings.Fields(s) {
		wr := []rune(w)
		for len(wr) > maxChunkRunes {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = nil
			}
			out = append(out, string(wr[:maxChunkRunes]))
			wr = wr[maxChunkRunes:]
		}
		if len(cur) > 0 && len(cur)+1+len(wr) > maxChunkRunes {
			out = append(out, string(cur))
			cur = nil
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, wr...)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

// stripCodeFences removes ``` fenced blocks. An unterminated fence drops the
// rest of the text.
func stripCodeFences(text string) string {
	var b strings.Builder
	for {
		start := strings.Index(text, "```")
		if start < 0 {
			b.WriteString(text)
			break
		}
		b.WriteString(text[:start])
		rest := text[start+3:]
		end := strings.Index(rest, "```")
		if end < 0 {
			break
		}
		b.WriteString("\n\n")
		text = rest[end+3:]
	}
	return b.String()
}
