// Package directive extracts structured directives from interviewer model
// output. Models are prompted to tag questions with [TYPE:CODING],
// [TYPE:CONCEPT] and [PATTERN:<slug>]; Parse strips those tags plus a few
// leading priming artifacts and returns the clean narration text alongside a
// typed directive list.
package directive

import (
	"regexp"
	"strings"
)

// Directive is one instruction embedded in model output. The concrete types
// are [Coding], [Concept] and [Pattern].
type Directive interface {
	directive()
}

// Coding marks the question as a hands-on coding problem.
type Coding struct{}

// Concept marks the question as a conceptual (spoken) question.
type Concept struct{}

// Pattern names the algorithmic pattern a coding problem exercises. Name is
// a lower snake case slug; it may be outside [KnownPatterns].
type Pattern struct {
	Name string
}

func (Coding) directive()  {}
func (Concept) directive() {}
func (Pattern) directive() {}

// QuestionType classifies a question.
type QuestionType int

const (
	// TypeUnknown means the response carried no TYPE tag.
	TypeUnknown QuestionType = iota
	TypeCoding
	TypeConcept
)

// String returns the lower case type name.
func (q QuestionType) String() string {
	switch q {
	case TypeCoding:
		return "coding"
	case TypeConcept:
		return "concept"
	default:
		return "unknown"
	}
}

// Parsed is the result of [Parse].
type Parsed struct {
	// Text is the response with every recognised tag and priming prefix
	// removed.
	Text string

	// Directives holds at most one type directive followed by every pattern
	// directive in order of appearance.
	Directives []Directive
}

// QuestionType returns the type carried by the response.
func (p Parsed) QuestionType() QuestionType {
	for _, d := range p.Directives {
		switch d.(type) {
		case Coding:
			return TypeCoding
		case Concept:
			return TypeConcept
		}
	}
	return TypeUnknown
}

// IsCoding reports whether the response was tagged [TYPE:CODING].
func (p Parsed) IsCoding() bool { return p.QuestionType() == TypeCoding }

// Patterns returns the pattern slugs in order of appearance.
func (p Parsed) Patterns() []string {
	var out []string
	for _, d := range p.Directives {
		if pat, ok := d.(Pattern); ok {
			out = append(out, pat.Name)
		}
	}
	return out
}

var (
	tagRe = regexp.MustCompile(`(?i)\[\s*(?:type\s*:\s*(coding|concept)|pattern\s*:\s*([a-z0-9][a-z0-9 _\-]*?))\s*\]`)

	// prefixRules are tried in order; the first match wins. Every rule is
	// anchored and consumes at least one character.
	prefixRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:interviewer|ai|assistant|candidate)\s*:`),
		regexp.MustCompile(`(?i)^\[\s*system\s*\]`),
		regexp.MustCompile(`(?i)^system\s*:`),
		regexp.MustCompile(`^#{3,}`),
	}

	spaceRunRe = regexp.MustCompile(`[ \t]{2,}`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// Parse extracts directives from raw and returns the cleaned text.
//
// Recognised tags are matched case-insensitively and removed. When several
// TYPE tags are present the last one wins. Bracketed text that is not part of
// the vocabulary, including [TYPE:...] with an unknown value, is left as is.
func Parse(raw string) Parsed {
	var (
		typ      Directive
		patterns []Directive
	)

	text := raw
	// Each pass removes every tag it finds and shrinks the text; further
	// passes only matter when removing a tag exposes a new one.
	for {
		matches := tagRe.FindAllStringSubmatchIndex(text, -1)
		if len(matches) == 0 {
			break
		}
		for _, m := range matches {
			if m[2] >= 0 {
				if strings.EqualFold(text[m[2]:m[3]], "coding") {
					typ = Coding{}
				} else {
					typ = Concept{}
				}
				continue
			}
			patterns = append(patterns, Pattern{Name: NormalizePattern(text[m[4]:m[5]])})
		}
		text = tagRe.ReplaceAllString(text, " ")
	}

	text = tidy(text)
	text = stripPrefixes(text)

	var dirs []Directive
	if typ != nil {
		dirs = append(dirs, typ)
	}
	dirs = append(dirs, patterns...)
	return Parsed{Text: text, Directives: dirs}
}

// stripPrefixes removes leading priming artifacts until none is left. The
// rules are anchored, so only the start of the text is ever inspected.
func stripPrefixes(text string) string {
	for {
		loc := leadingPrefix(text)
		if loc == nil {
			return text
		}
		text = strings.TrimLeft(text[loc[1]:], " \t\r\n")
	}
}

func leadingPrefix(text string) []int {
	for _, re := range prefixRules {
		if loc := re.FindStringIndex(text); loc != nil {
			return loc
		}
	}
	return nil
}

// tidy collapses whitespace left behind by tag removal.
func tidy(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRunRe.ReplaceAllString(l, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
