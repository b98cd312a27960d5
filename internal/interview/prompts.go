package interview

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/intervox/internal/directive"
	"github.com/MrWong99/intervox/pkg/provider/llm"
)

var typeLabels = map[InterviewType]string{
	TypeDSA:          "data structures and algorithms",
	TypeTechnical:    "technical fundamentals",
	TypeBehavioral:   "behavioral",
	TypeSystemDesign: "system design",
}

var companyStyles = map[CompanyTarget]string{
	CompanyFAANG:   "a large tech company with a high bar: expect optimal solutions and precise complexity analysis",
	CompanyProduct: "a product company: value clean reasoning, trade-offs and user impact",
	CompanyService: "an IT services company: value solid fundamentals and clear communication",
	CompanyStartup: "a startup: value pragmatism, ownership and shipping speed",
}

// systemPrompt describes the interviewer persona for cfg.
func systemPrompt(cfg Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional interviewer running a %s mock interview at %s level for %s.\n",
		typeLabels[cfg.Type], cfg.Difficulty, companyStyles[cfg.Company])
	if len(cfg.TechStack) > 0 {
		fmt.Fprintf(&b, "The candidate works with: %s. Prefer questions that fit this stack.\n", strings.Join(cfg.TechStack, ", "))
	}
	b.WriteString("Speak naturally and concisely. Your words are read aloud, so avoid markdown except for code.\n")
	b.WriteString("Never answer on behalf of the candidate and never prefix your reply with a speaker name.")
	return b.String()
}

// history converts the conversation into chat messages.
func history(turns []Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleAssistant
		if t.Role == RoleCandidate {
			role = llm.RoleUser
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Text})
	}
	return msgs
}

func instruct(cfg Config, turns []Turn, instruction string) llm.CompletionRequest {
	msgs := history(turns)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "[SYSTEM] " + instruction})
	return llm.CompletionRequest{SystemPrompt: systemPrompt(cfg), Messages: msgs}
}

func introPrompt(cfg Config) llm.CompletionRequest {
	return instruct(cfg, nil, fmt.Sprintf(
		"Greet the candidate in at most three sentences and explain that this is a %d-minute %s interview. Do not ask a question yet.",
		int(cfg.Duration.Minutes()), typeLabels[cfg.Type]))
}

func questionPrompt(cfg Config, turns []Turn, number int, covered []string, topicChange bool) llm.CompletionRequest {
	var b strings.Builder
	fmt.Fprintf(&b, "Ask question number %d of %d. Ask exactly one question.\n", number, cfg.QuestionsTotal())
	if cfg.Type.Coding() {
		fmt.Fprintf(&b, "Start your reply with [TYPE:CODING] and a [PATTERN:<slug>] tag using one of: %s.\n",
			strings.Join(directive.KnownPatterns, ", "))
		b.WriteString("State the problem, its input and output, and one example.\n")
	} else {
		b.WriteString("Start your reply with [TYPE:CONCEPT], or [TYPE:CODING] if you ask the candidate to write code.\n")
	}
	if len(covered) > 0 {
		fmt.Fprintf(&b, "Do not repeat these topics: %s.\n", strings.Join(covered, "; "))
	}
	if topicChange {
		b.WriteString("The candidate struggled with the previous topic. Move to a clearly different area and keep it approachable.\n")
	}
	return instruct(cfg, turns, strings.TrimSpace(b.String()))
}

func evaluationPrompt(cfg Config, turns []Turn, q Question, followUps int) llm.CompletionRequest {
	var b strings.Builder
	b.WriteString("Evaluate the candidate's most recent answer")
	if q.Text != "" {
		fmt.Fprintf(&b, " to the question %q", q.Text)
	}
	b.WriteString(".\nReply with JSON only, no prose, matching:\n")
	b.WriteString(`{"score": <0-100>, "strengths": [<short phrases>], "improvements": [<short phrases>], "feedback": "<one or two spoken sentences>", "follow_up": "<a probing follow-up question or empty string>"}`)
	fmt.Fprintf(&b, "\nFollow-ups already asked on this question: %d of %d.", followUps, cfg.Limits.MaxFollowUps)
	if followUps >= cfg.Limits.MaxFollowUps {
		b.WriteString(" Leave follow_up empty.")
	}
	return instruct(cfg, turns, b.String())
}

// staticIntro is used when no provider produced an opening line.
func staticIntro(cfg Config) string {
	return fmt.Sprintf("Hello, and welcome to your %d-minute %s mock interview. I'll ask you a series of questions and give feedback as we go. Let's get started.",
		int(cfg.Duration.Round(time.Minute).Minutes()), typeLabels[cfg.Type])
}

var encouragements = []string{
	"That one was tricky, and that's completely fine. Let's switch to a different topic.",
	"No worries, this happens in real interviews too. Let's try something else.",
	"Let's step back from this one and look at a new problem with fresh eyes.",
}

const (
	timesUpLine = "That's time. Thank you for your answers, let's wrap up here."
	closingLine = "That completes our interview. Thank you, your results are on the way."
)
