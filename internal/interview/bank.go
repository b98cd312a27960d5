package interview

import (
	"math/rand/v2"
	"slices"
)

// BankQuestion is a canned question used when no provider can generate one.
type BankQuestion struct {
	Text    string
	Coding  bool
	Pattern string
}

// DefaultBank is the built-in fallback question bank.
var DefaultBank = map[InterviewType][]BankQuestion{
	TypeDSA: {
		{Text: "Given an array of integers and a target, return the indices of the two numbers that add up to the target. Walk me through your approach before coding.", Coding: true, Pattern: "hashing"},
		{Text: "Find the length of the longest substring without repeating characters.", Coding: true, Pattern: "sliding_window"},
		{Text: "Given a sorted array that was rotated at an unknown pivot, find a target value in logarithmic time.", Coding: true, Pattern: "binary_search"},
		{Text: "Merge all overlapping intervals in a list of intervals.", Coding: true, Pattern: "intervals"},
		{Text: "Count the number of islands in a grid of land and water cells.", Coding: true, Pattern: "graphs"},
		{Text: "Return the k most frequent elements of an array.", Coding: true, Pattern: "heap"},
		{Text: "Count the distinct ways to climb a staircase of n steps taking one or two steps at a time.", Coding: true, Pattern: "dp"},
		{Text: "Check whether a binary tree is a valid binary search tree.", Coding: true, Pattern: "trees"},
	},
	TypeTechnical: {
		{Text: "What happens, step by step, when you type a URL into a browser and press enter?"},
		{Text: "Explain the difference between a process and a thread, and when you would prefer one over the other."},
		{Text: "How do database indexes speed up reads, and what do they cost?"},
		{Text: "What is the difference between optimistic and pessimistic locking?"},
		{Text: "How would you explain eventual consistency to a new team member?"},
		{Text: "Describe how garbage collection works in a language you use daily."},
		{Text: "What are the trade-offs between REST and gRPC for service-to-service calls?"},
	},
	TypeBehavioral: {
		{Text: "Tell me about a time you disagreed with a teammate. How did you resolve it?"},
		{Text: "Describe a project that failed. What did you learn?"},
		{Text: "Tell me about a time you had to deliver under a very tight deadline."},
		{Text: "Give an example of feedback you received that changed how you work."},
		{Text: "Describe a situation where you had to make a decision without all the information."},
		{Text: "Tell me about something you built that you are proud of."},
	},
	TypeSystemDesign: {
		{Text: "Design a URL shortener. Start with the requirements you would clarify."},
		{Text: "Design a rate limiter for a public API."},
		{Text: "How would you design the news feed of a social network?"},
		{Text: "Design a chat service that supports one-to-one and group messages."},
		{Text: "Design a distributed cache. How do you handle node failures?"},
		{Text: "Design a notification system that sends email, SMS and push messages."},
	},
}

// questionBank hands out fallback questions for one session without
// repeating any until every question of the type has been used.
type questionBank struct {
	questions map[InterviewType][]BankQuestion
	used      map[InterviewType]map[int]bool
	intn      func(int) int
}

func newQuestionBank(questions map[InterviewType][]BankQuestion) *questionBank {
	return &questionBank{
		questions: questions,
		used:      make(map[InterviewType]map[int]bool),
		intn:      rand.IntN,
	}
}

// next returns an unused question of type t. When all have been used the
// used list resets. It reports false only when the bank has no questions
// for t.
func (b *questionBank) next(t InterviewType) (BankQuestion, bool) {
	qs := b.questions[t]
	if len(qs) == 0 {
		return BankQuestion{}, false
	}
	used := b.used[t]
	if used == nil || len(used) >= len(qs) {
		used = make(map[int]bool, len(qs))
		b.used[t] = used
	}
	free := make([]int, 0, len(qs)-len(used))
	for i := range qs {
		if !used[i] {
			free = append(free, i)
		}
	}
	pick := free[b.intn(len(free))]
	used[pick] = true
	return qs[pick], true
}

// cloneBank copies a bank so callers cannot mutate it mid-session.
func cloneBank(src map[InterviewType][]BankQuestion) map[InterviewType][]BankQuestion {
	out := make(map[InterviewType][]BankQuestion, len(src))
	for k, v := range src {
		out[k] = slices.Clone(v)
	}
	return out
}
