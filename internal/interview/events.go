package interview

import "time"

// EventKind identifies an Event.
type EventKind string

const (
	EventAITurn        EventKind = "ai_turn"
	EventCandidateTurn EventKind = "candidate_turn"
	EventStep          EventKind = "step"
	EventBanner        EventKind = "banner"
	EventTick          EventKind = "tick"
	EventEvaluation    EventKind = "evaluation"
	EventComplete      EventKind = "complete"
)

// Event is a notification about session progress. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind          EventKind     `json:"kind"`
	SessionID     string        `json:"session_id"`
	At            time.Time     `json:"at"`
	Step          Step          `json:"step"`
	Turn          *Turn         `json:"turn,omitempty"`
	Evaluation    *Evaluation   `json:"evaluation,omitempty"`
	Banner        string        `json:"banner,omitempty"`
	Fatal         bool          `json:"fatal,omitempty"`
	TimeRemaining time.Duration `json:"time_remaining,omitempty"`
	Result        *Result       `json:"result,omitempty"`
}

// Emitter receives events in the order the controller produced them. It is
// called with the session lock held and must neither block nor call back
// into the controller.
type Emitter func(Event)
