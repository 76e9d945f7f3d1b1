package toolloop

import "github.com/go-go-golems/tessa/pkg/conversation"

// State is a step of the per-turn state machine.
type State int

const (
	StateDeciding State = iota
	StateActing
	StateSummarizing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateDeciding:
		return "deciding"
	case StateActing:
		return "acting"
	case StateSummarizing:
		return "summarizing"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Transition records one edge taken during a run.
type Transition struct {
	From State `json:"from" yaml:"from"`
	To   State `json:"to" yaml:"to"`
}

// NextState returns the state following s. latest is the most recent
// assistant message and only matters when leaving StateDeciding.
func NextState(s State, latest *conversation.AssistantMessage) State {
	switch s {
	case StateDeciding:
		if latest.HasPendingToolCalls() {
			return StateActing
		}
		return StateSummarizing
	case StateActing:
		return StateSummarizing
	}
	return StateDone
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
