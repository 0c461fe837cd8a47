package agent

// State is a position of the agent loop state machine.
type State int

const (
	// StateAwaitingModel waits for the next assistant turn.
	StateAwaitingModel State = iota
	// StateAwaitingTools dispatches the pending tool calls of the latest turn.
	StateAwaitingTools
	// StateDone is terminal; the latest assistant text is the answer.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "AWAITING_MODEL"
	case StateAwaitingTools:
		return "AWAITING_TOOLS"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}
