package events

const (
	// KindTurnTransition identifies a turn state machine transition.
	KindTurnTransition Kind = "turn_state.transition"
	// KindTurnCompleted identifies successful completion of the current turn.
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnFailed identifies failure of the current turn.
	KindTurnFailed Kind = "turn_state.failed"
	// KindTurnInterrupted identifies barge-in cancellation of the current turn.
	KindTurnInterrupted Kind = "turn_state.interrupted"
)

// TurnTransition records a single state machine transition for the turn-event log.
type TurnTransition struct {
	Base
	TurnID uint64
	From   string
	To     string
}

// NewTurnTransition creates a turn transition event.
func NewTurnTransition(turnID uint64, from, to string) TurnTransition {
	return TurnTransition{Base: NewBase(KindTurnTransition), TurnID: turnID, From: from, To: to}
}

// TurnCompleted marks successful completion of a turn.
type TurnCompleted struct {
	Base
	TurnID uint64
}

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(turnID uint64) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted), TurnID: turnID}
}

// TurnFailed marks failure of a turn.
type TurnFailed struct {
	Base
	TurnID uint64
	Err    error
}

// NewTurnFailed creates a turn failed event.
func NewTurnFailed(turnID uint64, err error) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed), TurnID: turnID, Err: err}
}

// TurnInterrupted marks barge-in cancellation of a turn's response phase.
type TurnInterrupted struct {
	Base
	TurnID uint64
}

// NewTurnInterrupted creates a turn interrupted event.
func NewTurnInterrupted(turnID uint64) TurnInterrupted {
	return TurnInterrupted{Base: NewBase(KindTurnInterrupted), TurnID: turnID}
}
