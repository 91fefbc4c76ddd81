package orchestration

import "time"

// TurnState is the lifecycle state of the active turn.
type TurnState int

const (
	// StateIdle means no turn is active and the core is waiting for speech.
	StateIdle TurnState = iota
	// StateListening means the user is speaking and the turn is accumulating
	// transcript.
	StateListening
	// StateFinalizing means silence was detected and the core is waiting for
	// transcript stability before committing the turn.
	StateFinalizing
	// StateResponding means response generation and playback are in flight.
	StateResponding
	// StateInterrupting means cancellation was issued and the core is
	// waiting for generation and playback to confirm they stopped.
	StateInterrupting
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateFinalizing:
		return "finalizing"
	case StateResponding:
		return "responding"
	case StateInterrupting:
		return "interrupting"
	}
	return "unknown"
}

// Turn is one user-utterance-to-assistant-response cycle. At most one turn
// is active at a time; the state machine owns the value and passes read-only
// snapshots to the pipelines it spawns.
type Turn struct {
	// ID is a monotonic counter, unique within the orchestrator.
	ID        uint64
	State     TurnState
	StartedAt time.Time
	// Utterance is the merged transcript snapshot the turn was committed
	// with; empty until the turn reaches the responding state.
	Utterance string
}

// ResponseChunk is a speakable unit of generated text. Chunks are produced
// by the response pipeline and must be played strictly in ordinal order.
type ResponseChunk struct {
	Ordinal int
	Text    string
	IsLast  bool
}
