package orchestration

import "errors"

// Failure taxonomy for the coordination core. Collaborator and transport
// errors are wrapped with one of these sentinels before they reach the turn
// log, so callers can classify with errors.Is.
var (
	// ErrTransportFailure marks an input or output audio stream that closed
	// or errored. Fatal to the active turn, never silently continued.
	ErrTransportFailure = errors.New("transport failure")

	// ErrRecognitionFailure marks a speech-to-text collaborator error. The
	// turn reverts to idle and the user must re-speak.
	ErrRecognitionFailure = errors.New("recognition failure")

	// ErrGenerationFailure marks a model collaborator error mid-response.
	// The response phase aborts; already-forwarded chunks may finish playing.
	ErrGenerationFailure = errors.New("generation failure")

	// ErrSynthesisFailure marks a per-chunk synthesis error. The chunk is
	// skipped and playback continues with subsequent chunks.
	ErrSynthesisFailure = errors.New("synthesis failure")

	// ErrProtocolViolation marks a broken cross-component invariant:
	// out-of-order ordinal delivery, a double-active-turn attempt, or a stop
	// confirmation without a matching cancellation. Always fatal to the
	// current turn, always logged, never silently corrected.
	ErrProtocolViolation = errors.New("protocol violation")
)
