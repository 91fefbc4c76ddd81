package orchestration

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voicewire/duplex-core/core/events"
	"github.com/voicewire/duplex-core/core/llms"
)

type eventRecorder struct {
	ch chan events.Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan events.Event, 256)}
}

func (r *eventRecorder) emit(event events.Event) {
	select {
	case r.ch <- event:
	default:
	}
}

func (r *eventRecorder) waitFor(t *testing.T, kind events.Kind, timeout time.Duration) events.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case event := <-r.ch:
			if event.Kind() == kind {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func (r *eventRecorder) waitForTransition(t *testing.T, to string, timeout time.Duration) events.TurnTransition {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("timed out waiting for transition to %s", to)
		}
		transition := r.waitFor(t, events.KindTurnTransition, remaining).(events.TurnTransition)
		if transition.To == to {
			return transition
		}
	}
}

type responder func(m *turnStateMachine, turn Turn, token *cancellationToken)

func newTestMachine(t *testing.T, config Config, respond responder) (*turnStateMachine, *eventRecorder) {
	t.Helper()
	recorder := newEventRecorder()
	var machine *turnStateMachine
	machine = newTurnStateMachine(config, newTranscriptAggregator(), recorder.emit, defaultHistoryLimit,
		func(turn Turn, history []llms.Turn, token *cancellationToken) {
			go respond(machine, turn, token)
		})
	machine.start()
	t.Cleanup(func() {
		machine.end()
		machine.waitUntilEnded()
	})
	return machine, recorder
}

// instantResponder completes the response phase immediately with the given
// content.
func instantResponder(content string, turns *turnLog) responder {
	return func(m *turnStateMachine, turn Turn, token *cancellationToken) {
		turns.record(turn)
		m.enqueue(evResponseDone{turnID: turn.ID, response: llms.Response{Content: content}})
		m.enqueue(evPlaybackDone{turnID: turn.ID, transcript: content, completed: true})
	}
}

// obedientResponder runs until cancelled and confirms the stop promptly, the
// way a healthy pipeline and playback pair would.
func obedientResponder(turns *turnLog) responder {
	return func(m *turnStateMachine, turn Turn, token *cancellationToken) {
		turns.record(turn)
		select {
		case <-token.Done():
			m.enqueue(evResponseDone{turnID: turn.ID})
			m.enqueue(evPlaybackDone{turnID: turn.ID, transcript: "", completed: false})
		case <-time.After(2 * time.Second):
		}
	}
}

type turnLog struct {
	mu    sync.Mutex
	turns []Turn
}

func (l *turnLog) record(turn Turn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, turn)
}

func (l *turnLog) snapshot() []Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Turn(nil), l.turns...)
}

func testMachineConfig() Config {
	return Config{
		SilenceWindow:        60 * time.Millisecond,
		StabilityDebounce:    30 * time.Millisecond,
		GraceWindow:          50 * time.Millisecond,
		CancellationDeadline: 150 * time.Millisecond,
	}
}

func TestMachineCommitsStableUtteranceAndResponds(t *testing.T) {
	turns := &turnLog{}
	machine, recorder := newTestMachine(t, testMachineConfig(), instantResponder("On it.", turns))

	machine.enqueue(evSpeechStarted{at: time.Now(), confidence: 0.9})
	machine.enqueue(evTranscriptChanged{fragment: partialFragment("I want", 0, time.Second, 1)})
	machine.enqueue(evTranscriptChanged{fragment: partialFragment("I want to", 0, 2*time.Second, 2)})
	machine.enqueue(evTranscriptChanged{fragment: finalFragment("I want to book a flight", 0, 3*time.Second, 3)})
	machine.enqueue(evSpeechEnded{at: time.Now()})

	stable := recorder.waitFor(t, events.KindUserUtteranceStable, time.Second).(events.UserUtteranceStable)
	if stable.Text != "I want to book a flight" {
		t.Fatalf("expected the merged final utterance, got %q", stable.Text)
	}

	recorder.waitFor(t, events.KindTurnCompleted, time.Second)

	got := turns.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected exactly one response phase, got %d", len(got))
	}
	if got[0].Utterance != "I want to book a flight" {
		t.Fatalf("expected committed utterance, got %q", got[0].Utterance)
	}

	history := machine.History()
	if len(history) != 2 {
		t.Fatalf("expected user and assistant history entries, got %d", len(history))
	}
	if history[0].Role != llms.TurnRoleUser || history[0].Content != "I want to book a flight" {
		t.Fatalf("unexpected user history entry: %+v", history[0])
	}
	if history[1].Role != llms.TurnRoleAssistant || history[1].Content != "On it." {
		t.Fatalf("unexpected assistant history entry: %+v", history[1])
	}
}

func TestMachineResumedSpeechWithinGraceWindowContinuesSameTurn(t *testing.T) {
	config := testMachineConfig()
	config.GraceWindow = 100 * time.Millisecond
	config.StabilityDebounce = 500 * time.Millisecond

	turns := &turnLog{}
	machine, recorder := newTestMachine(t, config, instantResponder("Booked.", turns))

	machine.enqueue(evSpeechStarted{at: time.Now()})
	machine.enqueue(evTranscriptChanged{fragment: partialFragment("I want to", 0, time.Second, 1)})
	machine.enqueue(evSpeechEnded{at: time.Now()})

	recorder.waitForTransition(t, "finalizing", time.Second)

	// The user resumes well inside the grace window.
	machine.enqueue(evSpeechStarted{at: time.Now()})
	resumed := recorder.waitForTransition(t, "listening", time.Second)
	if resumed.From != "finalizing" {
		t.Fatalf("expected finalizing to flow back into listening, got from %q", resumed.From)
	}
	if resumed.TurnID != 1 {
		t.Fatalf("expected the same turn to continue, got turn %d", resumed.TurnID)
	}
	if len(turns.snapshot()) != 0 {
		t.Fatalf("expected no premature response phase")
	}

	machine.enqueue(evTranscriptChanged{fragment: finalFragment("I want to book a flight", 0, 3*time.Second, 2)})
	machine.enqueue(evSpeechEnded{at: time.Now()})

	recorder.waitFor(t, events.KindTurnCompleted, time.Second)

	got := turns.snapshot()
	if len(got) != 1 || got[0].ID != 1 || got[0].Utterance != "I want to book a flight" {
		t.Fatalf("expected the continued turn to commit once with the full utterance, got %+v", got)
	}
}

func TestMachineSpeechBeyondGraceWindowCommitsThenInterrupts(t *testing.T) {
	config := testMachineConfig()
	config.GraceWindow = 20 * time.Millisecond
	config.StabilityDebounce = 500 * time.Millisecond

	turns := &turnLog{}
	machine, recorder := newTestMachine(t, config, obedientResponder(turns))

	machine.enqueue(evSpeechStarted{at: time.Now()})
	machine.enqueue(evTranscriptChanged{fragment: partialFragment("book the first option", 0, time.Second, 1)})
	machine.enqueue(evSpeechEnded{at: time.Now()})

	recorder.waitForTransition(t, "finalizing", time.Second)
	time.Sleep(60 * time.Millisecond)

	machine.enqueue(evSpeechStarted{at: time.Now()})

	interrupted := recorder.waitFor(t, events.KindTurnInterrupted, time.Second).(events.TurnInterrupted)
	if interrupted.TurnID != 1 {
		t.Fatalf("expected the committed turn to be interrupted, got turn %d", interrupted.TurnID)
	}

	// Once the response phase confirms its stop, the barge-in speech seeds
	// the next turn directly.
	next := recorder.waitForTransition(t, "listening", time.Second)
	if next.From != "interrupting" {
		t.Fatalf("expected interrupting to flow into listening, got from %q", next.From)
	}
	if next.TurnID != 2 {
		t.Fatalf("expected a fresh turn after the barge-in, got turn %d", next.TurnID)
	}

	got := turns.snapshot()
	if len(got) != 1 || got[0].Utterance != "book the first option" {
		t.Fatalf("expected the accumulated utterance to commit before the interrupt, got %+v", got)
	}
}

func TestMachineNeverRunsTwoResponsePhasesAtOnce(t *testing.T) {
	var active atomic.Int32
	var overlapped atomic.Bool
	turns := &turnLog{}

	respond := func(m *turnStateMachine, turn Turn, token *cancellationToken) {
		if active.Add(1) > 1 {
			overlapped.Store(true)
		}
		turns.record(turn)
		select {
		case <-token.Done():
			active.Add(-1)
			m.enqueue(evResponseDone{turnID: turn.ID})
			m.enqueue(evPlaybackDone{turnID: turn.ID})
		case <-time.After(50 * time.Millisecond):
			active.Add(-1)
			m.enqueue(evResponseDone{turnID: turn.ID, response: llms.Response{Content: "done"}})
			m.enqueue(evPlaybackDone{turnID: turn.ID, transcript: "done", completed: true})
		}
	}

	machine, recorder := newTestMachine(t, testMachineConfig(), respond)

	machine.enqueue(evPrompt{text: "first"})
	recorder.waitForTransition(t, "responding", time.Second)
	machine.enqueue(evPrompt{text: "second"})

	completed := recorder.waitFor(t, events.KindTurnCompleted, 2*time.Second).(events.TurnCompleted)
	if completed.TurnID != 2 {
		t.Fatalf("expected the queued prompt to run as turn 2, got %d", completed.TurnID)
	}
	if overlapped.Load() {
		t.Fatalf("two response phases were active at once")
	}

	got := turns.snapshot()
	if len(got) != 2 || got[0].Utterance != "first" || got[1].Utterance != "second" {
		t.Fatalf("expected both prompts to run in order, got %+v", got)
	}
}

func TestMachineForcesCompletionWhenStopConfirmationIsMissed(t *testing.T) {
	config := testMachineConfig()
	config.CancellationDeadline = 80 * time.Millisecond

	turns := &turnLog{}
	// A broken downstream that never confirms its stop.
	respond := func(m *turnStateMachine, turn Turn, token *cancellationToken) {
		turns.record(turn)
	}

	machine, recorder := newTestMachine(t, config, respond)

	machine.enqueue(evPrompt{text: "tell me a story"})
	recorder.waitForTransition(t, "responding", time.Second)
	machine.enqueue(evSpeechStarted{at: time.Now()})
	recorder.waitForTransition(t, "interrupting", time.Second)

	failed := recorder.waitFor(t, events.KindTurnFailed, time.Second).(events.TurnFailed)
	if !errors.Is(failed.Err, ErrProtocolViolation) {
		t.Fatalf("expected a protocol violation after the missed deadline, got %v", failed.Err)
	}

	// The barge-in speech still seeds the next turn.
	next := recorder.waitForTransition(t, "listening", time.Second)
	if next.TurnID != 2 {
		t.Fatalf("expected a fresh turn after forced completion, got %d", next.TurnID)
	}
}

func TestMachineIgnoresStaleAndUnknownCompletionSignals(t *testing.T) {
	turns := &turnLog{}
	machine, recorder := newTestMachine(t, testMachineConfig(), instantResponder("first answer", turns))

	machine.enqueue(evPrompt{text: "first"})
	recorder.waitFor(t, events.KindTurnCompleted, time.Second)

	// A late confirmation for the finished turn and a signal for a turn
	// that never existed must both leave the machine untouched.
	machine.enqueue(evPlaybackDone{turnID: 1, transcript: "first answer", completed: true})
	machine.enqueue(evResponseDone{turnID: 99})

	machine.enqueue(evPrompt{text: "second"})
	completed := recorder.waitFor(t, events.KindTurnCompleted, time.Second).(events.TurnCompleted)
	if completed.TurnID != 2 {
		t.Fatalf("expected the second prompt to run normally, got turn %d", completed.TurnID)
	}
	if len(machine.History()) != 4 {
		t.Fatalf("expected two full exchanges in history, got %d entries", len(machine.History()))
	}
}

func TestMachineFinalizesBargeInWhoseSpeechEndedDuringStop(t *testing.T) {
	config := testMachineConfig()
	config.StabilityDebounce = 500 * time.Millisecond

	turns := &turnLog{}
	respond := func(m *turnStateMachine, turn Turn, token *cancellationToken) {
		turns.record(turn)
		select {
		case <-token.Done():
			// The stop confirmation lags behind the end of the barge-in
			// speech.
			time.Sleep(40 * time.Millisecond)
			m.enqueue(evResponseDone{turnID: turn.ID})
			m.enqueue(evPlaybackDone{turnID: turn.ID})
		case <-time.After(300 * time.Millisecond):
			m.enqueue(evResponseDone{turnID: turn.ID, response: llms.Response{Content: "ok"}})
			m.enqueue(evPlaybackDone{turnID: turn.ID, transcript: "ok", completed: true})
		}
	}

	machine, recorder := newTestMachine(t, config, respond)

	machine.enqueue(evPrompt{text: "tell me a story"})
	recorder.waitForTransition(t, "responding", time.Second)

	// The whole barge-in utterance fits inside the stop window.
	machine.enqueue(evSpeechStarted{at: time.Now()})
	machine.enqueue(evSpeechEnded{at: time.Now()})
	recorder.waitForTransition(t, "interrupting", time.Second)

	// With speech already over, the seeded turn must go straight to
	// finalizing instead of waiting for a speech-ended that will never come.
	seeded := recorder.waitForTransition(t, "finalizing", time.Second)
	if seeded.TurnID != 2 {
		t.Fatalf("expected the barge-in turn to finalize, got turn %d", seeded.TurnID)
	}

	machine.enqueue(evTranscriptChanged{fragment: finalFragment("stop please", 0, time.Second, 1)})

	completed := recorder.waitFor(t, events.KindTurnCompleted, 2*time.Second).(events.TurnCompleted)
	if completed.TurnID != 2 {
		t.Fatalf("expected the barge-in turn to be answered, got turn %d", completed.TurnID)
	}
	got := turns.snapshot()
	if len(got) != 2 || got[1].Utterance != "stop please" {
		t.Fatalf("expected a response for the barge-in utterance, got %+v", got)
	}
}

func TestMachineAbandonsSilentTurnWithoutTranscript(t *testing.T) {
	turns := &turnLog{}
	machine, recorder := newTestMachine(t, testMachineConfig(), instantResponder("never", turns))

	machine.enqueue(evSpeechStarted{at: time.Now()})
	machine.enqueue(evSpeechEnded{at: time.Now()})

	recorder.waitForTransition(t, "finalizing", time.Second)
	idle := recorder.waitForTransition(t, "idle", time.Second)
	if idle.From != "finalizing" {
		t.Fatalf("expected the silent turn to abandon from finalizing, got from %q", idle.From)
	}
	if len(turns.snapshot()) != 0 {
		t.Fatalf("expected no response phase for a silent turn")
	}
}

func TestMachineInterruptionStopsWithinCancellationDeadline(t *testing.T) {
	turns := &turnLog{}
	machine, recorder := newTestMachine(t, testMachineConfig(), obedientResponder(turns))

	machine.enqueue(evPrompt{text: "long story please"})
	recorder.waitForTransition(t, "responding", time.Second)

	interruptedAt := time.Now()
	machine.enqueue(evSpeechStarted{at: time.Now()})
	next := recorder.waitForTransition(t, "listening", time.Second)
	if elapsed := time.Since(interruptedAt); elapsed > testMachineConfig().CancellationDeadline {
		t.Fatalf("expected audible output to stop within the deadline, took %v", elapsed)
	}
	if next.From != "interrupting" {
		t.Fatalf("expected the barge-in to open the next turn, got from %q", next.From)
	}
}
