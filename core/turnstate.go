package orchestration

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicewire/duplex-core/core/events"
	"github.com/voicewire/duplex-core/core/llms"
	"github.com/voicewire/duplex-core/core/speechtotext"
)

const (
	machineQueueCapacity = 16
	// stabilityPollInterval is how often a finalizing turn re-checks
	// transcript stability between fragment arrivals.
	stabilityPollInterval = 20 * time.Millisecond
)

type machineEvent interface{}

type (
	evSpeechStarted struct {
		at         time.Time
		confidence float64
	}
	evSpeechEnded struct {
		at         time.Time
		confidence float64
	}
	// evTranscriptChanged carries a recognition fragment into the loop so
	// aggregator mutation is ordered with every other turn decision.
	evTranscriptChanged struct{ fragment speechtotext.Fragment }
	evRecognitionError  struct{ err error }
	evTransportClosed   struct{ err error }
	evPrompt            struct{ text string }
	evCancelRequest     struct{}

	// evResponseDone is the generation pipeline's completion signal.
	evResponseDone struct {
		turnID   uint64
		response llms.Response
		err      error
	}
	// evPlaybackDone is the playback controller's completion (or stop
	// confirmation) signal.
	evPlaybackDone struct {
		turnID     uint64
		transcript string
		completed  bool
		err        error
	}
)

type queuedMachineEvent struct {
	event    machineEvent
	queuedAt time.Time
}

// turnStateMachine is the center of the coordination core. It consumes voice
// activity and transcript signals, decides end-of-turn, start-of-response,
// and interruption, and commands the response pipeline and playback
// controller. All decisions happen on a single goroutine draining a bounded
// queue, so every transition is one atomic decision point and no state ever
// has two pending downstream commands.
type turnStateMachine struct {
	config     Config
	aggregator *transcriptAggregator
	emit       eventEmitter

	// startResponse spawns the response pipeline and playback controller
	// for a committed turn. Completion comes back as evResponseDone and
	// evPlaybackDone.
	startResponse func(turn Turn, history []llms.Turn, token *cancellationToken)

	queue   chan queuedMachineEvent
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once
	started   atomic.Bool

	stateValue atomic.Int32

	// Everything below is owned by the loop goroutine.
	state    TurnState
	turn     *Turn
	turnSeq  uint64
	speaking bool

	token             *cancellationToken
	pipelineDone      bool
	playbackDone      bool
	response          llms.Response
	responseErr       error
	spokenTranscript  string
	playbackCompleted bool
	interruptedAt     time.Time

	pendingSpeech *evSpeechStarted
	pendingPrompt *evPrompt

	graceDeadline   time.Time
	finalizingSince time.Time

	historyMu    sync.Mutex
	history      []llms.Turn
	historyLimit int
}

func newTurnStateMachine(
	config Config,
	aggregator *transcriptAggregator,
	emit eventEmitter,
	historyLimit int,
	startResponse func(turn Turn, history []llms.Turn, token *cancellationToken),
) *turnStateMachine {
	return &turnStateMachine{
		config:        config,
		aggregator:    aggregator,
		emit:          emit,
		startResponse: startResponse,
		historyLimit:  historyLimit,
		queue:         make(chan queuedMachineEvent, machineQueueCapacity),
		closeCh:       make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (m *turnStateMachine) start() {
	m.startOnce.Do(func() {
		m.started.Store(true)
		go m.run()
	})
}

func (m *turnStateMachine) end() {
	m.endOnce.Do(func() {
		close(m.closeCh)
	})
}

func (m *turnStateMachine) waitUntilEnded() {
	if m.started.Load() {
		<-m.done
	}
}

func (m *turnStateMachine) isClosed() bool {
	select {
	case <-m.closeCh:
		return true
	default:
		return false
	}
}

func (m *turnStateMachine) enqueue(event machineEvent) bool {
	if m.isClosed() {
		return false
	}
	item := queuedMachineEvent{event: event, queuedAt: time.Now()}
	select {
	case <-m.closeCh:
		return false
	case m.queue <- item:
		return true
	}
}

// State returns a point-in-time snapshot of the machine state.
func (m *turnStateMachine) State() TurnState {
	return TurnState(m.stateValue.Load())
}

// History returns a copy of the finalized conversation history.
func (m *turnStateMachine) History() []llms.Turn {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	history := make([]llms.Turn, len(m.history))
	copy(history, m.history)
	return history
}

func (m *turnStateMachine) run() {
	defer close(m.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	rearm := func(d time.Duration) {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d)
	}

	rearmForState := func() {
		switch m.state {
		case StateFinalizing:
			rearm(stabilityPollInterval)
		case StateInterrupting:
			remaining := m.config.CancellationDeadline - time.Since(m.interruptedAt)
			if remaining < 0 {
				remaining = 0
			}
			rearm(remaining)
		default:
			rearm(time.Hour)
		}
	}

	for {
		select {
		case <-m.closeCh:
			if m.token != nil {
				m.token.Cancel()
			}
			return
		case <-timer.C:
			m.handleTick(time.Now())
			rearmForState()
		case queued := <-m.queue:
			m.handleEvent(queued.event)
			rearmForState()
		}
	}
}

func (m *turnStateMachine) handleTick(now time.Time) {
	switch m.state {
	case StateFinalizing:
		// Pending events outrank the stability decision; a queued
		// speech-started must win over the finalizing timeout.
		for {
			select {
			case queued := <-m.queue:
				m.handleEvent(queued.event)
				if m.state != StateFinalizing {
					return
				}
				continue
			default:
			}
			break
		}
		if m.aggregator.IsStable(m.speaking, m.config.StabilityDebounce) {
			m.commitTurn()
		} else if !m.speaking && m.aggregator.CurrentText() == "" &&
			now.Sub(m.finalizingSince) >= m.config.StabilityDebounce {
			// No transcript ever arrived for this turn.
			m.abandonTurn()
		}
	case StateInterrupting:
		if now.Sub(m.interruptedAt) >= m.config.CancellationDeadline {
			err := fmt.Errorf("stop confirmation exceeded cancellation deadline: %w", ErrProtocolViolation)
			logger.Error("forcing interruption completion", "turn_id", m.turn.ID, "error", err)
			m.responseErr = errors.Join(m.responseErr, err)
			m.pipelineDone = true
			m.playbackDone = true
			m.finishResponse()
		}
	}
}

func (m *turnStateMachine) handleEvent(event machineEvent) {
	switch ev := event.(type) {
	case evSpeechStarted:
		m.speaking = true
		m.emit(events.NewUserSpeechStarted(ev.confidence))
		m.handleSpeechStarted(ev)

	case evSpeechEnded:
		m.speaking = false
		m.emit(events.NewUserSpeechEnded(ev.confidence))
		if m.state == StateListening {
			m.enterFinalizing()
		}

	case evTranscriptChanged:
		// Stability is evaluated on the finalizing poll; nothing else to
		// decide here.
		m.aggregator.Add(ev.fragment)

	case evRecognitionError:
		logger.Error("speech recognition failed", "error", ev.err)
		if m.state == StateListening || m.state == StateFinalizing {
			m.failTurn(fmt.Errorf("%w: %w", ErrRecognitionFailure, ev.err))
		}

	case evTransportClosed:
		err := fmt.Errorf("%w: %w", ErrTransportFailure, ev.err)
		logger.Error("transport closed", "error", err)
		switch m.state {
		case StateListening, StateFinalizing:
			m.failTurn(err)
		case StateResponding:
			m.interrupt(nil)
			m.responseErr = errors.Join(m.responseErr, err)
		}

	case evPrompt:
		m.handlePrompt(ev)

	case evCancelRequest:
		switch m.state {
		case StateListening, StateFinalizing:
			m.abandonTurn()
		case StateResponding:
			m.interrupt(nil)
		}

	case evResponseDone:
		if !m.matchesActiveResponse(ev.turnID) {
			return
		}
		m.pipelineDone = true
		m.response = ev.response
		m.responseErr = errors.Join(m.responseErr, ev.err)
		if m.pipelineDone && m.playbackDone {
			m.finishResponse()
		}

	case evPlaybackDone:
		if !m.matchesActiveResponse(ev.turnID) {
			return
		}
		m.playbackDone = true
		m.spokenTranscript = ev.transcript
		m.playbackCompleted = ev.completed
		m.responseErr = errors.Join(m.responseErr, ev.err)
		if m.pipelineDone && m.playbackDone {
			m.finishResponse()
		}
	}
}

func (m *turnStateMachine) handleSpeechStarted(ev evSpeechStarted) {
	switch m.state {
	case StateIdle:
		m.beginTurn(ev.at)

	case StateListening:
		// Continued speech within the same turn.

	case StateFinalizing:
		if ev.at.Before(m.graceDeadline) {
			// Patience over premature commitment: the user resumed within
			// the grace window, so this is the same turn continuing.
			m.setState(StateListening)
			return
		}
		// Past the grace window the accumulated utterance commits, and the
		// new speech interrupts the response it just started.
		m.commitTurn()
		if m.state == StateResponding {
			m.interrupt(&ev)
		} else {
			m.beginTurn(ev.at)
		}

	case StateResponding:
		m.interrupt(&ev)

	case StateInterrupting:
		if m.pendingSpeech == nil && m.pendingPrompt == nil {
			m.pendingSpeech = &ev
		}
	}
}

func (m *turnStateMachine) handlePrompt(ev evPrompt) {
	switch m.state {
	case StateIdle:
		m.startPromptTurn(ev.text)
	case StateListening, StateFinalizing:
		m.abandonTurn()
		m.startPromptTurn(ev.text)
	case StateResponding:
		m.pendingPrompt = &ev
		m.interrupt(nil)
	case StateInterrupting:
		m.pendingPrompt = &ev
	}
}

// enterFinalizing opens the grace window and starts polling for stability.
func (m *turnStateMachine) enterFinalizing() {
	m.graceDeadline = time.Now().Add(m.config.GraceWindow)
	m.finalizingSince = time.Now()
	m.setState(StateFinalizing)
}

// beginTurn creates a fresh turn and starts listening. The transcript
// aggregator is reset so the new utterance starts clean.
func (m *turnStateMachine) beginTurn(startedAt time.Time) {
	if m.token != nil {
		logger.Error("refusing to start a second active turn",
			"state", m.state.String(), "error", ErrProtocolViolation)
		return
	}

	m.turnSeq++
	m.turn = &Turn{ID: m.turnSeq, State: StateListening, StartedAt: startedAt}
	m.aggregator.Reset()
	m.setState(StateListening)
}

// commitTurn snapshots the utterance into the turn and starts the response
// phase. An empty utterance abandons the turn instead.
func (m *turnStateMachine) commitTurn() {
	text := m.aggregator.CurrentText()
	if text == "" {
		m.abandonTurn()
		return
	}

	m.turn.Utterance = text
	m.emit(events.NewUserUtteranceStable(text))
	m.startResponsePhase()
}

func (m *turnStateMachine) startPromptTurn(text string) {
	m.turnSeq++
	m.turn = &Turn{ID: m.turnSeq, State: StateListening, StartedAt: time.Now(), Utterance: text}
	m.aggregator.Reset()
	m.startResponsePhase()
}

func (m *turnStateMachine) startResponsePhase() {
	m.token = newCancellationToken(m.turn.ID)
	m.pipelineDone = false
	m.playbackDone = false
	m.response = llms.Response{}
	m.responseErr = nil
	m.spokenTranscript = ""
	m.playbackCompleted = false
	m.setState(StateResponding)

	m.startResponse(*m.turn, m.History(), m.token)
}

// interrupt cancels the in-flight response phase. seed, when non-nil, is the
// barge-in speech event that will open the next turn once both downstream
// stages confirm they stopped.
func (m *turnStateMachine) interrupt(seed *evSpeechStarted) {
	m.token.Cancel()
	m.interruptedAt = time.Now()
	m.pendingSpeech = seed
	m.emit(events.NewTurnInterrupted(m.turn.ID))
	m.setState(StateInterrupting)
}

// matchesActiveResponse filters downstream completion signals: signals for a
// past turn are no-ops, signals for a turn that never existed are broken
// invariants.
func (m *turnStateMachine) matchesActiveResponse(turnID uint64) bool {
	if turnID > m.turnSeq {
		logger.Error("completion signal for unknown turn",
			"turn_id", turnID, "error", ErrProtocolViolation)
		return false
	}
	if m.turn == nil || m.turn.ID != turnID {
		return false
	}
	return m.state == StateResponding || m.state == StateInterrupting
}

// finishResponse runs once both the pipeline and playback reported done, in
// either the responding or the interrupting state.
func (m *turnStateMachine) finishResponse() {
	turn := m.turn
	interrupted := m.state == StateInterrupting
	pendingSpeech := m.pendingSpeech
	pendingPrompt := m.pendingPrompt
	m.pendingSpeech = nil
	m.pendingPrompt = nil

	if interrupted {
		latency := time.Since(m.interruptedAt)
		if latency > m.config.CancellationDeadline {
			logger.Warn("interruption stop confirmation was late",
				"turn_id", turn.ID, "latency", latency)
		}
	}

	m.appendHistory(turn, interrupted)

	err := m.responseErr
	m.token = nil
	m.turn = nil
	m.aggregator.Reset()

	switch {
	case err != nil:
		m.emit(events.NewTurnFailed(turn.ID, err))
		logger.Error("turn failed", "turn_id", turn.ID, "error", err)
	case interrupted:
	default:
		m.emit(events.NewTurnCompleted(turn.ID))
	}

	// A barge-in or queued prompt seeds the next turn immediately;
	// otherwise the machine goes back to waiting for speech.
	switch {
	case pendingSpeech != nil:
		m.beginTurn(pendingSpeech.at)
		if !m.speaking && m.state == StateListening {
			// The barge-in speech already ended while the stop confirmation
			// was pending.
			m.enterFinalizing()
		}
	case pendingPrompt != nil:
		m.startPromptTurn(pendingPrompt.text)
	default:
		m.setState(StateIdle)
	}
}

// appendHistory records the finished exchange, keeping at most historyLimit
// most recent turns.
func (m *turnStateMachine) appendHistory(turn *Turn, interrupted bool) {
	if turn.Utterance == "" {
		return
	}

	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	m.history = append(m.history, llms.Turn{Role: llms.TurnRoleUser, Content: turn.Utterance})

	assistantContent := m.response.Content
	if interrupted || !m.playbackCompleted {
		// Only what was actually spoken belongs in history.
		assistantContent = m.spokenTranscript
	}
	if assistantContent != "" || len(m.response.ToolCalls) > 0 {
		m.history = append(m.history, llms.Turn{
			Role:      llms.TurnRoleAssistant,
			Content:   assistantContent,
			ToolCalls: m.response.ToolCalls,
		})
	}

	if m.historyLimit > 0 && len(m.history) > m.historyLimit {
		m.history = m.history[len(m.history)-m.historyLimit:]
	}
}

func (m *turnStateMachine) abandonTurn() {
	m.turn = nil
	m.aggregator.Reset()
	m.setState(StateIdle)
}

func (m *turnStateMachine) failTurn(err error) {
	turnID := uint64(0)
	if m.turn != nil {
		turnID = m.turn.ID
	}
	m.emit(events.NewTurnFailed(turnID, err))
	m.turn = nil
	m.aggregator.Reset()
	m.setState(StateIdle)
}

func (m *turnStateMachine) setState(to TurnState) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.stateValue.Store(int32(to))

	turnID := uint64(0)
	if m.turn != nil {
		turnID = m.turn.ID
	}
	m.emit(events.NewTurnTransition(turnID, from.String(), to.String()))
	logger.Debug("turn state transition",
		"turn_id", turnID, "from", from.String(), "to", to.String())
}
