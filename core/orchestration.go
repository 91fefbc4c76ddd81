// Package orchestration is the turn-taking and streaming-coordination core
// of a full-duplex voice conversation: it decides when the user has finished
// speaking, when the assistant may start speaking, and how to cleanly abort
// an in-flight response when the user barges in.
//
// Recognition, generation, synthesis, and audio transport stay behind the
// collaborator contracts in [SpeechToText], [LLMWithStream], [TextToSpeech],
// and the transport package; the core never implements them itself.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voicewire/duplex-core/core/events"
	"github.com/voicewire/duplex-core/core/llms"
	"github.com/voicewire/duplex-core/core/speechtotext"
	"github.com/voicewire/duplex-core/core/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Orchestrator struct {
	transport    transport.Transport
	speechToText SpeechToText
	llm          LLMWithStream
	textToSpeech TextToSpeech

	instructions string
	tools        []llms.Tool

	config       Config
	vadConfig    voiceActivityConfig
	historyLimit int

	sessionID  string
	bus        *frameBus
	aggregator *transcriptAggregator
	machine    *turnStateMachine

	emitterMu sync.RWMutex
	emitter   eventEmitter

	baseContext context.Context
	closeOnce   sync.Once
}

// NewOrchestrator wires the coordination core. The transport and the three
// collaborators are required; everything else has defaults.
func NewOrchestrator(opts ...OrchestratorOption) (*Orchestrator, error) {
	o := &Orchestrator{
		config:       defaultConfig(),
		vadConfig:    defaultVoiceActivityConfig(),
		historyLimit: defaultHistoryLimit,
		sessionID:    uuid.NewString(),
		bus:          newFrameBus(),
		aggregator:   newTranscriptAggregator(),
		emitter:      noopEventEmitter,
		baseContext:  context.Background(),
	}

	for _, opt := range opts {
		opt(o)
	}

	switch {
	case o.transport == nil:
		return nil, fmt.Errorf("a transport is required")
	case o.speechToText == nil:
		return nil, fmt.Errorf("a speech-to-text client is required")
	case o.llm == nil:
		return nil, fmt.Errorf("a model client is required")
	case o.textToSpeech == nil:
		return nil, fmt.Errorf("a text-to-speech client is required")
	}

	o.vadConfig.silenceWindow = o.config.SilenceWindow
	o.machine = newTurnStateMachine(o.config, o.aggregator, o.deliverEvent, o.historyLimit, o.respond)

	return o, nil
}

// Orchestrate starts the session: recognition, capture fan-out, voice
// activity tracking, and the turn state machine. It returns once wiring is
// up; the session then runs until ctx ends or Close is called.
//
// Contract: call Orchestrate at most once per orchestrator instance.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) error {
	if o.machine.isClosed() {
		log.Println("Warning: orchestrator already closed, skipping Orchestrate")
		return fmt.Errorf("orchestrator already closed")
	}

	orchestrateOptions := OrchestrateOptions{}
	for _, opt := range opts {
		opt(&orchestrateOptions)
	}
	o.setEmitter(newCallbackEventEmitter(orchestrateOptions))

	o.baseContext = ctx
	o.machine.start()
	withContextCancelHook(ctx, func() { o.Close() })

	if err := o.speechToText.Transcribe(ctx,
		speechtotext.WithEncodingInfo(o.transport.EncodingInfo()),
		speechtotext.WithFragmentCallback(o.onTranscriptFragment),
		speechtotext.WithErrorCallback(func(err error) {
			o.machine.enqueue(evRecognitionError{err: err})
		}),
	); err != nil {
		return fmt.Errorf("failed to start transcription: %w: %w", ErrRecognitionFailure, err)
	}

	if err := o.transport.Start(ctx); err != nil {
		return fmt.Errorf("failed to start transport: %w: %w", ErrTransportFailure, err)
	}

	go o.runWorkers(ctx)

	return nil
}

// onTranscriptFragment hands the fragment to the machine loop; only the loop
// touches the aggregator, so fragment merging is ordered with turn resets.
func (o *Orchestrator) onTranscriptFragment(fragment speechtotext.Fragment) {
	o.deliverEvent(events.NewUserTranscriptFragment(
		fragment.Text, fragment.IsFinal, fragment.Start, fragment.End, fragment.Seq))
	o.machine.enqueue(evTranscriptChanged{fragment: fragment})
}

// runWorkers owns the streaming goroutines of the session: transport frame
// fan-out, voice activity tracking, recognition feed, and transport failure
// watch. It returns once the transport drains.
func (o *Orchestrator) runWorkers(ctx context.Context) {
	vadFrames := o.bus.Subscribe("voice-activity", defaultSubscriberQueueCapacity)
	sttFrames := o.bus.Subscribe("speech-to-text", defaultSubscriberQueueCapacity)

	tracker := newVoiceActivityTracker(o.vadConfig, o.transport.EncodingInfo(), func(ev voiceActivityEvent) {
		switch ev.kind {
		case voiceActivitySpeechStarted:
			o.machine.enqueue(evSpeechStarted{at: ev.at, confidence: ev.confidence})
		case voiceActivitySpeechEnded:
			o.machine.enqueue(evSpeechEnded{at: ev.at, confidence: ev.confidence})
		}
	})

	workers := []workerRun{
		panicSafeNamedWorker("frame fan-out", func(context.Context) error {
			defer o.bus.Close()
			for frame := range o.transport.Frames() {
				o.deliverEvent(events.NewUserAudioFrame(frame.Samples))
				o.bus.Publish(frame)
			}
			return nil
		}),
		panicSafeNamedWorker("voice activity", func(context.Context) error {
			for frame := range vadFrames {
				tracker.processFrame(frame)
			}
			tracker.finish()
			return nil
		}),
		panicSafeNamedWorker("recognition feed", func(context.Context) error {
			for frame := range sttFrames {
				if err := o.speechToText.SendAudio(frame.Samples); err != nil {
					return fmt.Errorf("failed to forward audio to recognition: %w", err)
				}
			}
			return nil
		}),
		panicSafeNamedWorker("transport watch", func(ctx context.Context) error {
			select {
			case err := <-o.transport.CloseNotify():
				if err != nil {
					o.machine.enqueue(evTransportClosed{err: err})
					return err
				}
			case <-ctx.Done():
			}
			return nil
		}),
	}

	var workerErr error
	var workerErrMu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(workers))
	for _, worker := range workers {
		go func(worker workerRun) {
			defer wg.Done()
			if err := worker(ctx); err != nil {
				workerErrMu.Lock()
				workerErr = errors.Join(workerErr, err)
				workerErrMu.Unlock()
			}
		}(worker)
	}
	wg.Wait()

	if workerErr != nil {
		span := trace.SpanFromContext(o.baseContext)
		span.RecordError(workerErr)
		span.SetStatus(codes.Error, workerErr.Error())
		logger.Error("session workers failed", "session_id", o.sessionID, "error", workerErr)
	}
}

// respond runs the response phase of a committed turn: the generation
// pipeline and the playback controller, joined by the chunk stream. Both
// report completion back to the state machine.
func (o *Orchestrator) respond(turn Turn, history []llms.Turn, token *cancellationToken) {
	go func() {
		ctx, span := tracer.Start(o.baseContext, "process turn")
		defer span.End()
		span.SetAttributes(
			attribute.String("session.id", o.sessionID),
			attribute.Int64("turn.id", int64(turn.ID)),
		)

		pipeline := newResponsePipeline(o.llm, o.instructions, o.tools, token, o.deliverEvent)
		playback := newSpeechPlayback(o.textToSpeech, o.transport, token, o.deliverEvent)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			var response llms.Response
			err := panicSafeNamedWorker("response generation", func(ctx context.Context) error {
				var runErr error
				response, runErr = pipeline.run(ctx, turn, history)
				return runErr
			})(ctx)
			o.machine.enqueue(evResponseDone{turnID: turn.ID, response: response, err: err})
		}()
		go func() {
			defer wg.Done()
			var transcript string
			var completed bool
			err := panicSafeNamedWorker("speech playback", func(ctx context.Context) error {
				var runErr error
				transcript, completed, runErr = playback.run(ctx, turn, pipeline.Chunks())
				return runErr
			})(ctx)
			o.machine.enqueue(evPlaybackDone{turnID: turn.ID, transcript: transcript, completed: completed, err: err})
		}()
		wg.Wait()
	}()
}

// SendPrompt injects an operator prompt as if it were a committed user
// utterance. An in-flight response is cancelled first.
func (o *Orchestrator) SendPrompt(prompt string) {
	o.machine.enqueue(evPrompt{text: prompt})
}

// CancelTurn abandons the active turn: listening stops accumulating, an
// in-flight response is cancelled.
func (o *Orchestrator) CancelTurn() {
	o.machine.enqueue(evCancelRequest{})
}

// SendAudio bypasses the transport and feeds audio straight to recognition.
func (o *Orchestrator) SendAudio(audio []byte) error {
	return o.speechToText.SendAudio(audio)
}

// State reports the current turn state.
func (o *Orchestrator) State() TurnState {
	return o.machine.State()
}

// History returns a copy of the finalized conversation history.
func (o *Orchestrator) History() []llms.Turn {
	return o.machine.History()
}

func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.machine.end()

		if err := o.transport.Close(); err != nil {
			recordedErr := fmt.Errorf("failed to close transport: %w", err)
			span := trace.SpanFromContext(o.baseContext)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
		}

		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.speechToText.Close(closeCtx); err != nil {
			recordedErr := fmt.Errorf("failed to close speech-to-text client: %w", err)
			span := trace.SpanFromContext(o.baseContext)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
		}

		o.machine.waitUntilEnded()
	})
	return nil
}

func (o *Orchestrator) setEmitter(emit eventEmitter) {
	o.emitterMu.Lock()
	defer o.emitterMu.Unlock()
	o.emitter = emit
}

func (o *Orchestrator) deliverEvent(event events.Event) {
	o.emitterMu.RLock()
	emit := o.emitter
	o.emitterMu.RUnlock()
	emit(event)
}
