package orchestration

import (
	"context"
	"time"

	"github.com/voicewire/duplex-core/core/events"
	"github.com/voicewire/duplex-core/core/llms"
	"github.com/voicewire/duplex-core/core/speechtotext"
	"github.com/voicewire/duplex-core/core/texttospeech"
	"github.com/voicewire/duplex-core/core/transport"
)

// SpeechToText is the recognition collaborator contract. Transcribe opens
// the recognition stream and registers callbacks; SendAudio feeds it.
type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
	Close(ctx context.Context) error
}

// LLMWithStream is the generation collaborator contract. The returned
// stream must stop yielding when the passed context is cancelled.
type LLMWithStream interface {
	PromptWithStream(ctx context.Context, prompt string, opts ...llms.StreamingPromptOption) (llms.Stream, error)
}

// TextToSpeech is the synthesis collaborator contract. Synthesize is
// invoked per response chunk and may run concurrently for different chunks.
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) error
}

// Config holds the turn-taking timing parameters.
type Config struct {
	// SilenceWindow is how long energy must stay below the voice activity
	// threshold before speech counts as ended.
	SilenceWindow time.Duration
	// StabilityDebounce is how long the merged transcript must stay
	// unchanged, with no active speech, before it counts as stable.
	StabilityDebounce time.Duration
	// GraceWindow is how long after speech ends resumed speech still folds
	// into the same turn instead of starting a new one.
	GraceWindow time.Duration
	// CancellationDeadline bounds how long generation and playback may take
	// to confirm they stopped after a cancellation.
	CancellationDeadline time.Duration
}

func defaultConfig() Config {
	return Config{
		SilenceWindow:        600 * time.Millisecond,
		StabilityDebounce:    250 * time.Millisecond,
		GraceWindow:          400 * time.Millisecond,
		CancellationDeadline: 250 * time.Millisecond,
	}
}

const defaultHistoryLimit = 32

type OrchestratorOption func(*Orchestrator)

// WithTransport sets the duplex audio transport. Required.
func WithTransport(t transport.Transport) OrchestratorOption {
	return func(o *Orchestrator) {
		o.transport = t
	}
}

// WithSpeechToText sets the recognition collaborator. Required.
func WithSpeechToText(client SpeechToText) OrchestratorOption {
	return func(o *Orchestrator) {
		o.speechToText = client
	}
}

// WithLLM sets the generation collaborator. Required.
func WithLLM(client LLMWithStream) OrchestratorOption {
	return func(o *Orchestrator) {
		o.llm = client
	}
}

// WithTextToSpeech sets the synthesis collaborator. Required.
func WithTextToSpeech(client TextToSpeech) OrchestratorOption {
	return func(o *Orchestrator) {
		o.textToSpeech = client
	}
}

// WithInstructions sets the system prompt passed to the model.
func WithInstructions(instructions string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.instructions = instructions
	}
}

// WithTools exposes tools to response generation.
func WithTools(tools ...llms.Tool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.tools = append(o.tools, llms.CloneTools(tools)...)
	}
}

// WithConfig replaces the full timing configuration.
func WithConfig(config Config) OrchestratorOption {
	return func(o *Orchestrator) {
		o.config = config
	}
}

func WithSilenceWindow(window time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.config.SilenceWindow = window
	}
}

func WithStabilityDebounce(debounce time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.config.StabilityDebounce = debounce
	}
}

func WithGraceWindow(window time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.config.GraceWindow = window
	}
}

func WithCancellationDeadline(deadline time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.config.CancellationDeadline = deadline
	}
}

// WithVoiceActivityThreshold sets the normalized RMS level above which a
// frame counts as speech.
func WithVoiceActivityThreshold(threshold float64) OrchestratorOption {
	return func(o *Orchestrator) {
		o.vadConfig.energyThreshold = threshold
	}
}

// WithVoiceActivityHoldWindow sets how long energy must stay above the
// threshold before speech-started fires.
func WithVoiceActivityHoldWindow(window time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.vadConfig.holdWindow = window
	}
}

// WithHistoryLimit caps how many finalized turns are kept and passed to the
// model. Zero keeps everything.
func WithHistoryLimit(limit int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.historyLimit = limit
	}
}

// OrchestrateOptions collects the per-session observer callbacks.
type OrchestrateOptions struct {
	onEvent func(events.Event)

	onSpeakingStateChanged func(isSpeaking bool)
	onTranscriptFragment   func(fragment speechtotext.Fragment)
	onUtteranceCommitted   func(text string)
	onResponseChunk        func(text string)
	onResponseEnd          func(text string)
	onAudio                func(audio []byte)
	onPlaybackEnded        func(transcript string)
	onTurnTransition       func(turnID uint64, from, to string)
	onInterruption         func(turnID uint64)
}

type OrchestrateOption func(*OrchestrateOptions)

// WithEventCallback registers a catch-all observer that receives every
// typed event the core emits.
func WithEventCallback(callback func(events.Event)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onEvent = callback
	}
}

func WithSpeakingStateChangedCallback(callback func(isSpeaking bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onSpeakingStateChanged = callback
	}
}

func WithTranscriptFragmentCallback(callback func(fragment speechtotext.Fragment)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTranscriptFragment = callback
	}
}

// WithUtteranceCommittedCallback fires when the merged utterance becomes
// stable and a response starts for it.
func WithUtteranceCommittedCallback(callback func(text string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onUtteranceCommitted = callback
	}
}

func WithResponseChunkCallback(callback func(text string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onResponseChunk = callback
	}
}

func WithResponseEndCallback(callback func(text string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onResponseEnd = callback
	}
}

func WithAudioCallback(callback func(audio []byte)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onAudio = callback
	}
}

func WithPlaybackEndedCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onPlaybackEnded = callback
	}
}

// WithTurnTransitionCallback observes the turn-event log.
func WithTurnTransitionCallback(callback func(turnID uint64, from, to string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTurnTransition = callback
	}
}

func WithInterruptionCallback(callback func(turnID uint64)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onInterruption = callback
	}
}
