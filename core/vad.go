package orchestration

import (
	"time"

	"github.com/voicewire/duplex-core/core/audio"
)

type voiceActivityKind int

const (
	voiceActivitySpeechStarted voiceActivityKind = iota
	voiceActivitySpeechEnded
)

// voiceActivityEvent is consumed once by the turn state machine.
type voiceActivityEvent struct {
	kind       voiceActivityKind
	at         time.Time
	confidence float64
}

type voiceActivityConfig struct {
	// energyThreshold is the normalized RMS level above which a frame
	// counts as speech.
	energyThreshold float64
	// holdWindow is how long energy must stay above the threshold before
	// speech-started fires, debouncing transient noise.
	holdWindow time.Duration
	// silenceWindow is how long energy must stay below the threshold before
	// speech-ended fires.
	silenceWindow time.Duration
}

func defaultVoiceActivityConfig() voiceActivityConfig {
	return voiceActivityConfig{
		energyThreshold: 0.015,
		holdWindow:      120 * time.Millisecond,
		silenceWindow:   600 * time.Millisecond,
	}
}

// voiceActivityTracker turns an ordered, gap-tolerant frame sequence into
// speech-started and speech-ended events with hysteresis on both edges.
// Events are emitted in frame-timestamp order, never reordered.
type voiceActivityTracker struct {
	config       voiceActivityConfig
	encodingInfo audio.EncodingInfo
	onEvent      func(voiceActivityEvent)

	speaking   bool
	aboveSince time.Time
	lastAbove  time.Time
	lastEnergy float64
}

func newVoiceActivityTracker(config voiceActivityConfig, encodingInfo audio.EncodingInfo, onEvent func(voiceActivityEvent)) *voiceActivityTracker {
	return &voiceActivityTracker{
		config:       config,
		encodingInfo: encodingInfo,
		onEvent:      onEvent,
	}
}

func (t *voiceActivityTracker) processFrame(frame audio.Frame) {
	energy := audio.RMS(frame.Samples, t.encodingInfo)
	frameEnd := frame.End()

	if energy >= t.config.energyThreshold {
		t.lastAbove = frameEnd
		t.lastEnergy = energy
		if t.speaking {
			return
		}
		if t.aboveSince.IsZero() {
			t.aboveSince = frame.CapturedAt
		}
		if frameEnd.Sub(t.aboveSince) >= t.config.holdWindow {
			t.speaking = true
			t.onEvent(voiceActivityEvent{
				kind:       voiceActivitySpeechStarted,
				at:         t.aboveSince,
				confidence: t.confidence(energy),
			})
		}
		return
	}

	t.aboveSince = time.Time{}
	if t.speaking && frameEnd.Sub(t.lastAbove) >= t.config.silenceWindow {
		t.speaking = false
		t.onEvent(voiceActivityEvent{
			kind:       voiceActivitySpeechEnded,
			at:         t.lastAbove,
			confidence: t.confidence(t.lastEnergy),
		})
	}
}

// finish emits a terminal speech-ended if the stream terminated mid-speech.
func (t *voiceActivityTracker) finish() {
	if !t.speaking {
		return
	}
	t.speaking = false
	t.onEvent(voiceActivityEvent{
		kind:       voiceActivitySpeechEnded,
		at:         t.lastAbove,
		confidence: t.confidence(t.lastEnergy),
	})
}

func (t *voiceActivityTracker) confidence(energy float64) float64 {
	if t.config.energyThreshold <= 0 {
		return 1
	}
	confidence := energy / (2 * t.config.energyThreshold)
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}
