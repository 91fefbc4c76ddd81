package speechtotext

import (
	"time"

	"github.com/voicewire/duplex-core/core/audio"
)

// Fragment is a partial or final transcript piece covering a time range of
// the current utterance, offsets relative to the start of the audio stream.
//
// Fragments with the same or overlapping ranges supersede earlier non-final
// fragments; a final fragment is never superseded.
type Fragment struct {
	Text    string
	IsFinal bool
	Start   time.Duration
	End     time.Duration
	// Seq orders fragments as emitted by the engine; receivers tolerate
	// out-of-order arrival within a small window.
	Seq uint64
}

type TranscriptionOptions struct {
	FragmentCallback func(fragment Fragment)

	SpeechStartedCallback func()
	SpeechEndedCallback   func()
	ErrorCallback         func(err error)

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

func WithFragmentCallback(callback func(fragment Fragment)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.FragmentCallback = callback
	}
}

func WithSpeechStartedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithSpeechEndedCallback(callback func()) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SpeechEndedCallback = callback
	}
}

func WithErrorCallback(callback func(err error)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.ErrorCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}
