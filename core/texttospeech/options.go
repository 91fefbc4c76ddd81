package texttospeech

import "github.com/voicewire/duplex-core/core/audio"

type SynthesisOptions struct {
	// AudioCallback receives synthesized audio payloads as they arrive.
	AudioCallback func(audio []byte)
	// ErrorCallback receives synthesis errors that do not abort the call.
	ErrorCallback func(err error)

	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func WithAudioCallback(callback func(audio []byte)) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.AudioCallback = callback
	}
}

func WithErrorCallback(callback func(err error)) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.ErrorCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.EncodingInfo = encodingInfo
	}
}
