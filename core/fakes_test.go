package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/voicewire/duplex-core/core/audio"
	"github.com/voicewire/duplex-core/core/llms"
	"github.com/voicewire/duplex-core/core/speechtotext"
	"github.com/voicewire/duplex-core/core/texttospeech"
)

// fakeStream yields scripted chunks, optionally delayed, optionally ending
// with an error.
type fakeStream struct {
	chunks []llms.StreamChunk
	err    error
	delay  time.Duration
}

func (s *fakeStream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, chunk := range s.chunks {
			if s.delay > 0 {
				select {
				case <-time.After(s.delay):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
		if s.err != nil {
			yield(nil, s.err)
		}
	}
}

func tokenStream(tokens ...string) *fakeStream {
	chunks := make([]llms.StreamChunk, 0, len(tokens))
	for _, token := range tokens {
		chunks = append(chunks, llms.ContentChunk{Text: token})
	}
	return &fakeStream{chunks: chunks}
}

// fakeLLM serves scripted streams in call order, reusing the last one.
type fakeLLM struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error

	prompts []string
	options []llms.StreamingPromptOptions
}

func (l *fakeLLM) PromptWithStream(_ context.Context, prompt string, opts ...llms.StreamingPromptOption) (llms.Stream, error) {
	options := llms.StreamingPromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts = append(l.prompts, prompt)
	l.options = append(l.options, options)

	if l.err != nil {
		return nil, l.err
	}
	index := len(l.prompts) - 1
	if index >= len(l.streams) {
		index = len(l.streams) - 1
	}
	return l.streams[index], nil
}

func (l *fakeLLM) promptCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prompts)
}

// fakeTTS synthesizes each chunk as a single payload carrying the chunk
// text, with optional per-text delay and failure.
type fakeTTS struct {
	delayFor func(text string) time.Duration
	errFor   func(text string) error
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) error {
	options := &texttospeech.SynthesisOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if f.delayFor != nil {
		if delay := f.delayFor(text); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if f.errFor != nil {
		if err := f.errFor(text); err != nil {
			return err
		}
	}

	if options.AudioCallback != nil {
		options.AudioCallback([]byte(text))
	}
	return nil
}

// fakeSink records every frame written, in write order.
type fakeSink struct {
	mu       sync.Mutex
	frames   []audio.Frame
	writeErr error
	onWrite  func(frame audio.Frame)
}

func (s *fakeSink) WriteFrame(_ context.Context, frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.frames = append(s.frames, frame)
	if s.onWrite != nil {
		s.onWrite(frame)
	}
	return nil
}

func (s *fakeSink) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (s *fakeSink) writtenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	texts := make([]string, 0, len(s.frames))
	for _, frame := range s.frames {
		texts = append(texts, string(frame.Samples))
	}
	return texts
}

// fakeSTT hands the registered callbacks back to the test so it can script
// recognition output.
type fakeSTT struct {
	mu      sync.Mutex
	options speechtotext.TranscriptionOptions
	sent    [][]byte
	ready   chan struct{}
}

func newFakeSTT() *fakeSTT {
	return &fakeSTT{ready: make(chan struct{})}
}

func (f *fakeSTT) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	options := speechtotext.TranscriptionOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	f.mu.Lock()
	f.options = options
	f.mu.Unlock()
	close(f.ready)
	return nil
}

func (f *fakeSTT) SendAudio(audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, audio)
	return nil
}

func (f *fakeSTT) Close(context.Context) error { return nil }

func (f *fakeSTT) pushFragment(fragment speechtotext.Fragment) {
	f.mu.Lock()
	callback := f.options.FragmentCallback
	f.mu.Unlock()
	if callback != nil {
		callback(fragment)
	}
}

// loudPayload and silentPayload build linear16 frames around the default
// voice activity threshold.
func loudPayload(samples int) []byte {
	payload := make([]byte, samples*2)
	for i := 0; i < len(payload); i += 2 {
		payload[i] = 0x00
		payload[i+1] = 0x40 // 16384, RMS 0.5
	}
	return payload
}

func silentPayload(samples int) []byte {
	return make([]byte, samples*2)
}
