package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/voicewire/duplex-core/core/audio"
	"github.com/voicewire/duplex-core/core/events"
	"github.com/voicewire/duplex-core/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// synthesisConcurrency bounds how many chunks may be in synthesis at once.
const synthesisConcurrency = 2

// playbackSink is the outbound half of the transport. The playback
// controller is the only component that writes to it.
type playbackSink interface {
	WriteFrame(ctx context.Context, frame audio.Frame) error
	EncodingInfo() audio.EncodingInfo
}

type synthesizedChunk struct {
	ordinal    int
	transcript string
	payloads   [][]byte
	isLast     bool
	err        error
}

// speechPlayback consumes response chunks in strict ordinal order,
// synthesizes them (possibly concurrently and out of order), reorders by
// ordinal, and writes the audio to the transport with no gaps and no
// overlap.
//
// On cancellation it halts at the next frame boundary, discards buffered
// audio, and returns so the state machine gets its stop confirmation. A
// failed chunk is skipped; a transport write failure aborts playback.
type speechPlayback struct {
	textToSpeech TextToSpeech
	sink         playbackSink
	token        *cancellationToken
	emit         eventEmitter
}

func newSpeechPlayback(textToSpeech TextToSpeech, sink playbackSink, token *cancellationToken, emit eventEmitter) *speechPlayback {
	return &speechPlayback{
		textToSpeech: textToSpeech,
		sink:         sink,
		token:        token,
		emit:         emit,
	}
}

// run plays the chunk stream until it drains, cancellation wins, or the
// transport fails. It reports the transcript actually spoken and whether
// playback completed naturally.
func (s *speechPlayback) run(ctx context.Context, turn Turn, chunks <-chan ResponseChunk) (transcript string, completed bool, err error) {
	ctx, span := tracer.Start(ctx, "play response")
	defer span.End()
	span.SetAttributes(attribute.Int64("turn.id", int64(turn.ID)))

	results := make(chan synthesizedChunk, responseChunkQueueCapacity)
	go s.dispatchSynthesis(ctx, chunks, results)

	var spoken strings.Builder
	defer func() {
		transcript = strings.TrimSpace(spoken.String())
		s.emit(events.NewAssistantPlaybackEnded(completed, transcript))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	buffered := map[int]synthesizedChunk{}
	next := 1
	started := false
	var frameSeq uint64
	encodingInfo := s.sink.EncodingInfo()

	for result := range results {
		if s.token.Cancelled() {
			go drainResults(results)
			return transcript, false, nil
		}

		if result.ordinal < next {
			go drainResults(results)
			return transcript, false, fmt.Errorf("chunk %d delivered after chunk %d played: %w", result.ordinal, next-1, ErrProtocolViolation)
		}
		if _, duplicate := buffered[result.ordinal]; duplicate {
			go drainResults(results)
			return transcript, false, fmt.Errorf("chunk %d delivered twice: %w", result.ordinal, ErrProtocolViolation)
		}
		buffered[result.ordinal] = result

		for {
			current, ready := buffered[next]
			if !ready {
				break
			}
			delete(buffered, next)
			next++

			if current.err != nil {
				// Skip the chunk, keep playing the rest.
				logger.Warn("skipping chunk after synthesis failure", "ordinal", current.ordinal, "error", current.err)
				span.RecordError(current.err)
			} else {
				if !started && len(current.payloads) > 0 {
					started = true
					s.emit(events.NewAssistantPlaybackStarted())
				}
				for _, payload := range current.payloads {
					if s.token.Cancelled() {
						go drainResults(results)
						return transcript, false, nil
					}
					frameSeq++
					frame := audio.Frame{
						Seq:        frameSeq,
						CapturedAt: time.Now(),
						Samples:    payload,
						Duration:   audio.FrameDuration(payload, encodingInfo),
					}
					if writeErr := s.sink.WriteFrame(ctx, frame); writeErr != nil {
						go drainResults(results)
						return transcript, false, fmt.Errorf("failed to write frame: %w: %w", ErrTransportFailure, writeErr)
					}
					s.emit(events.NewAssistantPlaybackFrame(payload))
				}
				if current.transcript != "" {
					if spoken.Len() > 0 {
						spoken.WriteString(" ")
					}
					spoken.WriteString(current.transcript)
				}
				s.emit(events.NewAssistantPlaybackChunkPlayed(current.ordinal, current.transcript))
			}

			if current.isLast {
				completed = true
			}
		}
	}

	return transcript, completed, nil
}

// dispatchSynthesis starts bounded-concurrency synthesis per chunk and
// closes results once every worker finished. Synthesis completion order is
// unconstrained; the writer reorders by ordinal.
func (s *speechPlayback) dispatchSynthesis(ctx context.Context, chunks <-chan ResponseChunk, results chan<- synthesizedChunk) {
	semaphore := make(chan struct{}, synthesisConcurrency)
	var wg sync.WaitGroup

	for chunk := range chunks {
		if s.token.Cancelled() {
			break
		}
		wg.Add(1)
		semaphore <- struct{}{}
		go func(chunk ResponseChunk) {
			defer wg.Done()
			defer func() { <-semaphore }()
			results <- s.synthesize(ctx, chunk)
		}(chunk)
	}

	wg.Wait()
	close(results)
}

func (s *speechPlayback) synthesize(ctx context.Context, chunk ResponseChunk) synthesizedChunk {
	result := synthesizedChunk{ordinal: chunk.Ordinal, transcript: chunk.Text, isLast: chunk.IsLast}
	if strings.TrimSpace(chunk.Text) == "" {
		return result
	}

	err := s.textToSpeech.Synthesize(ctx, chunk.Text,
		texttospeech.WithEncodingInfo(s.sink.EncodingInfo()),
		texttospeech.WithAudioCallback(func(payload []byte) {
			result.payloads = append(result.payloads, append([]byte(nil), payload...))
		}),
	)
	if err != nil && ctx.Err() == nil {
		result.err = fmt.Errorf("failed to synthesize chunk %d: %w: %w", chunk.Ordinal, ErrSynthesisFailure, err)
	}
	return result
}

func drainResults(results <-chan synthesizedChunk) {
	for range results {
	}
}
