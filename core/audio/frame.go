package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Frame is a single timestamped chunk of captured or synthesized audio.
//
// Frames are immutable once produced: the producer assigns the sequence
// number and capture timestamp, and consumers must treat Samples as
// read-only shared memory.
type Frame struct {
	// Seq is a per-stream monotonic sequence number, unique within the
	// stream the frame was captured on.
	Seq uint64
	// CapturedAt is the capture (or synthesis) timestamp of the first
	// sample in the frame.
	CapturedAt time.Time
	// Samples holds the raw sample payload in the stream's encoding.
	Samples []byte
	// Duration is the wall-clock span the frame covers.
	Duration time.Duration
}

// End returns the capture timestamp of the end of the frame.
func (f Frame) End() time.Time {
	return f.CapturedAt.Add(f.Duration)
}

// FrameDuration computes the duration a payload covers under the given
// encoding, or zero if the encoding is unknown.
func FrameDuration(payload []byte, encodingInfo EncodingInfo) time.Duration {
	bytesPerSecond := encodingInfo.BytesPerSecond()
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(len(payload)) / float64(bytesPerSecond) * float64(time.Second))
}

// RMS computes the root-mean-square energy of a linear16 little-endian
// payload, normalized to [0, 1]. Non-linear16 payloads report 0.
func RMS(samples []byte, encodingInfo EncodingInfo) float64 {
	if encodingInfo.Format != EncodingLinear16 || len(samples) < 2 {
		return 0
	}

	var sum float64
	count := len(samples) / 2
	for i := 0; i < count*2; i += 2 {
		sample := int16(binary.LittleEndian.Uint16(samples[i:]))
		value := float64(sample) / float64(math.MaxInt16)
		sum += value * value
	}
	return math.Sqrt(sum / float64(count))
}
