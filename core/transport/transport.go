package transport

import (
	"context"

	"github.com/voicewire/duplex-core/core/audio"
)

// Transport is the duplex audio boundary of the orchestration core: an
// inbound stream of captured frames and an outbound sink for synthesized
// frames.
//
// Implementations own frame sequencing and timestamping for the inbound
// stream. Failures surface on CloseNotify as the stream-closed error; the
// core never retries a transport.
type Transport interface {
	// Start begins capture. Frames may be delivered immediately after.
	Start(ctx context.Context) error
	// Frames is the inbound frame stream, delivered in capture order. The
	// channel is closed when the transport shuts down.
	Frames() <-chan audio.Frame
	// WriteFrame writes a synthesized frame to the outbound sink. The
	// playback controller is the sole caller.
	WriteFrame(ctx context.Context, frame audio.Frame) error
	// CloseNotify reports the terminal transport error, or nil on clean
	// shutdown.
	CloseNotify() <-chan error
	EncodingInfo() audio.EncodingInfo
	Close() error
}
