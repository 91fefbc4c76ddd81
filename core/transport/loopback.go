package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voicewire/duplex-core/core/audio"
)

const loopbackQueueCapacity = 64

// Loopback is an in-memory duplex transport. Inbound frames are whatever the
// caller pushes; outbound frames are collected for inspection. It backs tests
// and local demos that have no real device or network leg.
type Loopback struct {
	encodingInfo audio.EncodingInfo

	frames   chan audio.Frame
	closeErr chan error
	done     chan struct{}

	mu       sync.Mutex
	seq      uint64
	written  []audio.Frame
	closed   bool
	notified bool
	pushes   sync.WaitGroup

	onWrite func(frame audio.Frame)
}

func NewLoopback(encodingInfo audio.EncodingInfo) *Loopback {
	if encodingInfo.IsZero() {
		encodingInfo = audio.GetDefaultEncodingInfo()
	}

	return &Loopback{
		encodingInfo: encodingInfo,
		frames:       make(chan audio.Frame, loopbackQueueCapacity),
		closeErr:     make(chan error, 1),
		done:         make(chan struct{}),
	}
}

func (l *Loopback) Start(context.Context) error { return nil }

func (l *Loopback) Frames() <-chan audio.Frame { return l.frames }

// Push injects an inbound frame, assigning sequence number and timestamps.
// A push blocked on a full queue unblocks with an error when the transport
// closes.
func (l *Loopback) Push(payload []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("loopback transport closed")
	}
	l.pushes.Add(1)
	l.seq++
	frame := audio.Frame{
		Seq:        l.seq,
		CapturedAt: time.Now(),
		Samples:    payload,
		Duration:   audio.FrameDuration(payload, l.encodingInfo),
	}
	l.mu.Unlock()
	defer l.pushes.Done()

	select {
	case l.frames <- frame:
		return nil
	case <-l.done:
		return fmt.Errorf("loopback transport closed")
	}
}

func (l *Loopback) WriteFrame(_ context.Context, frame audio.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("loopback transport closed")
	}
	l.written = append(l.written, frame)
	if l.onWrite != nil {
		l.onWrite(frame)
	}
	return nil
}

// Written returns a copy of every frame written to the outbound sink so far.
func (l *Loopback) Written() []audio.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()

	written := make([]audio.Frame, len(l.written))
	copy(written, l.written)
	return written
}

// OnWrite registers a hook invoked under the transport lock for every
// outbound frame.
func (l *Loopback) OnWrite(hook func(frame audio.Frame)) {
	l.mu.Lock()
	l.onWrite = hook
	l.mu.Unlock()
}

func (l *Loopback) CloseNotify() <-chan error { return l.closeErr }

func (l *Loopback) EncodingInfo() audio.EncodingInfo { return l.encodingInfo }

func (l *Loopback) Close() error {
	return l.CloseWithError(nil)
}

// CloseWithError shuts the transport down reporting err on CloseNotify,
// simulating a transport failure when err is non-nil.
func (l *Loopback) CloseWithError(err error) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	notified := l.notified
	l.notified = true
	l.mu.Unlock()

	// In-flight pushes must drain before the frame stream closes.
	close(l.done)
	l.pushes.Wait()
	close(l.frames)
	if !notified {
		l.closeErr <- err
		close(l.closeErr)
	}
	return nil
}
