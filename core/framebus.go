package orchestration

import (
	"sync"

	"github.com/voicewire/duplex-core/core/audio"
)

const defaultSubscriberQueueCapacity = 64

// frameBus fans captured audio frames out to named subscribers over bounded
// ordered channels. Each subscriber sees frames in capture order; a slow
// subscriber applies backpressure rather than reordering or being skipped.
type frameBus struct {
	mu          sync.Mutex
	subscribers []frameBusSubscriber
	closed      bool
}

type frameBusSubscriber struct {
	name string
	ch   chan audio.Frame
}

func newFrameBus() *frameBus {
	return &frameBus{}
}

// Subscribe registers a named consumer. Subscribing after the bus closed
// returns an already-closed channel.
func (b *frameBus) Subscribe(name string, capacity int) <-chan audio.Frame {
	if capacity <= 0 {
		capacity = defaultSubscriberQueueCapacity
	}
	ch := make(chan audio.Frame, capacity)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, frameBusSubscriber{name: name, ch: ch})
	return ch
}

// Publish delivers a frame to every subscriber in registration order. The
// frame is shared read-only past this point.
func (b *frameBus) Publish(frame audio.Frame) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subscribers := b.subscribers
	b.mu.Unlock()

	for _, subscriber := range subscribers {
		subscriber.ch <- frame
	}
}

// Close closes every subscriber channel. Publish becomes a no-op. The
// publishing goroutine owns shutdown: Close must not race an in-flight
// Publish.
func (b *frameBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subscriber := range b.subscribers {
		close(subscriber.ch)
	}
}
