package transport

import (
	"testing"
	"time"

	"github.com/voicewire/duplex-core/core/audio"
)

func TestLoopbackCloseDuringBlockedPush(t *testing.T) {
	loopback := NewLoopback(audio.GetDefaultEncodingInfo())
	payload := make([]byte, 320)

	for i := 0; i < loopbackQueueCapacity; i++ {
		if err := loopback.Push(payload); err != nil {
			t.Fatalf("failed to fill queue: %v", err)
		}
	}

	blocked := make(chan error, 1)
	go func() { blocked <- loopback.Push(payload) }()
	time.Sleep(20 * time.Millisecond)

	if err := loopback.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	select {
	case err := <-blocked:
		if err == nil {
			t.Fatalf("expected the blocked push to fail once the transport closed")
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked push did not return after close")
	}

	if err := loopback.Push(payload); err == nil {
		t.Fatalf("expected push after close to fail")
	}

	// Queued frames stay readable and the stream then ends.
	count := 0
	for range loopback.Frames() {
		count++
	}
	if count != loopbackQueueCapacity {
		t.Fatalf("expected %d queued frames to drain, got %d", loopbackQueueCapacity, count)
	}
}

func TestLoopbackCloseReportsOnCloseNotify(t *testing.T) {
	loopback := NewLoopback(audio.GetDefaultEncodingInfo())

	if err := loopback.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	select {
	case err := <-loopback.CloseNotify():
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("close was never reported")
	}
}
