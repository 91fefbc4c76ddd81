package websocket

import (
	"testing"
	"time"
)

func TestCloseWithoutStartReleasesStreams(t *testing.T) {
	client := NewClient("ws://127.0.0.1:0/audio")

	if err := client.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}

	select {
	case _, ok := <-client.Frames():
		if ok {
			t.Fatalf("expected no frames from an unstarted transport")
		}
	case <-time.After(time.Second):
		t.Fatalf("frame stream was not closed")
	}

	select {
	case err := <-client.CloseNotify():
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("close was never reported")
	}

	if err := client.Start(t.Context()); err == nil {
		t.Fatalf("expected start after close to fail")
	}
}
