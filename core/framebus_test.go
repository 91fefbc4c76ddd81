package orchestration

import (
	"testing"
	"time"

	"github.com/voicewire/duplex-core/core/audio"
)

func TestFrameBusDeliversInCaptureOrderToEverySubscriber(t *testing.T) {
	bus := newFrameBus()
	first := bus.Subscribe("first", 4)
	second := bus.Subscribe("second", 4)

	for seq := uint64(1); seq <= 3; seq++ {
		bus.Publish(audio.Frame{Seq: seq})
	}
	bus.Close()

	for name, ch := range map[string]<-chan audio.Frame{"first": first, "second": second} {
		for want := uint64(1); want <= 3; want++ {
			select {
			case frame, ok := <-ch:
				if !ok {
					t.Fatalf("%s subscriber channel closed before frame %d", name, want)
				}
				if frame.Seq != want {
					t.Fatalf("%s subscriber expected frame %d, got %d", name, want, frame.Seq)
				}
			case <-time.After(time.Second):
				t.Fatalf("timed out waiting for frame %d on %s subscriber", want, name)
			}
		}
		if _, ok := <-ch; ok {
			t.Fatalf("%s subscriber channel should be closed after bus close", name)
		}
	}
}

func TestFrameBusPublishAfterCloseIsNoop(t *testing.T) {
	bus := newFrameBus()
	sub := bus.Subscribe("only", 1)
	bus.Close()

	bus.Publish(audio.Frame{Seq: 1})

	if _, ok := <-sub; ok {
		t.Fatalf("expected no frame after close")
	}
}

func TestFrameBusSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	bus := newFrameBus()
	bus.Close()

	if _, ok := <-bus.Subscribe("late", 1); ok {
		t.Fatalf("expected closed channel for late subscriber")
	}
}
