package orchestration

import (
	"testing"
	"time"

	"github.com/voicewire/duplex-core/core/speechtotext"
)

func partialFragment(text string, start, end time.Duration, seq uint64) speechtotext.Fragment {
	return speechtotext.Fragment{Text: text, Start: start, End: end, Seq: seq}
}

func finalFragment(text string, start, end time.Duration, seq uint64) speechtotext.Fragment {
	return speechtotext.Fragment{Text: text, IsFinal: true, Start: start, End: end, Seq: seq}
}

func TestPartialsAreSupersededByNewestPartial(t *testing.T) {
	aggregator := newTranscriptAggregator()

	aggregator.Add(partialFragment("I want", 0, time.Second, 1))
	aggregator.Add(partialFragment("I want to", 0, 2*time.Second, 2))

	if got := aggregator.CurrentText(); got != "I want to" {
		t.Fatalf("expected newest partial to win, got %q", got)
	}
}

func TestFinalWinsOverPartialForOverlappingRange(t *testing.T) {
	aggregator := newTranscriptAggregator()

	aggregator.Add(partialFragment("I want", 0, time.Second, 1))
	aggregator.Add(partialFragment("I want to", 0, 2*time.Second, 2))
	aggregator.Add(finalFragment("I want to book a flight", 0, 3*time.Second, 3))

	if got := aggregator.CurrentText(); got != "I want to book a flight" {
		t.Fatalf("expected final text, got %q", got)
	}

	// A stale partial covered by the final must not resurface.
	aggregator.Add(partialFragment("I want to boo", 0, 2500*time.Millisecond, 4))
	if got := aggregator.CurrentText(); got != "I want to book a flight" {
		t.Fatalf("expected covered partial to be dropped, got %q", got)
	}
}

func TestReplayingIdenticalFinalIsNoop(t *testing.T) {
	aggregator := newTranscriptAggregator()

	if changed := aggregator.Add(finalFragment("book a flight", 0, time.Second, 1)); !changed {
		t.Fatalf("expected first final to change the text")
	}
	before := aggregator.CurrentText()

	if changed := aggregator.Add(finalFragment("book a flight", 0, time.Second, 1)); changed {
		t.Fatalf("expected identical final replay to be a no-op")
	}
	if got := aggregator.CurrentText(); got != before {
		t.Fatalf("expected text unchanged after replay, got %q", got)
	}
}

func TestFinalsMergeInTimeOrderDespiteArrivalOrder(t *testing.T) {
	aggregator := newTranscriptAggregator()

	aggregator.Add(finalFragment("a flight", 2*time.Second, 3*time.Second, 2))
	aggregator.Add(finalFragment("I want to book", 0, 2*time.Second, 1))

	if got := aggregator.CurrentText(); got != "I want to book a flight" {
		t.Fatalf("expected finals merged in time order, got %q", got)
	}
}

func TestPartialBeyondFinalizedRangeIsKept(t *testing.T) {
	aggregator := newTranscriptAggregator()

	aggregator.Add(finalFragment("I want to book", 0, 2*time.Second, 1))
	aggregator.Add(partialFragment("a fli", 2*time.Second, 3*time.Second, 2))

	if got := aggregator.CurrentText(); got != "I want to book a fli" {
		t.Fatalf("expected trailing partial appended, got %q", got)
	}
}

func TestStabilityRequiresFinalOrQuietDebounce(t *testing.T) {
	aggregator := newTranscriptAggregator()
	debounce := 40 * time.Millisecond

	aggregator.Add(partialFragment("I want", 0, time.Second, 1))
	if aggregator.IsStable(true, debounce) {
		t.Fatalf("expected instability while speech is active")
	}
	if aggregator.IsStable(false, debounce) {
		t.Fatalf("expected instability before the debounce elapses")
	}

	time.Sleep(debounce + 20*time.Millisecond)
	if !aggregator.IsStable(false, debounce) {
		t.Fatalf("expected stability after quiet debounce")
	}

	aggregator.Add(finalFragment("I want to book a flight", 0, 2*time.Second, 2))
	if !aggregator.IsStable(false, debounce) {
		t.Fatalf("expected immediate stability once a final closes the utterance")
	}
}

func TestStabilityWaitsForFinalsToCoverObservedActivity(t *testing.T) {
	aggregator := newTranscriptAggregator()
	debounce := 10 * time.Second

	// The partial reaches 3s before any final arrives; a final covering only
	// the head of the utterance must not make it stable.
	aggregator.Add(partialFragment("I want to book a flight", 0, 3*time.Second, 1))
	aggregator.Add(finalFragment("I want", 0, time.Second, 2))

	if aggregator.IsStable(false, debounce) {
		t.Fatalf("expected instability while finals cover only part of the activity")
	}

	aggregator.Add(finalFragment("to book a flight", time.Second, 3*time.Second, 3))
	if !aggregator.IsStable(false, debounce) {
		t.Fatalf("expected stability once finals cover all observed activity")
	}
	if got := aggregator.CurrentText(); got != "I want to book a flight" {
		t.Fatalf("expected the full utterance, got %q", got)
	}
}

func TestResetClearsFragmentsAndStability(t *testing.T) {
	aggregator := newTranscriptAggregator()
	aggregator.Add(finalFragment("something", 0, time.Second, 1))

	aggregator.Reset()

	if got := aggregator.CurrentText(); got != "" {
		t.Fatalf("expected empty text after reset, got %q", got)
	}
	if aggregator.IsStable(false, time.Millisecond) {
		t.Fatalf("expected no stability after reset")
	}
}
