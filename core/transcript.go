package orchestration

import (
	"strings"
	"sync"
	"time"

	"github.com/voicewire/duplex-core/core/speechtotext"
)

// transcriptAggregator merges partial and final transcript fragments into
// the current best-known utterance text. Fragments may arrive out of order
// within a small window.
//
// Merge rules: final fragments always win over partials for overlapping time
// ranges and are never superseded; among partials the most recently received
// wins. Replaying an identical final fragment is a no-op.
//
// The aggregator is the only component that mutates the current utterance.
type transcriptAggregator struct {
	mu sync.Mutex

	finals  []speechtotext.Fragment
	partial *speechtotext.Fragment
	// finalizedEnd is the time range covered by finals; partials at or
	// below it are already superseded.
	finalizedEnd time.Duration
	// activityEnd is the furthest stream offset any fragment has reached,
	// including partials that were later superseded or dropped.
	activityEnd time.Duration

	lastChange time.Time
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

// Add merges a fragment and reports whether the utterance text changed.
func (a *transcriptAggregator) Add(fragment speechtotext.Fragment) (changed bool) {
	if strings.TrimSpace(fragment.Text) == "" {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if fragment.End > a.activityEnd {
		a.activityEnd = fragment.End
	}

	if fragment.IsFinal {
		changed = a.addFinal(fragment)
	} else {
		changed = a.addPartial(fragment)
	}
	if changed {
		a.lastChange = time.Now()
	}
	return changed
}

func (a *transcriptAggregator) addFinal(fragment speechtotext.Fragment) bool {
	for _, existing := range a.finals {
		if existing.Text == fragment.Text && existing.Start == fragment.Start && existing.End == fragment.End {
			return false
		}
	}

	inserted := false
	for i, existing := range a.finals {
		if fragment.Start < existing.Start {
			a.finals = append(a.finals[:i], append([]speechtotext.Fragment{fragment}, a.finals[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		a.finals = append(a.finals, fragment)
	}
	if fragment.End > a.finalizedEnd {
		a.finalizedEnd = fragment.End
	}

	// The final owns its range now; drop a partial it covers.
	if a.partial != nil && a.partial.Start < a.finalizedEnd {
		a.partial = nil
	}
	return true
}

func (a *transcriptAggregator) addPartial(fragment speechtotext.Fragment) bool {
	if fragment.End <= a.finalizedEnd {
		return false
	}
	if a.partial != nil && a.partial.Seq > fragment.Seq {
		// Late arrival of an already superseded partial.
		return false
	}
	if a.partial != nil && a.partial.Text == fragment.Text {
		a.partial = &fragment
		return false
	}
	a.partial = &fragment
	return true
}

// CurrentText returns the merged utterance text: finalized text in time
// order followed by the newest uncovered partial.
func (a *transcriptAggregator) CurrentText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentTextLocked()
}

func (a *transcriptAggregator) currentTextLocked() string {
	parts := make([]string, 0, len(a.finals)+1)
	for _, fragment := range a.finals {
		parts = append(parts, strings.TrimSpace(fragment.Text))
	}
	if a.partial != nil {
		parts = append(parts, strings.TrimSpace(a.partial.Text))
	}
	return strings.Join(parts, " ")
}

// IsStable reports whether the utterance is stable enough to act on:
// either finals cover every stream offset any fragment has reached (no
// trailing partial), or nothing changed for the debounce interval while no
// speech is active.
func (a *transcriptAggregator) IsStable(speechActive bool, debounce time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.finals) > 0 && a.partial == nil && a.finalizedEnd >= a.activityEnd {
		return true
	}
	if speechActive || a.lastChange.IsZero() {
		return false
	}
	return time.Since(a.lastChange) >= debounce
}

// Reset clears all fragments and stability tracking. Called when a turn
// completes or is abandoned.
func (a *transcriptAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finals = nil
	a.partial = nil
	a.finalizedEnd = 0
	a.activityEnd = 0
	a.lastChange = time.Time{}
}
