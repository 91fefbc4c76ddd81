package orchestration

import "sync"

// cancellationToken is associated 1:1 with a turn's response phase. The
// state machine signals it; the response pipeline and playback controller
// observe it and must stop within a bounded number of steps, never silently
// ignore it.
type cancellationToken struct {
	turnID uint64

	ch   chan struct{}
	once sync.Once
}

func newCancellationToken(turnID uint64) *cancellationToken {
	return &cancellationToken{turnID: turnID, ch: make(chan struct{})}
}

func (t *cancellationToken) Cancel() {
	t.once.Do(func() { close(t.ch) })
}

func (t *cancellationToken) Cancelled() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the token is cancelled.
func (t *cancellationToken) Done() <-chan struct{} {
	return t.ch
}
