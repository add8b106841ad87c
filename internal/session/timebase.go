package session

import (
	"sync"
	"time"
)

// TimeBase tracks the elapsed recording time relative to the first video
// sample. Audio samples never move the anchor.
type TimeBase struct {
	mu        sync.Mutex
	anchor    time.Duration
	anchored  bool
	elapsed   time.Duration
	callbacks []func(seconds float64)
}

func NewTimeBase() *TimeBase {
	return &TimeBase{}
}

// Anchor sets the time that maps to zero elapsed time.
func (tb *TimeBase) Anchor(pts time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.anchor = pts
	tb.anchored = true
	tb.elapsed = 0
}

// Update computes the elapsed time at pts and notifies the callbacks.
// The elapsed value never decreases. Before Anchor, pts becomes the anchor.
func (tb *TimeBase) Update(pts time.Duration) time.Duration {
	tb.mu.Lock()
	if !tb.anchored {
		tb.anchor = pts
		tb.anchored = true
	}
	if e := pts - tb.anchor; e > tb.elapsed {
		tb.elapsed = e
	}
	elapsed := tb.elapsed
	callbacks := tb.callbacks
	tb.mu.Unlock()

	for _, cb := range callbacks {
		cb(elapsed.Seconds())
	}
	return elapsed
}

// Elapsed returns the last computed elapsed time.
func (tb *TimeBase) Elapsed() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.elapsed
}

// OnUpdate registers a callback invoked with the elapsed seconds after every
// Update, on the caller's goroutine.
func (tb *TimeBase) OnUpdate(cb func(seconds float64)) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.callbacks = append(tb.callbacks, cb)
}
