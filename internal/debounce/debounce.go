// Package debounce provides a trailing-edge debounce timer with
// explicit reset and cancel, so coalescing and shutdown behavior can be
// driven and tested directly rather than hidden inside goroutine sugar.
package debounce

import (
	"sync"
	"time"
)

// Timer runs fn once the configured delay has elapsed since the most
// recent Reset. Every Reset restarts the window; Cancel stops a pending
// run without firing.
type Timer struct {
	delay time.Duration
	fn    func()

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a timer. fn runs on the timer goroutine; it must do its
// own locking.
func New(delay time.Duration, fn func()) *Timer {
	return &Timer{delay: delay, fn: fn}
}

// Reset (re)starts the debounce window. fn fires once, delay after the
// last Reset.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.delay, t.fn)
}

// Cancel stops any pending run. A later Reset re-arms the timer.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
