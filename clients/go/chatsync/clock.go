package chatsync

import (
	"time"
)

// Clock abstracts wall time and timer scheduling so the expiry, reconnect,
// and scroll timers can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f on its own goroutine after d. Components re-check
	// their disposed flag inside f: a timer firing after teardown must be
	// a no-op.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// callback from running.
	Stop() bool
}

// systemClock is the real implementation backed by the time package.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock returns the wall clock used by default.
func SystemClock() Clock { return systemClock{} }
