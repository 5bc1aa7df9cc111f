package chatsync

import (
	"sync"
	"time"
)

const (
	// autoScrollMinGap is the minimum spacing between programmatic scrolls,
	// breaking the feedback loop between an auto-scroll and the scroll
	// listener it triggers.
	autoScrollMinGap = time.Second
	// userScrollHold is how long a deliberate scroll-up suppresses
	// following before the anchor re-checks. Re-arming is slow on purpose;
	// disarming on reaching the bottom is immediate.
	userScrollHold = 15 * time.Second
	// scrollSampleWindow is how many scroll-top samples are kept to
	// classify direction.
	scrollSampleWindow = 3
)

// ScrollAnchor decides, from message arrivals and raw scroll gestures,
// whether the viewport should follow new messages. It never touches the
// viewport itself: the scroll callback is supplied by the view layer.
type ScrollAnchor struct {
	mu            sync.Mutex
	clock         Clock
	scrollFn      func()
	userScrolling bool
	atBottom      bool
	samples       []float64
	lastAuto      time.Time
	hold          Timer
	disposed      bool
}

// NewScrollAnchor creates an anchor that starts pinned to the bottom.
func NewScrollAnchor(clock Clock, scrollFn func()) *ScrollAnchor {
	return &ScrollAnchor{
		clock:    clock,
		scrollFn: scrollFn,
		atBottom: true,
	}
}

// OnStoreChanged reacts to a store "changed" notification. It fires the
// scroll callback only when the viewport is at the bottom, the user is not
// reading history, and enough time has passed since the previous
// programmatic scroll.
func (a *ScrollAnchor) OnStoreChanged() {
	a.mu.Lock()
	if a.disposed || !a.atBottom || a.userScrolling {
		a.mu.Unlock()
		return
	}
	now := a.clock.Now()
	if !a.lastAuto.IsZero() && now.Sub(a.lastAuto) < autoScrollMinGap {
		a.mu.Unlock()
		return
	}
	a.lastAuto = now
	fn := a.scrollFn
	a.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// OnScroll consumes one raw scroll event from the view: the current scroll
// offset and whether the viewport is at the bottom. Scrolling up marks the
// user as reading and arms the slow re-arm timer; reaching the bottom
// disarms immediately.
func (a *ScrollAnchor) OnScroll(top float64, atBottom bool) {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}

	a.samples = append(a.samples, top)
	if len(a.samples) > scrollSampleWindow {
		a.samples = a.samples[len(a.samples)-scrollSampleWindow:]
	}
	a.atBottom = atBottom

	if atBottom {
		// Fast disarm: back at the bottom means following is cheap again.
		a.userScrolling = false
		if a.hold != nil {
			a.hold.Stop()
			a.hold = nil
		}
		a.mu.Unlock()
		return
	}

	if n := len(a.samples); n >= 2 && a.samples[n-1] < a.samples[n-2] {
		a.userScrolling = true
		if a.hold != nil {
			a.hold.Stop()
		}
		a.hold = a.clock.AfterFunc(userScrollHold, a.holdExpired)
	}
	a.mu.Unlock()
}

// holdExpired clears the reading flag only if the viewport found its way
// back to the bottom while the timer ran; otherwise the user is still in
// history and stays undisturbed.
func (a *ScrollAnchor) holdExpired() {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.hold = nil
	if a.atBottom {
		a.userScrolling = false
	}
	a.mu.Unlock()
}

// Following reports whether the anchor would auto-scroll on the next
// qualifying change.
func (a *ScrollAnchor) Following() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.atBottom && !a.userScrolling
}

func (a *ScrollAnchor) dispose() {
	a.mu.Lock()
	a.disposed = true
	if a.hold != nil {
		a.hold.Stop()
		a.hold = nil
	}
	a.mu.Unlock()
}
