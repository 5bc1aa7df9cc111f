package chatsync

import (
	"testing"
	"time"
)

func TestAnchorFollowsAtBottom(t *testing.T) {
	clock := newFakeClock()
	fired := 0
	a := NewScrollAnchor(clock, func() { fired++ })
	defer a.dispose()

	a.OnStoreChanged()
	if fired != 1 {
		t.Fatalf("expected scroll at bottom, got %d", fired)
	}
}

func TestAnchorThrottlesAutoScroll(t *testing.T) {
	clock := newFakeClock()
	fired := 0
	a := NewScrollAnchor(clock, func() { fired++ })
	defer a.dispose()

	a.OnStoreChanged()
	clock.Advance(300 * time.Millisecond)
	a.OnStoreChanged()
	a.OnStoreChanged()
	if fired != 1 {
		t.Fatalf("scrolls inside the gap must be dropped, got %d", fired)
	}

	clock.Advance(time.Second)
	a.OnStoreChanged()
	if fired != 2 {
		t.Fatalf("expected scroll after gap elapsed, got %d", fired)
	}
}

func TestAnchorSuppressedWhileReadingHistory(t *testing.T) {
	clock := newFakeClock()
	fired := 0
	a := NewScrollAnchor(clock, func() { fired++ })
	defer a.dispose()

	// Two decreasing offsets classify as a deliberate scroll up.
	a.OnScroll(900, false)
	a.OnScroll(600, false)
	if a.Following() {
		t.Fatal("anchor should stop following after scroll up")
	}

	// A burst of arrivals while reading: none may move the viewport.
	for i := 0; i < 10; i++ {
		clock.Advance(2 * time.Second)
		a.OnStoreChanged()
	}
	if fired != 0 {
		t.Fatalf("auto-scroll fired %d times while user reads history", fired)
	}
}

func TestAnchorDisarmsImmediatelyAtBottom(t *testing.T) {
	clock := newFakeClock()
	fired := 0
	a := NewScrollAnchor(clock, func() { fired++ })
	defer a.dispose()

	a.OnScroll(900, false)
	a.OnScroll(600, false)
	a.OnScroll(2000, true)

	if !a.Following() {
		t.Fatal("reaching the bottom must disarm at once")
	}
	a.OnStoreChanged()
	if fired != 1 {
		t.Fatalf("expected exactly one auto-scroll after return, got %d", fired)
	}
}

func TestAnchorHoldExpiryRequiresBottom(t *testing.T) {
	clock := newFakeClock()
	a := NewScrollAnchor(clock, nil)
	defer a.dispose()

	a.OnScroll(900, false)
	a.OnScroll(600, false)

	// Still away from the bottom when the hold runs out: stay suppressed.
	clock.Advance(userScrollHold + time.Second)
	if a.Following() {
		t.Fatal("hold expiry away from the bottom must not re-arm")
	}
}

func TestAnchorHoldExpiryReArmsAtBottom(t *testing.T) {
	clock := newFakeClock()
	a := NewScrollAnchor(clock, nil)
	defer a.dispose()

	a.OnScroll(900, false)
	a.OnScroll(600, false)

	// The viewport reports bottom again but with a decreasing sample the
	// reading flag was re-set; the expired hold clears it.
	a.mu.Lock()
	a.atBottom = true
	a.mu.Unlock()

	clock.Advance(userScrollHold + time.Second)
	if !a.Following() {
		t.Fatal("hold expiry at the bottom should restore following")
	}
}

func TestAnchorIgnoresScrollDown(t *testing.T) {
	clock := newFakeClock()
	a := NewScrollAnchor(clock, nil)
	defer a.dispose()

	// Increasing offsets, not yet at the bottom: not a read gesture.
	a.OnScroll(100, false)
	a.OnScroll(400, false)

	a.mu.Lock()
	scrolling := a.userScrolling
	a.mu.Unlock()
	if scrolling {
		t.Fatal("scrolling toward the bottom must not mark the user as reading")
	}
}
