package chatsync

import (
	"context"
	"testing"
	"time"
)

func TestTypingExpiresWithoutRefresh(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTypingTracker("me", clock, nil)
	defer tracker.dispose()

	tracker.OnSignal(TypingSignal{Username: "Bob", IsTyping: true})
	if len(tracker.Active()) != 1 {
		t.Fatal("Bob should be typing")
	}

	// No further signal for 3.5s: gone after expiry.
	clock.Advance(3500 * time.Millisecond)
	if len(tracker.Active()) != 0 {
		t.Fatalf("stale entry survived: %+v", tracker.Active())
	}
}

func TestTypingRefreshExtendsExpiry(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTypingTracker("me", clock, nil)
	defer tracker.dispose()

	tracker.OnSignal(TypingSignal{Username: "Bob", IsTyping: true})
	clock.Advance(2 * time.Second)
	tracker.OnSignal(TypingSignal{Username: "Bob", IsTyping: true})
	clock.Advance(2 * time.Second)

	// 4s since the first signal but only 2s since the refresh.
	if len(tracker.Active()) != 1 {
		t.Fatal("refreshed entry should still be present")
	}
}

func TestTypingExplicitStopRemovesImmediately(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTypingTracker("me", clock, nil)
	defer tracker.dispose()

	tracker.OnSignal(TypingSignal{Username: "Bob", IsTyping: true})
	tracker.OnSignal(TypingSignal{Username: "Bob", IsTyping: false})

	if len(tracker.Active()) != 0 {
		t.Fatal("explicit stop must remove regardless of timer state")
	}
}

func TestTypingIgnoresSelf(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTypingTracker("me", clock, nil)
	defer tracker.dispose()

	tracker.OnSignal(TypingSignal{Username: "me", IsTyping: true})
	if len(tracker.Active()) != 0 {
		t.Fatal("own signals must be ignored")
	}
}

func TestTypingSweepBackstop(t *testing.T) {
	clock := newFakeClock()
	tracker := NewTypingTracker("me", clock, nil)
	defer tracker.dispose()

	tracker.OnSignal(TypingSignal{Username: "Bob", IsTyping: true})

	// Simulate a missed per-user timer by stopping it behind the
	// tracker's back; the periodic sweep must still clean up.
	tracker.mu.Lock()
	tracker.entries["Bob"].timer.Stop()
	tracker.mu.Unlock()

	clock.Advance(6 * time.Second)
	if len(tracker.Active()) != 0 {
		t.Fatal("sweep did not remove stale entry")
	}
}

func TestTypingNotifiesOnChangeOnly(t *testing.T) {
	clock := newFakeClock()
	calls := 0
	tracker := NewTypingTracker("me", clock, func() { calls++ })
	defer tracker.dispose()

	tracker.OnSignal(TypingSignal{Username: "Bob", IsTyping: true})
	if calls != 1 {
		t.Fatalf("expected 1 notification on join, got %d", calls)
	}

	// Refresh does not change the visible set.
	tracker.OnSignal(TypingSignal{Username: "Bob", IsTyping: true})
	if calls != 1 {
		t.Fatalf("refresh should not notify, got %d", calls)
	}

	tracker.OnSignal(TypingSignal{Username: "Bob", IsTyping: false})
	if calls != 2 {
		t.Fatalf("expected notification on leave, got %d", calls)
	}
}

func TestEmitterBroadcastsOnFirstKeystrokeOnly(t *testing.T) {
	clock := newFakeClock()
	var sent []TypingSignal
	em := NewTypingEmitter("me", "a.png", clock, func(_ context.Context, sig TypingSignal) error {
		sent = append(sent, sig)
		return nil
	})
	defer em.dispose()

	ctx := context.Background()
	em.NotifyInput(ctx)
	em.NotifyInput(ctx)
	em.NotifyInput(ctx)

	if len(sent) != 1 || !sent[0].IsTyping {
		t.Fatalf("expected one typing=true broadcast, got %+v", sent)
	}
}

func TestEmitterGoesQuietAfterIdle(t *testing.T) {
	clock := newFakeClock()
	var sent []TypingSignal
	em := NewTypingEmitter("me", "a.png", clock, func(_ context.Context, sig TypingSignal) error {
		sent = append(sent, sig)
		return nil
	})
	defer em.dispose()

	em.NotifyInput(context.Background())
	clock.Advance(2 * time.Second)

	if len(sent) != 2 || sent[1].IsTyping {
		t.Fatalf("expected typing=false after idle, got %+v", sent)
	}

	// Typing again re-broadcasts.
	em.NotifyInput(context.Background())
	if len(sent) != 3 || !sent[2].IsTyping {
		t.Fatalf("expected fresh typing=true, got %+v", sent)
	}
}

func TestEmitterKeystrokesPushIdleDeadline(t *testing.T) {
	clock := newFakeClock()
	var sent []TypingSignal
	em := NewTypingEmitter("me", "", clock, func(_ context.Context, sig TypingSignal) error {
		sent = append(sent, sig)
		return nil
	})
	defer em.dispose()

	em.NotifyInput(context.Background())
	clock.Advance(1500 * time.Millisecond)
	em.NotifyInput(context.Background())
	clock.Advance(1500 * time.Millisecond)

	// Still typing: the second keystroke moved the deadline.
	if len(sent) != 1 {
		t.Fatalf("went quiet too early: %+v", sent)
	}

	clock.Advance(time.Second)
	if len(sent) != 2 || sent[1].IsTyping {
		t.Fatalf("expected typing=false after silence, got %+v", sent)
	}
}

func TestEmitterExplicitStop(t *testing.T) {
	clock := newFakeClock()
	var sent []TypingSignal
	em := NewTypingEmitter("me", "", clock, func(_ context.Context, sig TypingSignal) error {
		sent = append(sent, sig)
		return nil
	})
	defer em.dispose()

	em.NotifyInput(context.Background())
	em.Stop(context.Background())

	if len(sent) != 2 || sent[1].IsTyping {
		t.Fatalf("expected immediate typing=false, got %+v", sent)
	}

	// The idle timer was cancelled; silence adds nothing.
	clock.Advance(5 * time.Second)
	if len(sent) != 2 {
		t.Fatalf("cancelled idle timer fired anyway: %+v", sent)
	}
}
