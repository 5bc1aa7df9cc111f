package chatsync

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	// typingTTL is how long a presence entry survives without a refresh.
	typingTTL = 3 * time.Second
	// typingSweepEvery is the periodic backstop against missed explicit
	// stop signals (tab closed without cleanup). Presence signals are not
	// delivery-guaranteed, so expiry is the liveness guarantee.
	typingSweepEvery = 2 * time.Second
	// typingIdleAfter is how long the local emitter waits after the last
	// keystroke before broadcasting a stop.
	typingIdleAfter = 2 * time.Second
)

type typingEntry struct {
	presence TypingPresence
	timer    Timer
}

// TypingTracker maintains the set of currently-typing users in one channel
// from broadcast signals, with time-based expiry. The set is purely
// ephemeral; nothing here is persisted.
type TypingTracker struct {
	mu       sync.Mutex
	self     string
	clock    Clock
	entries  map[string]*typingEntry
	sweep    Timer
	onChange func()
	disposed bool
}

// NewTypingTracker creates a tracker that ignores signals from self.
func NewTypingTracker(self string, clock Clock, onChange func()) *TypingTracker {
	t := &TypingTracker{
		self:     self,
		clock:    clock,
		entries:  make(map[string]*typingEntry),
		onChange: onChange,
	}
	t.sweep = clock.AfterFunc(typingSweepEvery, t.sweepStale)
	return t
}

// OnSignal consumes one presence broadcast. A typing=true signal upserts the
// entry and re-arms its expiry timer; typing=false removes it immediately,
// ahead of any timer.
func (t *TypingTracker) OnSignal(sig TypingSignal) {
	t.mu.Lock()
	if t.disposed || sig.Username == "" || sig.Username == t.self {
		t.mu.Unlock()
		return
	}

	if !sig.IsTyping {
		changed := t.removeLocked(sig.Username)
		t.mu.Unlock()
		if changed {
			t.notify()
		}
		return
	}

	e, ok := t.entries[sig.Username]
	if ok {
		e.timer.Stop()
	} else {
		e = &typingEntry{}
		t.entries[sig.Username] = e
	}
	e.presence = TypingPresence{
		Username:     sig.Username,
		Avatar:       sig.Avatar,
		LastSignalAt: t.clock.Now(),
	}
	name := sig.Username
	e.timer = t.clock.AfterFunc(typingTTL, func() { t.expire(name) })
	t.mu.Unlock()

	if !ok {
		t.notify()
	}
}

// Active returns the currently-typing users, ordered by name.
func (t *TypingTracker) Active() []TypingPresence {
	t.mu.Lock()
	out := make([]TypingPresence, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.presence)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// setSelf updates the self filter when the channel is reconfigured.
func (t *TypingTracker) setSelf(self string) {
	t.mu.Lock()
	t.self = self
	t.mu.Unlock()
}

// expire is the per-user timer callback.
func (t *TypingTracker) expire(username string) {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	changed := t.removeLocked(username)
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// sweepStale removes entries whose last signal is stale and reschedules
// itself. It backs up the per-user timers rather than replacing them.
func (t *TypingTracker) sweepStale() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	changed := false
	for name, e := range t.entries {
		if now.Sub(e.presence.LastSignalAt) > typingTTL {
			e.timer.Stop()
			delete(t.entries, name)
			changed = true
		}
	}
	t.sweep = t.clock.AfterFunc(typingSweepEvery, t.sweepStale)
	t.mu.Unlock()
	if changed {
		t.notify()
	}
}

// removeLocked deletes an entry and cancels its timer. Caller holds the
// lock; reports whether anything was removed.
func (t *TypingTracker) removeLocked(username string) bool {
	e, ok := t.entries[username]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(t.entries, username)
	return true
}

func (t *TypingTracker) dispose() {
	t.mu.Lock()
	t.disposed = true
	if t.sweep != nil {
		t.sweep.Stop()
	}
	for name, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, name)
	}
	t.mu.Unlock()
}

func (t *TypingTracker) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}

// TypingEmitter is the mirror-image producer: it watches local input and
// broadcasts typing=true on the first keystroke, then typing=false after
// the input has been silent. Broadcasts are fire-and-forget.
type TypingEmitter struct {
	mu       sync.Mutex
	clock    Clock
	publish  func(context.Context, TypingSignal) error
	self     string
	avatar   string
	typing   bool
	idle     Timer
	disposed bool
}

// NewTypingEmitter creates an emitter publishing through the given function.
func NewTypingEmitter(self, avatar string, clock Clock, publish func(context.Context, TypingSignal) error) *TypingEmitter {
	return &TypingEmitter{
		clock:   clock,
		publish: publish,
		self:    self,
		avatar:  avatar,
	}
}

// NotifyInput records a local keystroke. The first one broadcasts
// typing=true; each one pushes the idle deadline out.
func (e *TypingEmitter) NotifyInput(ctx context.Context) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	first := !e.typing
	e.typing = true
	if e.idle != nil {
		e.idle.Stop()
	}
	e.idle = e.clock.AfterFunc(typingIdleAfter, e.goQuiet)
	self, avatar := e.self, e.avatar
	e.mu.Unlock()

	if first {
		_ = e.publish(ctx, TypingSignal{Username: self, Avatar: avatar, IsTyping: true})
	}
}

// Stop broadcasts an explicit typing=false, e.g. when the message is sent
// or the input is cleared.
func (e *TypingEmitter) Stop(ctx context.Context) {
	e.mu.Lock()
	if e.disposed || !e.typing {
		e.mu.Unlock()
		return
	}
	e.typing = false
	if e.idle != nil {
		e.idle.Stop()
		e.idle = nil
	}
	self, avatar := e.self, e.avatar
	e.mu.Unlock()

	_ = e.publish(ctx, TypingSignal{Username: self, Avatar: avatar, IsTyping: false})
}

func (e *TypingEmitter) goQuiet() {
	e.mu.Lock()
	if e.disposed || !e.typing {
		e.mu.Unlock()
		return
	}
	e.typing = false
	e.idle = nil
	self, avatar := e.self, e.avatar
	e.mu.Unlock()

	_ = e.publish(context.Background(), TypingSignal{Username: self, Avatar: avatar, IsTyping: false})
}

func (e *TypingEmitter) setIdentity(self, avatar string) {
	e.mu.Lock()
	e.self = self
	e.avatar = avatar
	e.mu.Unlock()
}

func (e *TypingEmitter) dispose() {
	e.mu.Lock()
	e.disposed = true
	if e.idle != nil {
		e.idle.Stop()
		e.idle = nil
	}
	e.mu.Unlock()
}
