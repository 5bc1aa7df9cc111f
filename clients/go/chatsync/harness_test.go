package chatsync

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeClock drives timers deterministically. Advance moves time forward and
// fires due callbacks synchronously, in deadline order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, when: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward, firing every timer that comes due.
// Callbacks run without the clock lock so they may schedule new timers.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.when.After(target) {
				continue
			}
			if next == nil || t.when.Before(next.when) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if next.when.After(c.now) {
			c.now = next.when
		}
		next.fired = true
		fn := next.fn
		c.mu.Unlock()
		fn()
		c.mu.Lock()
	}
}

// fakeFeedSub records one feed subscription and whether it was released.
type fakeFeedSub struct {
	channelID    string
	onEvent      FeedHandler
	onStatus     StatusHandler
	unsubscribed bool
	mu           sync.Mutex
}

func (s *fakeFeedSub) Unsubscribe() {
	s.mu.Lock()
	s.unsubscribed = true
	s.mu.Unlock()
}

func (s *fakeFeedSub) released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribed
}

// fakeBcastSub records one broadcast subscription.
type fakeBcastSub struct {
	topic        string
	onSignal     BroadcastHandler
	unsubscribed bool
	mu           sync.Mutex
}

func (s *fakeBcastSub) Unsubscribe() {
	s.mu.Lock()
	s.unsubscribed = true
	s.mu.Unlock()
}

// fakeBackend is a hand-rolled Backend for tests. Feed delivery is manual:
// tests push events through emitInsert / emitUpdate / emitStatus to control
// ordering, duplication, and channel leakage precisely.
type fakeBackend struct {
	mu        sync.Mutex
	clock     *fakeClock
	messages  map[string][]Message // channelID -> confirmed messages
	inserted  []Outgoing
	feedSubs  []*fakeFeedSub
	bcastSubs []*fakeBcastSub
	fetchErr  error
	insertErr error
	nextID    int

	// insertStarted and insertGate let tests hold a persist call open to
	// exercise concurrent-send behavior.
	insertStarted chan struct{}
	insertGate    chan struct{}
}

func newFakeBackend(clock *fakeClock) *fakeBackend {
	return &fakeBackend{
		clock:    clock,
		messages: make(map[string][]Message),
	}
}

func (b *fakeBackend) FetchMessages(ctx context.Context, channelID string) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	var out []Message
	for _, m := range b.messages[channelID] {
		if m.ParentID == "" {
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *fakeBackend) FetchReplies(ctx context.Context, channelID, parentID string) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	var out []Message
	for _, m := range b.messages[channelID] {
		if m.ParentID == parentID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *fakeBackend) CountReplies(ctx context.Context, channelID, parentID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fetchErr != nil {
		return 0, b.fetchErr
	}
	n := 0
	for _, m := range b.messages[channelID] {
		if m.ParentID == parentID {
			n++
		}
	}
	return n, nil
}

func (b *fakeBackend) InsertMessage(ctx context.Context, out Outgoing) (Message, error) {
	b.mu.Lock()
	started, gate := b.insertStarted, b.insertGate
	b.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.insertErr != nil {
		return Message{}, b.insertErr
	}
	b.inserted = append(b.inserted, out)
	b.nextID++
	m := Message{
		ID:           fmt.Sprintf("srv-%d", b.nextID),
		ChannelID:    out.ChannelID,
		ParentID:     out.ParentID,
		SenderName:   out.SenderName,
		SenderAvatar: out.SenderAvatar,
		Body:         out.Body,
		CreatedAt:    b.clock.Now(),
		State:        Confirmed,
	}
	b.messages[out.ChannelID] = append(b.messages[out.ChannelID], m)
	return m, nil
}

func (b *fakeBackend) SubscribeFeed(ctx context.Context, channelID string, onEvent FeedHandler, onStatus StatusHandler) (Subscription, error) {
	sub := &fakeFeedSub{channelID: channelID, onEvent: onEvent, onStatus: onStatus}
	b.mu.Lock()
	b.feedSubs = append(b.feedSubs, sub)
	b.mu.Unlock()
	if onStatus != nil {
		onStatus(StatusConnecting)
		onStatus(StatusSubscribed)
	}
	return sub, nil
}

func (b *fakeBackend) SubscribeBroadcast(ctx context.Context, topic string, onSignal BroadcastHandler) (Subscription, error) {
	sub := &fakeBcastSub{topic: topic, onSignal: onSignal}
	b.mu.Lock()
	b.bcastSubs = append(b.bcastSubs, sub)
	b.mu.Unlock()
	return sub, nil
}

func (b *fakeBackend) PublishBroadcast(ctx context.Context, topic string, sig TypingSignal) error {
	b.mu.Lock()
	subs := append([]*fakeBcastSub(nil), b.bcastSubs...)
	b.mu.Unlock()
	for _, s := range subs {
		s.mu.Lock()
		deliver := !s.unsubscribed && s.topic == topic
		s.mu.Unlock()
		if deliver {
			s.onSignal(sig)
		}
	}
	return nil
}

// liveFeedSubs returns the still-open feed subscriptions.
func (b *fakeBackend) liveFeedSubs() []*fakeFeedSub {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*fakeFeedSub
	for _, s := range b.feedSubs {
		s.mu.Lock()
		open := !s.unsubscribed
		s.mu.Unlock()
		if open {
			out = append(out, s)
		}
	}
	return out
}

// emitInsert pushes an insert event at every open feed subscription,
// regardless of channel, the way an unfiltered transport would.
func (b *fakeBackend) emitInsert(m Message) {
	for _, s := range b.liveFeedSubs() {
		s.onEvent(InsertEvent{Message: m})
	}
}

// emitUpdate pushes an update event at every open feed subscription.
func (b *fakeBackend) emitUpdate(m Message) {
	for _, s := range b.liveFeedSubs() {
		s.onEvent(UpdateEvent{Message: m})
	}
}

// emitStatus pushes a status transition at every open feed subscription.
func (b *fakeBackend) emitStatus(s Status) {
	for _, sub := range b.liveFeedSubs() {
		if sub.onStatus != nil {
			sub.onStatus(s)
		}
	}
}

// lastServer returns the most recently persisted server copy.
func (b *fakeBackend) lastServer(channelID string) Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.messages[channelID]
	return msgs[len(msgs)-1]
}

// withParent rehomes a test message under a thread parent.
func (m Message) withParent(parentID string) Message {
	m.ParentID = parentID
	return m
}

// confirmed builds a confirmed message for direct store-level tests.
func confirmed(id, channelID, sender, body string, at time.Time) Message {
	return Message{
		ID:         id,
		ChannelID:  channelID,
		SenderName: sender,
		Body:       body,
		CreatedAt:  at,
		State:      Confirmed,
	}
}
