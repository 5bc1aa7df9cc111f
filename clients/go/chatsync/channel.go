package chatsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// startupDelay coalesces rapid channel switches: subscribing is deferred
// briefly so a channel the user flicks past never opens a subscription it
// would immediately close.
const startupDelay = 150 * time.Millisecond

// Params identifies one channel binding: the room and the local user.
type Params struct {
	ChannelID string
	Self      string
	Avatar    string
}

// Option configures a Channel.
type Option func(*Channel)

// WithClock substitutes the clock, for tests.
func WithClock(clock Clock) Option {
	return func(c *Channel) { c.clock = clock }
}

// WithLogger attaches a logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Channel) { c.log = log }
}

// WithOnChange registers the view callback fired after any visible change
// to messages, threads, or typing presence.
func WithOnChange(fn func()) Option {
	return func(c *Channel) { c.onChange = fn }
}

// WithAutoScroll registers the view callback the scroll anchor fires when
// the viewport should follow a new message.
func WithAutoScroll(fn func()) Option {
	return func(c *Channel) { c.autoScroll = fn }
}

// Channel owns everything one chat room needs on the client: the message
// store, thread index, typing tracker and emitter, scroll anchor, change
// feed, and the reconnection supervisor. All timers and subscription
// handles it creates are cancelled by Dispose; nothing lives in ambient
// package state.
type Channel struct {
	mu     sync.Mutex
	params Params

	backend    Backend
	clock      Clock
	log        zerolog.Logger
	onChange   func()
	autoScroll func()

	store   *MessageStore
	threads *ThreadIndex
	send    *SendController
	feed    *changeFeed
	typing  *TypingTracker
	emitter *TypingEmitter
	anchor  *ScrollAnchor
	recon   *reconnector

	ctx    context.Context
	cancel context.CancelFunc

	feedSub   Subscription
	typingSub Subscription
	start     Timer
	gen       int
	disposed  bool
}

// NewChannel binds the engine to one channel and schedules its
// subscriptions. Call Activate to run the initial bulk fetch.
func NewChannel(backend Backend, p Params, opts ...Option) *Channel {
	c := &Channel{
		params:  p,
		backend: backend,
		clock:   SystemClock(),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.anchor = NewScrollAnchor(c.clock, func() {
		if c.autoScroll != nil {
			c.autoScroll()
		}
	})
	c.typing = NewTypingTracker(p.Self, c.clock, c.notifyView)
	c.emitter = NewTypingEmitter(p.Self, p.Avatar, c.clock, c.publishTyping)
	c.recon = newReconnector(c.clock, c.log, c.reopen)
	c.bindChannel(p.ChannelID)

	c.mu.Lock()
	c.scheduleSubscribe()
	c.mu.Unlock()
	return c
}

// bindChannel builds the per-room components. Caller is the constructor or
// holds the lock via Reconfigure.
func (c *Channel) bindChannel(channelID string) {
	c.store = NewMessageStore(channelID, c.storeChanged)
	c.threads = NewThreadIndex(channelID, c.backend, c.log, c.notifyView)
	c.send = NewSendController(c.store, c.backend, c.clock, c.log, channelID, c.params.Self, c.params.Avatar)
	c.feed = newChangeFeed(channelID, c.store, c.threads, c.log, c.recon.onStatus)
}

// Activate runs the initial bulk fetch. On error the store is left empty
// with its failure flag set and ErrLoadFailed is returned; the caller
// decides whether to offer a retry. Activate is also how a caller heals the
// gap after a reconnection.
func (c *Channel) Activate(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	store := c.store
	channelID := c.params.ChannelID
	c.mu.Unlock()

	msgs, err := c.backend.FetchMessages(ctx, channelID)
	if err != nil {
		store.FailLoad()
		c.log.Warn().Err(err).Str("channel", channelID).Msg("initial load failed")
		return fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	store.LoadInitial(msgs)
	return nil
}

// Send sends a top-level message optimistically.
func (c *Channel) Send(ctx context.Context, body string) (Message, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return Message{}, ErrDisposed
	}
	send := c.send
	c.mu.Unlock()
	return send.Send(ctx, body)
}

// Reply persists a threaded reply. Replies take the non-optimistic path:
// the change feed performs the only bucket update.
func (c *Channel) Reply(ctx context.Context, parentID, body string) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	threads := c.threads
	p := c.params
	c.mu.Unlock()
	return threads.Reply(ctx, parentID, p.Self, p.Avatar, body)
}

// Messages returns the ordered message snapshot.
func (c *Channel) Messages() []Message {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	return store.Messages()
}

// LoadFailed reports whether the last Activate failed.
func (c *Channel) LoadFailed() bool {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	return store.LoadFailed()
}

// TypingUsers returns who else is currently typing.
func (c *Channel) TypingUsers() []TypingPresence {
	return c.typing.Active()
}

// NotifyInput forwards a local keystroke to the typing emitter.
func (c *Channel) NotifyInput(ctx context.Context) {
	c.emitter.NotifyInput(ctx)
}

// StopTyping broadcasts an explicit stop, e.g. after a send.
func (c *Channel) StopTyping(ctx context.Context) {
	c.emitter.Stop(ctx)
}

// Threads exposes the reply index for the view layer.
func (c *Channel) Threads() *ThreadIndex {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threads
}

// Anchor exposes the scroll anchor for the view layer.
func (c *Channel) Anchor() *ScrollAnchor {
	return c.anchor
}

// Reconnect is the user-triggered retry. It tears down and re-establishes
// this channel's subscriptions immediately, and is refused while a
// reconnect is already in flight.
func (c *Channel) Reconnect() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.mu.Unlock()
	return c.recon.Reconnect()
}

// Reconfigure diffs the new parameters against the current ones and
// rebuilds only what changed: an identity change retargets the typing
// filter and send identity without touching subscriptions; a channel change
// tears down the room state and resubscribes.
func (c *Channel) Reconfigure(p Params) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	old := c.params
	c.params = p
	channelChanged := old.ChannelID != p.ChannelID
	identityChanged := old.Self != p.Self || old.Avatar != p.Avatar

	if channelChanged {
		c.teardownSubsLocked()
		c.recon.reset()
		c.bindChannel(p.ChannelID)
		c.scheduleSubscribe()
	}
	c.mu.Unlock()

	if identityChanged {
		c.typing.setSelf(p.Self)
		c.emitter.setIdentity(p.Self, p.Avatar)
		c.mu.Lock()
		send := c.send
		c.mu.Unlock()
		send.setIdentity(p.Self, p.Avatar)
	}
	if channelChanged {
		c.log.Info().Str("from", old.ChannelID).Str("to", p.ChannelID).Msg("channel reconfigured")
	}
}

// Dispose tears the channel down: every timer is cancelled and both
// subscription handles released. Timer callbacks that already fired find
// the disposed flag and do nothing.
func (c *Channel) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.teardownSubsLocked()
	c.mu.Unlock()

	c.cancel()
	c.recon.dispose()
	c.typing.dispose()
	c.emitter.dispose()
	c.anchor.dispose()
}

// scheduleSubscribe arms the coalescing delay before the first subscribe of
// the current generation. Caller holds the lock.
func (c *Channel) scheduleSubscribe() {
	c.gen++
	gen := c.gen
	if c.start != nil {
		c.start.Stop()
	}
	c.start = c.clock.AfterFunc(startupDelay, func() { c.subscribe(gen) })
}

// subscribe opens the change feed and the presence topic for the current
// generation. A stale generation means the channel moved on while the
// startup delay ran.
func (c *Channel) subscribe(gen int) {
	c.mu.Lock()
	if c.disposed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	feed := c.feed
	channelID := c.params.ChannelID
	ctx := c.ctx
	c.mu.Unlock()

	feedSub, err := feed.open(ctx, c.backend)
	if err != nil {
		c.log.Warn().Err(err).Str("channel", channelID).Msg("feed subscribe failed")
		c.recon.onStatus(StatusErrored)
		return
	}

	typingSub, err := c.backend.SubscribeBroadcast(ctx, typingTopic(channelID), c.typing.OnSignal)
	if err != nil {
		c.log.Warn().Err(err).Str("channel", channelID).Msg("presence subscribe failed")
		feedSub.Unsubscribe()
		c.recon.onStatus(StatusErrored)
		return
	}

	c.mu.Lock()
	if c.disposed || gen != c.gen {
		c.mu.Unlock()
		feedSub.Unsubscribe()
		typingSub.Unsubscribe()
		return
	}
	c.feedSub = feedSub
	c.typingSub = typingSub
	c.mu.Unlock()
}

// reopen is the reconnector's teardown+resubscribe hook. Feed and presence
// are rebuilt together as one unit.
func (c *Channel) reopen() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.teardownSubsLocked()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.subscribe(gen)
}

// teardownSubsLocked releases live handles and the pending start timer.
// Caller holds the lock.
func (c *Channel) teardownSubsLocked() {
	if c.start != nil {
		c.start.Stop()
		c.start = nil
	}
	if c.feedSub != nil {
		c.feedSub.Unsubscribe()
		c.feedSub = nil
	}
	if c.typingSub != nil {
		c.typingSub.Unsubscribe()
		c.typingSub = nil
	}
}

// storeChanged fans a store notification out to the scroll anchor and the
// view.
func (c *Channel) storeChanged() {
	c.anchor.OnStoreChanged()
	c.notifyView()
}

func (c *Channel) notifyView() {
	if c.onChange != nil {
		c.onChange()
	}
}

func (c *Channel) publishTyping(ctx context.Context, sig TypingSignal) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	channelID := c.params.ChannelID
	c.mu.Unlock()
	return c.backend.PublishBroadcast(ctx, typingTopic(channelID), sig)
}

// typingTopic names the broadcast topic carrying typing signals for a
// channel.
func typingTopic(channelID string) string {
	return "typing:" + channelID
}
