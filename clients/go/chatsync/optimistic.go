package chatsync

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SendController makes message sending feel instantaneous while keeping a
// single source of truth for what the server accepted. It injects a
// provisional copy into the store immediately, persists in the background,
// and then steps aside: the confirmed copy arrives through the change feed
// and replaces the provisional one via the store's merge path.
type SendController struct {
	mu       sync.Mutex
	store    *MessageStore
	backend  Backend
	clock    Clock
	log      zerolog.Logger
	channel  string
	sender   string
	avatar   string
	inFlight map[string]string // body -> local token
}

// NewSendController creates a controller bound to one channel's store.
func NewSendController(store *MessageStore, backend Backend, clock Clock, log zerolog.Logger, channelID, sender, avatar string) *SendController {
	return &SendController{
		store:    store,
		backend:  backend,
		clock:    clock,
		log:      log,
		channel:  channelID,
		sender:   sender,
		avatar:   avatar,
		inFlight: make(map[string]string),
	}
}

// Send constructs a provisional message, merges it into the store, and
// persists it. The returned message is the provisional copy; the confirmed
// one is delivered by the feed. On persist failure the provisional message
// is marked Failed and ErrSendFailed is returned; there is no automatic
// retry.
func (c *SendController) Send(ctx context.Context, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrEmptyBody
	}

	c.mu.Lock()
	if _, dup := c.inFlight[body]; dup {
		c.mu.Unlock()
		return Message{}, ErrSendInFlight
	}
	token := uuid.NewString()
	c.inFlight[body] = token
	sender, avatar := c.sender, c.avatar
	c.mu.Unlock()

	prov := Message{
		ChannelID:    c.channel,
		SenderName:   sender,
		SenderAvatar: avatar,
		Body:         body,
		CreatedAt:    c.clock.Now(),
		State:        Pending,
		LocalID:      token,
	}
	c.store.MergeIncoming(prov)

	_, err := c.backend.InsertMessage(ctx, Outgoing{
		ChannelID:    c.channel,
		SenderName:   sender,
		SenderAvatar: avatar,
		Body:         body,
	})

	c.mu.Lock()
	delete(c.inFlight, body)
	c.mu.Unlock()

	if err != nil {
		c.store.MarkFailed(token)
		c.log.Warn().Err(err).Str("channel", c.channel).Msg("persist rejected, provisional marked failed")
		return prov, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	// The server copy is not merged here. The feed delivers it and the
	// store's replace-in-place path retires the provisional copy.
	return prov, nil
}

// setIdentity updates the sender attached to future provisional messages.
func (c *SendController) setIdentity(sender, avatar string) {
	c.mu.Lock()
	c.sender = sender
	c.avatar = avatar
	c.mu.Unlock()
}
