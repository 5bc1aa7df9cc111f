package chatsync

import (
	"context"
	"errors"
)

// Sentinel errors for the failure classes callers are expected to branch on.
// Subscription failures are not represented here: they are recovered
// internally by reconnection and only surface as a transient status.
var (
	// ErrLoadFailed marks a bulk fetch that could not complete. The store
	// stays empty with its failure flag set; there is no automatic retry.
	ErrLoadFailed = errors.New("chatsync: initial load failed")

	// ErrSendFailed marks a persist call the server rejected. The
	// provisional message is kept in Failed state; re-sending is a user
	// action.
	ErrSendFailed = errors.New("chatsync: send failed")

	// ErrSendInFlight is returned when an identical body is already pending.
	ErrSendInFlight = errors.New("chatsync: identical send already in flight")

	// ErrEmptyBody is returned for sends with nothing to say.
	ErrEmptyBody = errors.New("chatsync: empty message body")

	// ErrDisposed is returned from operations on a torn-down channel.
	ErrDisposed = errors.New("chatsync: channel disposed")

	// ErrReconnectInFlight is returned when a manual reconnect is refused
	// because one is already running or was requested moments ago.
	ErrReconnectInFlight = errors.New("chatsync: reconnect already in flight")
)

// FeedHandler receives change-feed events for a subscription.
type FeedHandler func(FeedEvent)

// StatusHandler receives subscription health transitions.
type StatusHandler func(Status)

// BroadcastHandler receives ephemeral presence signals for a topic.
type BroadcastHandler func(TypingSignal)

// Subscription is a live handle on a feed or broadcast topic.
type Subscription interface {
	// Unsubscribe releases the handle. It is safe to call more than once;
	// no events are delivered after it returns.
	Unsubscribe()
}

// Backend is the narrow contract this engine consumes from the hosted
// storage/transport collaborator. Persistent storage, fan-out, and schema
// enforcement all live behind it.
type Backend interface {
	// FetchMessages returns the top-level messages of a channel ordered
	// ascending by creation time.
	FetchMessages(ctx context.Context, channelID string) ([]Message, error)

	// FetchReplies returns the replies to one parent message, ascending by
	// creation time.
	FetchReplies(ctx context.Context, channelID, parentID string) ([]Message, error)

	// InsertMessage persists a message and returns the server copy. The
	// engine does not merge the returned copy itself; confirmation arrives
	// through the change feed.
	InsertMessage(ctx context.Context, out Outgoing) (Message, error)

	// CountReplies returns the number of replies under a parent message.
	CountReplies(ctx context.Context, channelID, parentID string) (int, error)

	// SubscribeFeed opens one logical subscription covering insert and
	// update events for a channel. Failures after setup are reported via
	// the status handler, never retried by the backend.
	SubscribeFeed(ctx context.Context, channelID string, onEvent FeedHandler, onStatus StatusHandler) (Subscription, error)

	// SubscribeBroadcast attaches to an ephemeral topic. No delivery
	// guarantee is made in either direction.
	SubscribeBroadcast(ctx context.Context, topic string, onSignal BroadcastHandler) (Subscription, error)

	// PublishBroadcast fires a presence signal at a topic.
	PublishBroadcast(ctx context.Context, topic string, sig TypingSignal) error
}
