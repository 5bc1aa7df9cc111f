// Package chatsync keeps a client's view of a chat channel consistent under
// concurrent, at-least-once event delivery: an initial bulk fetch, a live
// change feed of inserts and updates, locally originated optimistic sends,
// ephemeral typing broadcasts, and transport failures requiring
// resubscription. It is a library consumed by a UI layer; rendering and the
// transport itself live elsewhere.
package chatsync

import (
	"time"
)

// SendState tracks whether a message has been accepted by the server.
// Provisional messages move Pending -> (replaced by Confirmed copy) on
// success, or Pending -> Failed when the persist call is rejected.
type SendState int

const (
	// Confirmed messages carry a stable server-assigned ID.
	Confirmed SendState = iota
	// Pending messages exist only locally; their ID is a client token.
	Pending
	// Failed messages were rejected by the server and are kept visible
	// (degraded) until the user discards or re-sends them.
	Failed
)

// String returns the state name for logging.
func (s SendState) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Reaction is an emoji reaction with the users who applied it. Reactions are
// mutated only via update events from the feed, never created locally.
type Reaction struct {
	Emoji   string   `json:"emoji"`
	UserIDs []string `json:"user_ids"`
}

// Message is one entry in a channel. Confirmed messages have a server ID;
// Pending and Failed messages have a client-generated LocalID and no server
// ID. The two kinds never coexist for the same logical send: the store
// replaces the provisional copy in place when the confirmed one arrives.
type Message struct {
	ID           string
	ChannelID    string
	ParentID     string
	SenderName   string
	SenderAvatar string
	Body         string
	CreatedAt    time.Time
	Reactions    []Reaction

	State   SendState
	LocalID string
}

// Key returns the identity the store dedupes on: the server ID for
// confirmed messages, the local token otherwise.
func (m Message) Key() string {
	if m.State == Confirmed {
		return m.ID
	}
	return m.LocalID
}

// Outgoing is the payload handed to the backend's persist call.
type Outgoing struct {
	ChannelID    string
	ParentID     string
	SenderName   string
	SenderAvatar string
	Body         string
}

// TypingSignal is an ephemeral presence broadcast. It is fire-and-forget:
// delivery is not guaranteed, and the tracker compensates with expiry.
type TypingSignal struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	IsTyping bool   `json:"is_typing"`
}

// TypingPresence is one currently-typing user as seen by the tracker.
type TypingPresence struct {
	Username     string
	Avatar       string
	LastSignalAt time.Time
}
