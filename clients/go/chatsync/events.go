package chatsync

// FeedEvent is one event from the change feed. It is a closed variant:
// InsertEvent and UpdateEvent are the only implementations, so routing can
// use an exhaustive type switch instead of dispatching on type strings.
type FeedEvent interface {
	feedEvent()
	// Channel returns the channel the event claims to belong to. Transport
	// level filtering is not assumed reliable, so consumers re-check it.
	Channel() string
}

// InsertEvent carries a newly persisted message.
type InsertEvent struct {
	Message Message
}

func (InsertEvent) feedEvent()        {}
func (e InsertEvent) Channel() string { return e.Message.ChannelID }

// UpdateEvent carries the new full state of an existing message, typically
// after a reaction change.
type UpdateEvent struct {
	Message Message
}

func (UpdateEvent) feedEvent()        {}
func (e UpdateEvent) Channel() string { return e.Message.ChannelID }

// Status describes the health of a subscription.
type Status int

const (
	StatusConnecting Status = iota
	StatusSubscribed
	StatusClosed
	StatusErrored
)

// String returns the status name for logging.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusSubscribed:
		return "subscribed"
	case StatusClosed:
		return "closed"
	case StatusErrored:
		return "errored"
	}
	return "unknown"
}
