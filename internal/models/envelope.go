package models

// TypingSignal is an ephemeral presence broadcast relayed between clients.
type TypingSignal struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	IsTyping bool   `json:"is_typing"`
}

// Envelope frame types carried on feed and topic sockets.
const (
	FrameInsert     = "insert"
	FrameUpdate     = "update"
	FrameTyping     = "typing"
	FrameSubscribed = "subscribed"
)

// Envelope is one frame on a feed or topic socket.
type Envelope struct {
	Type    string         `json:"type"`
	Message *MessageRecord `json:"message,omitempty"`
	Signal  *TypingSignal  `json:"signal,omitempty"`
}

// InsertEnvelope wraps a freshly persisted message.
func InsertEnvelope(m *MessageRecord) Envelope {
	return Envelope{Type: FrameInsert, Message: m}
}

// UpdateEnvelope wraps a mutated message (reactions, read receipts).
func UpdateEnvelope(m *MessageRecord) Envelope {
	return Envelope{Type: FrameUpdate, Message: m}
}

// TypingEnvelope wraps a presence signal.
func TypingEnvelope(sig TypingSignal) Envelope {
	return Envelope{Type: FrameTyping, Signal: &sig}
}
