package models

// Reaction is one emoji with the users who placed it.
type Reaction struct {
	Emoji   string   `json:"emoji"`
	UserIDs []string `json:"user_ids"`
}

// MessageRecord is a chat message as stored and streamed by the relay.
type MessageRecord struct {
	ID        string     `json:"id"` // ULID
	GroupID   string     `json:"group_id"`
	ParentID  string     `json:"parent_id,omitempty"` // For threading
	Sender    string     `json:"sender"`
	Avatar    string     `json:"avatar,omitempty"`
	Text      string     `json:"text"`
	CreatedAt int64      `json:"created_at"` // Unix ms
	Reactions []Reaction `json:"reactions,omitempty"`
	ReadBy    []string   `json:"read_by,omitempty"`
}

// ToggleReaction adds the user under the emoji, or removes them if already
// present. Empty reaction groups are dropped.
func (m *MessageRecord) ToggleReaction(emoji, userID string) {
	for i := range m.Reactions {
		if m.Reactions[i].Emoji != emoji {
			continue
		}
		for j, id := range m.Reactions[i].UserIDs {
			if id == userID {
				m.Reactions[i].UserIDs = append(m.Reactions[i].UserIDs[:j], m.Reactions[i].UserIDs[j+1:]...)
				if len(m.Reactions[i].UserIDs) == 0 {
					m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
				}
				return
			}
		}
		m.Reactions[i].UserIDs = append(m.Reactions[i].UserIDs, userID)
		return
	}
	m.Reactions = append(m.Reactions, Reaction{Emoji: emoji, UserIDs: []string{userID}})
}

// MarkRead records a read receipt. Reports whether the record changed.
func (m *MessageRecord) MarkRead(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return false
		}
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}
