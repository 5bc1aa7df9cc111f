package models

import "time"

// Channel is a chat room known to the relay. Channels are created implicitly
// on first post.
type Channel struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	MessageCount int64     `json:"message_count"`
}
