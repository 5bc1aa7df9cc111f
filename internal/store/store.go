package store

import (
	"context"

	"github.com/gatherhall/chatsync/internal/models"
)

// DataStore defines the interface for durable message storage.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Message operations
	InsertMessage(ctx context.Context, msg *models.MessageRecord) error
	GetMessage(ctx context.Context, channelID, msgID string) (*models.MessageRecord, error)
	UpdateMessage(ctx context.Context, msg *models.MessageRecord) error
	ListMessages(ctx context.Context, channelID string, limit int, before int64) ([]models.MessageRecord, error)
	ListReplies(ctx context.Context, channelID, parentID string) ([]models.MessageRecord, error)
	CountReplies(ctx context.Context, channelID, parentID string) (int, error)

	// Channel operations
	ListChannels(ctx context.Context, limit int) ([]models.Channel, error)
}
