package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/gatherhall/chatsync/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT now(),
		last_active_at TIMESTAMPTZ DEFAULT now(),
		message_count BIGINT DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL,
		avatar TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		reactions JSONB NOT NULL DEFAULT '[]',
		read_by JSONB NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_messages_group_created ON messages(group_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_group_parent ON messages(group_id, parent_id);
	CREATE INDEX IF NOT EXISTS idx_channels_last_active ON channels(last_active_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertMessage persists a message, assigning an ID and timestamp when
// unset, and touches the channel row.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.MessageRecord) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().UnixMilli()
	}

	reactions, err := json.Marshal(emptyIfNilReactions(msg.Reactions))
	if err != nil {
		return err
	}
	readBy, err := json.Marshal(emptyIfNilStrings(msg.ReadBy))
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, group_id, parent_id, sender, avatar, body, created_at, reactions, read_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.ID, msg.GroupID, msg.ParentID, msg.Sender, msg.Avatar, msg.Text, msg.CreatedAt, reactions, readBy)
	if err != nil {
		return err
	}

	// Channels are created implicitly on first post.
	_, err = tx.Exec(ctx, `
		INSERT INTO channels (id, name, message_count)
		VALUES ($1, $1, 1)
		ON CONFLICT (id) DO UPDATE
		SET last_active_at = now(), message_count = channels.message_count + 1
	`, msg.GroupID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetMessage retrieves one message by ID.
func (s *PostgresStore) GetMessage(ctx context.Context, channelID, msgID string) (*models.MessageRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, group_id, parent_id, sender, avatar, body, created_at, reactions, read_by
		FROM messages WHERE group_id = $1 AND id = $2
	`, channelID, msgID)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// UpdateMessage persists mutable fields (reactions, read receipts).
func (s *PostgresStore) UpdateMessage(ctx context.Context, msg *models.MessageRecord) error {
	reactions, err := json.Marshal(emptyIfNilReactions(msg.Reactions))
	if err != nil {
		return err
	}
	readBy, err := json.Marshal(emptyIfNilStrings(msg.ReadBy))
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE messages SET reactions = $1, read_by = $2 WHERE id = $3
	`, reactions, readBy, msg.ID)
	return err
}

// ListMessages retrieves top-level messages of a channel, oldest first.
// A before timestamp (exclusive, unix ms) pages backward through history.
func (s *PostgresStore) ListMessages(ctx context.Context, channelID string, limit int, before int64) ([]models.MessageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if before <= 0 {
		before = time.Now().UnixMilli() + 1
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, group_id, parent_id, sender, avatar, body, created_at, reactions, read_by
		FROM (
			SELECT * FROM messages
			WHERE group_id = $1 AND parent_id = '' AND created_at < $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) page
		ORDER BY created_at ASC, id ASC
	`, channelID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

// ListReplies retrieves the replies under one parent, oldest first.
func (s *PostgresStore) ListReplies(ctx context.Context, channelID, parentID string) ([]models.MessageRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, group_id, parent_id, sender, avatar, body, created_at, reactions, read_by
		FROM messages
		WHERE group_id = $1 AND parent_id = $2
		ORDER BY created_at ASC, id ASC
	`, channelID, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

// CountReplies counts the replies under one parent.
func (s *PostgresStore) CountReplies(ctx context.Context, channelID, parentID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages WHERE group_id = $1 AND parent_id = $2
	`, channelID, parentID).Scan(&n)
	return n, err
}

// ListChannels lists known channels, most recently active first.
func (s *PostgresStore) ListChannels(ctx context.Context, limit int) ([]models.Channel, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, created_at, last_active_at, message_count
		FROM channels ORDER BY last_active_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.CreatedAt, &ch.LastActiveAt, &ch.MessageCount); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.MessageRecord, error) {
	msg := &models.MessageRecord{}
	var reactions, readBy []byte
	err := row.Scan(
		&msg.ID,
		&msg.GroupID,
		&msg.ParentID,
		&msg.Sender,
		&msg.Avatar,
		&msg.Text,
		&msg.CreatedAt,
		&reactions,
		&readBy,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(readBy, &msg.ReadBy); err != nil {
		return nil, err
	}
	return msg, nil
}

func collectMessages(rows pgx.Rows) ([]models.MessageRecord, error) {
	messages := make([]models.MessageRecord, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func emptyIfNilReactions(r []models.Reaction) []models.Reaction {
	if r == nil {
		return []models.Reaction{}
	}
	return r
}

func emptyIfNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
