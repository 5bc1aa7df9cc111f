package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/gatherhall/chatsync/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development
// fallback when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chatsync.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chatsync.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_active_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		message_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL,
		avatar TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		reactions TEXT NOT NULL DEFAULT '[]',
		read_by TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_messages_group_created ON messages(group_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_group_parent ON messages(group_id, parent_id);
	CREATE INDEX IF NOT EXISTS idx_channels_last_active ON channels(last_active_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertMessage persists a message, assigning an ID and timestamp when
// unset, and touches the channel row.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.MessageRecord) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, group_id, parent_id, sender, avatar, body, created_at, reactions, read_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.GroupID, msg.ParentID, msg.Sender, msg.Avatar, msg.Text, msg.CreatedAt, string(reactions), string(readBy))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO channels (id, name, message_count) VALUES (?, ?, 1)
		ON CONFLICT(id) DO UPDATE
		SET last_active_at = CURRENT_TIMESTAMP, message_count = message_count + 1
	`, msg.GroupID, msg.GroupID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetMessage retrieves one message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, channelID, msgID string) (*models.MessageRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, group_id, parent_id, sender, avatar, body, created_at, reactions, read_by
		FROM messages WHERE group_id = ? AND id = ?
	`, channelID, msgID)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// UpdateMessage persists mutable fields (reactions, read receipts).
func (s *SQLiteStore) UpdateMessage(ctx context.Context, msg *models.MessageRecord) error {
	reactions, err := json.Marshal(emptyIfNilReactions(msg.Reactions))
	if err != nil {
		return err
	}
	readBy, err := json.Marshal(emptyIfNilStrings(msg.ReadBy))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE messages SET reactions = ?, read_by = ? WHERE id = ?
	`, string(reactions), string(readBy), msg.ID)
	return err
}

// ListMessages retrieves top-level messages of a channel, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, channelID string, limit int, before int64) ([]models.MessageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if before <= 0 {
		before = time.Now().UnixMilli() + 1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, parent_id, sender, avatar, body, created_at, reactions, read_by
		FROM (
			SELECT * FROM messages
			WHERE group_id = ? AND parent_id = '' AND created_at < ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, id ASC
	`, channelID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSQLMessages(rows)
}

// ListReplies retrieves the replies under one parent, oldest first.
func (s *SQLiteStore) ListReplies(ctx context.Context, channelID, parentID string) ([]models.MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, parent_id, sender, avatar, body, created_at, reactions, read_by
		FROM messages
		WHERE group_id = ? AND parent_id = ?
		ORDER BY created_at ASC, id ASC
	`, channelID, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSQLMessages(rows)
}

// CountReplies counts the replies under one parent.
func (s *SQLiteStore) CountReplies(ctx context.Context, channelID, parentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE group_id = ? AND parent_id = ?
	`, channelID, parentID).Scan(&n)
	return n, err
}

// ListChannels lists known channels, most recently active first.
func (s *SQLiteStore) ListChannels(ctx context.Context, limit int) ([]models.Channel, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, last_active_at, message_count
		FROM channels ORDER BY last_active_at DESC LIMIT ?
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

func collectSQLMessages(rows *sql.Rows) ([]models.MessageRecord, error) {
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
