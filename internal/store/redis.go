package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatherhall/chatsync/internal/models"
)

const (
	// recentTTL bounds the hot cache; history beyond it is served from the
	// database.
	recentTTL = 24 * time.Hour
	// recentMax caps the cached tail per channel.
	recentMax = 500
)

// RedisStore handles Redis operations: the hot message cache per channel and
// the Pub/Sub bridge that carries feed and topic frames between relay
// instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// recentKey returns the key for a channel's recent-message sorted set.
func recentKey(channelID string) string {
	return fmt.Sprintf("channel:%s:recent", channelID)
}

// BridgeKey returns the Pub/Sub channel carrying frames for one socket key
// (a feed channel or a broadcast topic).
func BridgeKey(kind, name string) string {
	return fmt.Sprintf("chatsync:%s:%s", kind, name)
}

// bridgePattern matches every bridge channel.
const bridgePattern = "chatsync:*"

// AddRecent appends one message to the channel's hot cache.
func (s *RedisStore) AddRecent(ctx context.Context, msg *models.MessageRecord) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := recentKey(msg.GroupID)

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.CreatedAt),
		Member: string(data),
	})
	// Trim to the newest recentMax entries.
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-recentMax-1))
	pipe.Expire(ctx, key, recentTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentMessages serves the cached tail of a channel, oldest first. A miss
// returns an empty slice; the caller falls back to the database.
func (s *RedisStore) RecentMessages(ctx context.Context, channelID string, limit int) ([]models.MessageRecord, error) {
	if limit <= 0 || limit > recentMax {
		limit = recentMax
	}

	results, err := s.client.ZRange(ctx, recentKey(channelID), int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.MessageRecord, 0, len(results))
	for _, data := range results {
		var msg models.MessageRecord
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// DropRecent evicts a channel's hot cache. Called when a cached message
// mutates; the next list repopulates from the database.
func (s *RedisStore) DropRecent(ctx context.Context, channelID string) error {
	return s.client.Del(ctx, recentKey(channelID)).Err()
}

// FillRecent replaces a channel's hot cache with the given messages.
func (s *RedisStore) FillRecent(ctx context.Context, channelID string, msgs []models.MessageRecord) error {
	key := recentKey(channelID)

	pipe := s.client.Pipeline()
	pipe.Del(ctx, key)
	for i := range msgs {
		data, err := json.Marshal(&msgs[i])
		if err != nil {
			return err
		}
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(msgs[i].CreatedAt),
			Member: string(data),
		})
	}
	pipe.Expire(ctx, key, recentTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// PublishFrame puts one envelope on the bridge so every relay instance can
// fan it out to its local sockets.
func (s *RedisStore) PublishFrame(ctx context.Context, key string, env models.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, key, data).Err()
}

// BridgeFrame is one envelope received from another relay instance.
type BridgeFrame struct {
	Key      string
	Envelope models.Envelope
}

// SubscribeBridge consumes frames published by other instances. The returned
// channel closes when ctx is cancelled.
func (s *RedisStore) SubscribeBridge(ctx context.Context) <-chan BridgeFrame {
	sub := s.client.PSubscribe(ctx, bridgePattern)
	out := make(chan BridgeFrame, 64)

	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var env models.Envelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					continue
				}
				out <- BridgeFrame{Key: m.Channel, Envelope: env}
			}
		}
	}()

	return out
}
