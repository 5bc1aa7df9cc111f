package handlers

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/gatherhall/chatsync/internal/hub"
	"github.com/gatherhall/chatsync/internal/models"
)

// memStore is an in-memory DataStore for handler tests.
type memStore struct {
	mu     sync.Mutex
	msgs   map[string][]models.MessageRecord
	nextID int
	err    error
}

func newMemStore() *memStore {
	return &memStore{msgs: make(map[string][]models.MessageRecord)}
}

func (s *memStore) Close()                         {}
func (s *memStore) Ping(ctx context.Context) error { return s.err }

func (s *memStore) InsertMessage(ctx context.Context, msg *models.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if msg.ID == "" {
		s.nextID++
		msg.ID = fmt.Sprintf("msg-%d", s.nextID)
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().UnixMilli()
	}
	s.msgs[msg.GroupID] = append(s.msgs[msg.GroupID], *msg)
	return nil
}

func (s *memStore) GetMessage(ctx context.Context, channelID, msgID string) (*models.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, m := range s.msgs[channelID] {
		if m.ID == msgID {
			out := m
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) UpdateMessage(ctx context.Context, msg *models.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for channel, msgs := range s.msgs {
		for i := range msgs {
			if msgs[i].ID == msg.ID {
				s.msgs[channel][i] = *msg
				return nil
			}
		}
	}
	return nil
}

func (s *memStore) ListMessages(ctx context.Context, channelID string, limit int, before int64) ([]models.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.MessageRecord, 0)
	for _, m := range s.msgs[channelID] {
		if m.ParentID == "" {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) ListReplies(ctx context.Context, channelID, parentID string) ([]models.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.MessageRecord, 0)
	for _, m := range s.msgs[channelID] {
		if m.ParentID == parentID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) CountReplies(ctx context.Context, channelID, parentID string) (int, error) {
	replies, err := s.ListReplies(ctx, channelID, parentID)
	return len(replies), err
}

func (s *memStore) ListChannels(ctx context.Context, limit int) ([]models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var channels []models.Channel
	for id, msgs := range s.msgs {
		channels = append(channels, models.Channel{ID: id, Name: id, MessageCount: int64(len(msgs))})
	}
	return channels, nil
}

// newTestServer wires the handlers into a router the way the api package
// does, minus the middleware stack.
func newTestServer(db *memStore) (*httptest.Server, *hub.Hub) {
	h := hub.New(zerolog.Nop(), nil)
	hdl := NewHandler(db, nil, h, zerolog.Nop())

	r := chi.NewRouter()
	r.Get("/health", hdl.Health)
	r.Get("/channels", hdl.ListChannels)
	r.Route("/channels/{id}", func(r chi.Router) {
		r.Get("/messages", hdl.ListMessages)
		r.Post("/messages", hdl.PostMessage)
		r.Post("/messages/{msgID}/reactions", hdl.ToggleReaction)
		r.Post("/messages/{msgID}/read", hdl.MarkRead)
		r.Get("/threads/{parentID}", hdl.ListReplies)
		r.Get("/threads/{parentID}/count", hdl.CountReplies)
		r.Get("/feed", hdl.Feed)
	})
	r.Get("/topics/{topic}", hdl.SubscribeTopic)
	r.Post("/topics/{topic}", hdl.PublishTopic)

	return httptest.NewServer(r), h
}
