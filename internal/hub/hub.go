// Package hub fans envelope frames out to WebSocket subscribers. Sockets are
// grouped by key: "feed:<channel>" for change feeds and "topic:<topic>" for
// broadcast topics. With Redis configured, frames travel through Pub/Sub so
// every relay instance delivers to its local sockets; without it the hub
// short-circuits locally.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gatherhall/chatsync/internal/metrics"
	"github.com/gatherhall/chatsync/internal/models"
	"github.com/gatherhall/chatsync/internal/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// sendBuffer is the per-socket outbound queue. A subscriber that cannot
	// drain it is dropped rather than allowed to stall the hub.
	sendBuffer = 64

	maxFrameSize = 4096
)

// Hub tracks live sockets per key.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*socket]struct{}
	log    zerolog.Logger
	bridge *store.RedisStore // nil in single-instance mode
}

// New creates a hub. bridge may be nil; frames then stay in-process.
func New(log zerolog.Logger, bridge *store.RedisStore) *Hub {
	return &Hub{
		subs:   make(map[string]map[*socket]struct{}),
		log:    log,
		bridge: bridge,
	}
}

// FeedKey names the socket group for a channel's change feed.
func FeedKey(channelID string) string {
	return store.BridgeKey("feed", channelID)
}

// TopicKey names the socket group for a broadcast topic.
func TopicKey(topic string) string {
	return store.BridgeKey("topic", topic)
}

// Run consumes the Redis bridge until ctx is cancelled. It is the single
// delivery path when a bridge is configured: locally produced frames come
// back through Pub/Sub and are fanned out here, exactly once per instance.
func (h *Hub) Run(ctx context.Context) {
	if h.bridge == nil {
		<-ctx.Done()
		return
	}
	for frame := range h.bridge.SubscribeBridge(ctx) {
		h.deliver(frame.Key, frame.Envelope)
	}
}

// Publish sends one envelope to every subscriber of a key, across all
// instances when bridged.
func (h *Hub) Publish(ctx context.Context, key string, env models.Envelope) {
	if h.bridge != nil {
		if err := h.bridge.PublishFrame(ctx, key, env); err != nil {
			h.log.Error().Err(err).Str("key", key).Msg("bridge publish failed")
			// Degrade to local delivery rather than dropping the frame.
			h.deliver(key, env)
		}
		return
	}
	h.deliver(key, env)
}

// Attach registers an accepted socket under a key and starts its pumps. The
// first frame on the wire is the subscribed marker.
func (h *Hub) Attach(key string, conn *websocket.Conn) {
	s := &socket{
		hub:  h,
		key:  key,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	group, ok := h.subs[key]
	if !ok {
		group = make(map[*socket]struct{})
		h.subs[key] = group
	}
	group[s] = struct{}{}
	h.mu.Unlock()

	metrics.SocketsConnected.Inc()
	s.enqueue(mustMarshal(models.Envelope{Type: models.FrameSubscribed}))

	go s.writePump()
	go s.readPump()
}

// Count reports the live sockets under a key, for tests and stats.
func (h *Hub) Count(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

// deliver fans one envelope out to the local sockets of a key.
func (h *Hub) deliver(key string, env models.Envelope) {
	data := mustMarshal(env)

	h.mu.RLock()
	targets := make([]*socket, 0, len(h.subs[key]))
	for s := range h.subs[key] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(data)
	}
}

// detach removes a socket and closes its outbound queue once.
func (h *Hub) detach(s *socket) {
	h.mu.Lock()
	group, ok := h.subs[s.key]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, live := group[s]; !live {
		h.mu.Unlock()
		return
	}
	delete(group, s)
	if len(group) == 0 {
		delete(h.subs, s.key)
	}
	h.mu.Unlock()

	metrics.SocketsConnected.Dec()
	close(s.send)
}

func mustMarshal(env models.Envelope) []byte {
	data, err := json.Marshal(env)
	if err != nil {
		// Envelope is marshal-safe by construction.
		panic(err)
	}
	return data
}

// socket is one subscriber connection.
type socket struct {
	hub  *Hub
	key  string
	conn *websocket.Conn
	send chan []byte

	mu      sync.Mutex
	dropped bool
}

// enqueue queues a frame without blocking. A full queue marks the socket for
// teardown; the write pump notices and closes it.
func (s *socket) enqueue(data []byte) {
	s.mu.Lock()
	if s.dropped {
		s.mu.Unlock()
		return
	}
	select {
	case s.send <- data:
		s.mu.Unlock()
	default:
		s.dropped = true
		s.mu.Unlock()
		s.hub.log.Warn().Str("key", s.key).Msg("slow subscriber dropped")
		s.hub.detach(s)
	}
}

// markDropped flags the socket so enqueue stops before detach closes send.
func (s *socket) markDropped() {
	s.mu.Lock()
	s.dropped = true
	s.mu.Unlock()
}

func (s *socket) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump exists to notice the peer going away; subscribers never send
// application frames.
func (s *socket) readPump() {
	defer func() {
		s.markDropped()
		s.hub.detach(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
