package handlers

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gatherhall/chatsync/internal/hub"
	"github.com/gatherhall/chatsync/internal/models"
)

func dialWS(t *testing.T, httpURL, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	var env models.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return env
}

func TestFeedDeliversInsertFrames(t *testing.T) {
	db := newMemStore()
	srv, _ := newTestServer(db)
	defer srv.Close()

	conn := dialWS(t, srv.URL, "/channels/general/feed")

	// Handshake frame arrives first; it also guarantees the socket is
	// registered before we post.
	if env := readFrame(t, conn); env.Type != models.FrameSubscribed {
		t.Fatalf("first frame = %q, want subscribed", env.Type)
	}

	resp := postJSON(t, srv.URL+"/channels/general/messages", postMessageRequest{Sender: "alice", Text: "hi"})
	resp.Body.Close()

	env := readFrame(t, conn)
	if env.Type != models.FrameInsert || env.Message == nil || env.Message.Text != "hi" {
		t.Fatalf("unexpected frame: %+v", env)
	}
}

func TestFeedScopedToChannel(t *testing.T) {
	db := newMemStore()
	srv, h := newTestServer(db)
	defer srv.Close()

	conn := dialWS(t, srv.URL, "/channels/general/feed")
	readFrame(t, conn) // subscribed

	resp := postJSON(t, srv.URL+"/channels/random/messages", postMessageRequest{Sender: "bob", Text: "elsewhere"})
	resp.Body.Close()
	resp = postJSON(t, srv.URL+"/channels/general/messages", postMessageRequest{Sender: "alice", Text: "here"})
	resp.Body.Close()

	// The first delivered frame must be the general message; the relay
	// filters per channel, unlike a broadcast transport.
	env := readFrame(t, conn)
	if env.Message == nil || env.Message.Text != "here" {
		t.Fatalf("foreign channel frame leaked: %+v", env)
	}

	if n := h.Count(hub.FeedKey("general")); n != 1 {
		t.Fatalf("subscriber count = %d, want 1", n)
	}
}

func TestTopicRelaysTypingSignals(t *testing.T) {
	db := newMemStore()
	srv, _ := newTestServer(db)
	defer srv.Close()

	conn := dialWS(t, srv.URL, "/topics/typing:general")
	readFrame(t, conn) // subscribed

	resp := postJSON(t, srv.URL+"/topics/typing:general", models.TypingSignal{Username: "alice", IsTyping: true})
	resp.Body.Close()

	env := readFrame(t, conn)
	if env.Type != models.FrameTyping || env.Signal == nil || env.Signal.Username != "alice" || !env.Signal.IsTyping {
		t.Fatalf("unexpected frame: %+v", env)
	}
}

func TestUpdateFrameAfterReaction(t *testing.T) {
	db := newMemStore()
	srv, _ := newTestServer(db)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/channels/general/messages", postMessageRequest{Sender: "alice", Text: "hi"})
	var msg models.MessageRecord
	decode(t, resp, &msg)

	conn := dialWS(t, srv.URL, "/channels/general/feed")
	readFrame(t, conn) // subscribed

	resp = postJSON(t, srv.URL+"/channels/general/messages/"+msg.ID+"/reactions", toggleReactionRequest{
		Emoji: "🔥", UserID: "bob",
	})
	resp.Body.Close()

	env := readFrame(t, conn)
	if env.Type != models.FrameUpdate || env.Message == nil || len(env.Message.Reactions) != 1 {
		t.Fatalf("unexpected frame: %+v", env)
	}
}
