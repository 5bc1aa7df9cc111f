package chatsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client is a Backend implementation speaking to a chatsync relay over HTTP
// for fetches and persists and WebSocket for the change feed and broadcast
// topics.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     zerolog.Logger
}

// NewClient creates a relay client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Dialer:     websocket.DefaultDialer,
		Logger:     zerolog.Nop(),
	}
}

// messageRecord is the persisted record shape the relay stores and streams.
type messageRecord struct {
	ID        string     `json:"id"`
	GroupID   string     `json:"group_id"`
	ParentID  string     `json:"parent_id,omitempty"`
	Sender    string     `json:"sender"`
	Avatar    string     `json:"avatar,omitempty"`
	Text      string     `json:"text"`
	CreatedAt int64      `json:"created_at"`
	Reactions []Reaction `json:"reactions,omitempty"`
	ReadBy    []string   `json:"read_by,omitempty"`
}

func (r messageRecord) toMessage() Message {
	return Message{
		ID:           r.ID,
		ChannelID:    r.GroupID,
		ParentID:     r.ParentID,
		SenderName:   r.Sender,
		SenderAvatar: r.Avatar,
		Body:         r.Text,
		CreatedAt:    time.UnixMilli(r.CreatedAt),
		Reactions:    r.Reactions,
		State:        Confirmed,
	}
}

// feedEnvelope is one frame on a feed or topic socket.
type feedEnvelope struct {
	Type    string         `json:"type"`
	Message *messageRecord `json:"message,omitempty"`
	Signal  *TypingSignal  `json:"signal,omitempty"`
}

// Envelope frame types on the wire. They are decoded into the FeedEvent
// variant immediately; nothing downstream switches on these strings.
const (
	frameInsert     = "insert"
	frameUpdate     = "update"
	frameTyping     = "typing"
	frameSubscribed = "subscribed"
)

// FetchMessages retrieves the top-level messages of a channel.
func (c *Client) FetchMessages(ctx context.Context, channelID string) ([]Message, error) {
	var resp struct {
		Messages []messageRecord `json:"messages"`
	}
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(resp.Messages))
	for _, r := range resp.Messages {
		msgs = append(msgs, r.toMessage())
	}
	return msgs, nil
}

// FetchReplies retrieves the replies under one parent message.
func (c *Client) FetchReplies(ctx context.Context, channelID, parentID string) ([]Message, error) {
	var resp struct {
		Replies []messageRecord `json:"replies"`
	}
	path := "/channels/" + url.PathEscape(channelID) + "/threads/" + url.PathEscape(parentID)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(resp.Replies))
	for _, r := range resp.Replies {
		msgs = append(msgs, r.toMessage())
	}
	return msgs, nil
}

// CountReplies retrieves the reply count under one parent message.
func (c *Client) CountReplies(ctx context.Context, channelID, parentID string) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	path := "/channels/" + url.PathEscape(channelID) + "/threads/" + url.PathEscape(parentID) + "/count"
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// InsertMessage persists a message and returns the server copy.
func (c *Client) InsertMessage(ctx context.Context, out Outgoing) (Message, error) {
	req := struct {
		ParentID string `json:"parent_id,omitempty"`
		Sender   string `json:"sender"`
		Avatar   string `json:"avatar,omitempty"`
		Text     string `json:"text"`
	}{
		ParentID: out.ParentID,
		Sender:   out.SenderName,
		Avatar:   out.SenderAvatar,
		Text:     out.Body,
	}
	var rec messageRecord
	path := "/channels/" + url.PathEscape(out.ChannelID) + "/messages"
	if err := c.postJSON(ctx, path, req, &rec); err != nil {
		return Message{}, err
	}
	return rec.toMessage(), nil
}

// PublishBroadcast fires a typing signal at a topic. Fire-and-forget on the
// wire; only local transport errors are reported.
func (c *Client) PublishBroadcast(ctx context.Context, topic string, sig TypingSignal) error {
	return c.postJSON(ctx, "/topics/"+url.PathEscape(topic), sig, nil)
}

// SubscribeFeed opens the change-feed socket for a channel.
func (c *Client) SubscribeFeed(ctx context.Context, channelID string, onEvent FeedHandler, onStatus StatusHandler) (Subscription, error) {
	path := "/channels/" + url.PathEscape(channelID) + "/feed"
	return c.dial(ctx, path, onStatus, func(env feedEnvelope) {
		switch env.Type {
		case frameInsert:
			if env.Message != nil {
				onEvent(InsertEvent{Message: env.Message.toMessage()})
			}
		case frameUpdate:
			if env.Message != nil {
				onEvent(UpdateEvent{Message: env.Message.toMessage()})
			}
		}
	})
}

// SubscribeBroadcast opens a broadcast topic socket. The contract carries no
// status handler, so a dead presence socket is not observable on its own:
// typing liveness rides on the feed subscription's supervision, which tears
// down and reopens both sockets together.
func (c *Client) SubscribeBroadcast(ctx context.Context, topic string, onSignal BroadcastHandler) (Subscription, error) {
	return c.dial(ctx, "/topics/"+url.PathEscape(topic), nil, func(env feedEnvelope) {
		if env.Type == frameTyping && env.Signal != nil {
			onSignal(*env.Signal)
		}
	})
}

// wsSubscription is a live socket with its read loop.
type wsSubscription struct {
	conn   *websocket.Conn
	once   sync.Once
	closed chan struct{}
}

// Unsubscribe closes the socket. The read loop sees the closed flag and
// exits without reporting an error status.
func (s *wsSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

// dial connects a socket and runs its read loop. Status transitions follow
// the socket lifecycle; failures are reported, never retried here.
func (c *Client) dial(ctx context.Context, path string, onStatus StatusHandler, handle func(feedEnvelope)) (Subscription, error) {
	if onStatus != nil {
		onStatus(StatusConnecting)
	}

	conn, _, err := c.Dialer.DialContext(ctx, c.wsURL(path), nil)
	if err != nil {
		if onStatus != nil {
			onStatus(StatusErrored)
		}
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}

	sub := &wsSubscription{conn: conn, closed: make(chan struct{})}

	go func() {
		for {
			var env feedEnvelope
			if err := conn.ReadJSON(&env); err != nil {
				select {
				case <-sub.closed:
					// Torn down by Unsubscribe; not a transport failure.
					return
				default:
				}
				sub.Unsubscribe()
				c.Logger.Debug().Err(err).Str("path", path).Msg("socket read loop ended")
				if onStatus == nil {
					return
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					onStatus(StatusClosed)
				} else {
					onStatus(StatusErrored)
				}
				return
			}
			if env.Type == frameSubscribed {
				if onStatus != nil {
					onStatus(StatusSubscribed)
				}
				continue
			}
			handle(env)
		}
	}()

	return sub, nil
}

func (c *Client) wsURL(path string) string {
	u := c.BaseURL + path
	if strings.HasPrefix(u, "https://") {
		return "wss://" + strings.TrimPrefix(u, "https://")
	}
	if strings.HasPrefix(u, "http://") {
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// getJSON performs a GET and decodes the response.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// postJSON performs a POST with a JSON body and decodes the response.
func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return fmt.Errorf("relay error %d: %s", resp.StatusCode, errResp.Error)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}
