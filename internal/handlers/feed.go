package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/gatherhall/chatsync/internal/hub"
)

// upgrader accepts any origin: the relay is consumed by native clients, not
// browsers with ambient credentials.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Feed handles GET /channels/{id}/feed, upgrading to the change-feed socket.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("channel", channelID).Msg("feed upgrade failed")
		return
	}

	h.log.Debug().Str("channel", channelID).Msg("feed subscriber connected")
	h.hub.Attach(hub.FeedKey(channelID), conn)
}
