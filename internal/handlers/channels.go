package handlers

import (
	"net/http"
	"strconv"

	"github.com/gatherhall/chatsync/internal/models"
)

// ChannelsResponse is the channel directory payload.
type ChannelsResponse struct {
	Channels []models.Channel `json:"channels"`
}

// ListChannels handles GET /channels, most recently active first.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	channels, err := h.db.ListChannels(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("list channels failed")
		h.Error(w, http.StatusInternalServerError, "failed to load channels")
		return
	}
	if channels == nil {
		channels = []models.Channel{}
	}

	h.JSON(w, http.StatusOK, ChannelsResponse{Channels: channels})
}
