package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gatherhall/chatsync/internal/hub"
	"github.com/gatherhall/chatsync/internal/metrics"
	"github.com/gatherhall/chatsync/internal/models"
)

// MessagesResponse is the bulk-fetch payload for a channel.
type MessagesResponse struct {
	Messages []models.MessageRecord `json:"messages"`
}

// ListMessages handles GET /channels/{id}/messages.
// The first page is served from the hot cache when possible; paged requests
// (a before parameter) always hit the database.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	var before int64
	if v := r.URL.Query().Get("before"); v != "" {
		before, _ = strconv.ParseInt(v, 10, 64)
	}

	if h.cache != nil && before == 0 {
		cached, err := h.cache.RecentMessages(r.Context(), channelID, limit)
		if err == nil && len(cached) > 0 {
			metrics.CacheHits.WithLabelValues("hit").Inc()
			h.JSON(w, http.StatusOK, MessagesResponse{Messages: cached})
			return
		}
		metrics.CacheHits.WithLabelValues("miss").Inc()
	}

	messages, err := h.db.ListMessages(r.Context(), channelID, limit, before)
	if err != nil {
		h.log.Error().Err(err).Str("channel", channelID).Msg("list messages failed")
		h.Error(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	if h.cache != nil && before == 0 && len(messages) > 0 {
		// Backfill is best-effort.
		if err := h.cache.FillRecent(r.Context(), channelID, messages); err != nil {
			h.log.Warn().Err(err).Str("channel", channelID).Msg("cache backfill failed")
		}
	}

	h.JSON(w, http.StatusOK, MessagesResponse{Messages: messages})
}

// postMessageRequest is the body of POST /channels/{id}/messages.
type postMessageRequest struct {
	ParentID string `json:"parent_id,omitempty"`
	Sender   string `json:"sender"`
	Avatar   string `json:"avatar,omitempty"`
	Text     string `json:"text"`
}

// PostMessage handles POST /channels/{id}/messages. The persisted record is
// returned to the poster and simultaneously fanned out on the channel's
// change feed.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Sender = sanitizeName(req.Sender)
	req.Text = sanitizeText(req.Text)
	if req.Sender == "" {
		h.Error(w, http.StatusBadRequest, "sender is required")
		return
	}
	if req.Text == "" {
		h.Error(w, http.StatusBadRequest, "text is required")
		return
	}

	msg := &models.MessageRecord{
		GroupID:  channelID,
		ParentID: req.ParentID,
		Sender:   req.Sender,
		Avatar:   req.Avatar,
		Text:     req.Text,
	}

	if err := h.db.InsertMessage(r.Context(), msg); err != nil {
		h.log.Error().Err(err).Str("channel", channelID).Msg("insert message failed")
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	kind := "top_level"
	if msg.ParentID != "" {
		kind = "reply"
	}
	metrics.MessagesPosted.WithLabelValues(kind).Inc()

	// Only top-level messages live in the hot cache; replies are loaded on
	// thread expansion.
	if h.cache != nil && msg.ParentID == "" {
		if err := h.cache.AddRecent(r.Context(), msg); err != nil {
			h.log.Warn().Err(err).Str("channel", channelID).Msg("cache append failed")
		}
	}

	h.hub.Publish(r.Context(), hub.FeedKey(channelID), models.InsertEnvelope(msg))
	metrics.FramesDelivered.WithLabelValues(models.FrameInsert).Inc()

	h.JSON(w, http.StatusCreated, msg)
}
