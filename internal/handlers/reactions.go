package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatherhall/chatsync/internal/hub"
	"github.com/gatherhall/chatsync/internal/metrics"
	"github.com/gatherhall/chatsync/internal/models"
)

// toggleReactionRequest is the body of POST /channels/{id}/messages/{msgID}/reactions.
type toggleReactionRequest struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"user_id"`
}

// ToggleReaction handles POST /channels/{id}/messages/{msgID}/reactions.
// The mutated record is fanned out as an update frame, which is how every
// client converges on the same reaction set.
func (h *Handler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	msgID := chi.URLParam(r, "msgID")

	var req toggleReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Emoji == "" || req.UserID == "" {
		h.Error(w, http.StatusBadRequest, "emoji and user_id are required")
		return
	}

	msg, err := h.loadForUpdate(w, r, channelID, msgID)
	if msg == nil || err != nil {
		return
	}

	msg.ToggleReaction(req.Emoji, req.UserID)
	h.finishUpdate(w, r, msg, "reaction")
}

// markReadRequest is the body of POST /channels/{id}/messages/{msgID}/read.
type markReadRequest struct {
	UserID string `json:"user_id"`
}

// MarkRead handles POST /channels/{id}/messages/{msgID}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	msgID := chi.URLParam(r, "msgID")

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		h.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	msg, err := h.loadForUpdate(w, r, channelID, msgID)
	if msg == nil || err != nil {
		return
	}

	if !msg.MarkRead(req.UserID) {
		// Already read; nothing to persist or announce.
		h.JSON(w, http.StatusOK, msg)
		return
	}
	h.finishUpdate(w, r, msg, "read")
}

// loadForUpdate fetches the record or writes the error response.
func (h *Handler) loadForUpdate(w http.ResponseWriter, r *http.Request, channelID, msgID string) (*models.MessageRecord, error) {
	msg, err := h.db.GetMessage(r.Context(), channelID, msgID)
	if err != nil {
		h.log.Error().Err(err).Str("channel", channelID).Str("msg", msgID).Msg("load message failed")
		h.Error(w, http.StatusInternalServerError, "failed to load message")
		return nil, err
	}
	if msg == nil {
		h.Error(w, http.StatusNotFound, "message not found")
		return nil, nil
	}
	return msg, nil
}

// finishUpdate persists the mutation, evicts the stale cache tail, and fans
// the update frame out.
func (h *Handler) finishUpdate(w http.ResponseWriter, r *http.Request, msg *models.MessageRecord, kind string) {
	if err := h.db.UpdateMessage(r.Context(), msg); err != nil {
		h.log.Error().Err(err).Str("msg", msg.ID).Msg("update message failed")
		h.Error(w, http.StatusInternalServerError, "failed to update message")
		return
	}
	metrics.MessageUpdates.WithLabelValues(kind).Inc()

	if h.cache != nil && msg.ParentID == "" {
		if err := h.cache.DropRecent(r.Context(), msg.GroupID); err != nil {
			h.log.Warn().Err(err).Str("channel", msg.GroupID).Msg("cache evict failed")
		}
	}

	h.hub.Publish(r.Context(), hub.FeedKey(msg.GroupID), models.UpdateEnvelope(msg))
	metrics.FramesDelivered.WithLabelValues(models.FrameUpdate).Inc()

	h.JSON(w, http.StatusOK, msg)
}
