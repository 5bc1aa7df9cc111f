package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatherhall/chatsync/internal/models"
)

// RepliesResponse is the thread-expansion payload.
type RepliesResponse struct {
	Replies []models.MessageRecord `json:"replies"`
}

// ListReplies handles GET /channels/{id}/threads/{parentID}.
func (h *Handler) ListReplies(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	parentID := chi.URLParam(r, "parentID")

	replies, err := h.db.ListReplies(r.Context(), channelID, parentID)
	if err != nil {
		h.log.Error().Err(err).Str("channel", channelID).Str("parent", parentID).Msg("list replies failed")
		h.Error(w, http.StatusInternalServerError, "failed to load replies")
		return
	}

	h.JSON(w, http.StatusOK, RepliesResponse{Replies: replies})
}

// CountReplies handles GET /channels/{id}/threads/{parentID}/count.
func (h *Handler) CountReplies(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")
	parentID := chi.URLParam(r, "parentID")

	n, err := h.db.CountReplies(r.Context(), channelID, parentID)
	if err != nil {
		h.log.Error().Err(err).Str("channel", channelID).Str("parent", parentID).Msg("count replies failed")
		h.Error(w, http.StatusInternalServerError, "failed to count replies")
		return
	}

	h.JSON(w, http.StatusOK, map[string]int{"count": n})
}
