package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatherhall/chatsync/internal/hub"
	"github.com/gatherhall/chatsync/internal/metrics"
	"github.com/gatherhall/chatsync/internal/models"
)

// SubscribeTopic handles GET /topics/{topic}, upgrading to a broadcast
// socket. Topics carry ephemeral frames only; nothing is persisted or
// replayed.
func (h *Handler) SubscribeTopic(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("topic", topic).Msg("topic upgrade failed")
		return
	}

	h.hub.Attach(hub.TopicKey(topic), conn)
}

// PublishTopic handles POST /topics/{topic}: one typing signal, fanned out
// to every subscriber and then forgotten.
func (h *Handler) PublishTopic(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")

	var sig models.TypingSignal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if sig.Username == "" {
		h.Error(w, http.StatusBadRequest, "username is required")
		return
	}

	h.hub.Publish(r.Context(), hub.TopicKey(topic), models.TypingEnvelope(sig))
	metrics.TypingSignals.Inc()
	metrics.FramesDelivered.WithLabelValues(models.FrameTyping).Inc()

	h.JSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}
