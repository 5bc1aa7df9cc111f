package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/gatherhall/chatsync/internal/hub"
	"github.com/gatherhall/chatsync/internal/store"
)

// maxTextLength bounds a message body. Longer input is truncated, not
// rejected.
const maxTextLength = 4000

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db    store.DataStore
	cache *store.RedisStore // nil in dev without REDIS_URL
	hub   *hub.Hub
	log   zerolog.Logger
}

// NewHandler creates a new Handler with the given stores and hub.
func NewHandler(db store.DataStore, cache *store.RedisStore, h *hub.Hub, log zerolog.Logger) *Handler {
	return &Handler{db: db, cache: cache, hub: h, log: log}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeText trims the body, strips control characters except newline and
// tab, and enforces the length cap.
func sanitizeText(text string) string {
	text = strings.TrimSpace(text)

	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, text)

	return truncate(text, maxTextLength)
}

// sanitizeName trims and limits a display name to 100 characters, removing
// control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	return truncate(name, 100)
}

// truncate caps s at max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
