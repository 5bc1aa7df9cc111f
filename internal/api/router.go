package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gatherhall/chatsync/internal/api/middleware"
	"github.com/gatherhall/chatsync/internal/handlers"
	"github.com/gatherhall/chatsync/internal/hub"
	"github.com/gatherhall/chatsync/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, db store.DataStore, cache *store.RedisStore, h *hub.Hub) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - allow all origins (clients connect from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	hdl := handlers.NewHandler(db, cache, h, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", hdl.Root)
	r.Get("/health", hdl.Health)
	r.Get("/channels", hdl.ListChannels)

	r.Route("/channels/{id}", func(r chi.Router) {
		r.Get("/messages", hdl.ListMessages)
		r.Post("/messages", hdl.PostMessage)
		r.Post("/messages/{msgID}/reactions", hdl.ToggleReaction)
		r.Post("/messages/{msgID}/read", hdl.MarkRead)
		r.Get("/threads/{parentID}", hdl.ListReplies)
		r.Get("/threads/{parentID}/count", hdl.CountReplies)
		r.Get("/feed", hdl.Feed)
	})

	r.Get("/topics/{topic}", hdl.SubscribeTopic)
	r.Post("/topics/{topic}", hdl.PublishTopic)

	return r
}
