package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nanlei/chatvault/internal/api/handler"
	customMiddleware "github.com/nanlei/chatvault/internal/api/middleware"
	"github.com/nanlei/chatvault/internal/config"
	"github.com/nanlei/chatvault/internal/repository/redis"
	"github.com/nanlei/chatvault/internal/service"
)

// NewRouter creates and configures the HTTP router. readyPing reports store
// connectivity for the readiness probe; rateLimiter and cache may be nil when
// Redis is disabled.
func NewRouter(cfg *config.Config, queries *service.QueryService, readyPing func(context.Context) error, rateLimiter *redis.RateLimiter, cache *redis.QueryCache) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	messageHandler := handler.NewMessageHandler(queries)
	sessionHandler := handler.NewSessionHandler(queries)
	rateLimitMiddleware := customMiddleware.NewRateLimitMiddleware(rateLimiter)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(readyPing))

		r.Group(func(r chi.Router) {
			r.Use(rateLimitMiddleware.Limit)

			r.Post("/cache/flush", handler.FlushCache(cache))

			// Cross-session reads
			r.Post("/messages/batch", messageHandler.Batch)

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", sessionHandler.List)
				r.Post("/", sessionHandler.Create)

				r.Route("/{sessionID}", func(r chi.Router) {
					r.Use(customMiddleware.SessionContext)

					r.Get("/", sessionHandler.Get)
					r.Delete("/", sessionHandler.Delete)
					r.Get("/members", sessionHandler.Members)
					r.Post("/conversation", messageHandler.Conversation)

					r.Route("/messages", func(r chi.Router) {
						r.Post("/", sessionHandler.Import)

						r.Post("/search", messageHandler.Search)
						r.Post("/context", messageHandler.Context)
						r.Get("/recent", messageHandler.Recent)
						r.Get("/recent/all", messageHandler.RecentAll)
						r.Post("/before", messageHandler.Before)
						r.Post("/after", messageHandler.After)
						r.Post("/filter", messageHandler.Filter)
					})
				})
			})
		})
	})

	return r
}
