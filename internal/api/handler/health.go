package handler

import (
	"context"
	"net/http"

	"github.com/nanlei/chatvault/internal/api/response"
	"github.com/nanlei/chatvault/internal/repository/redis"
	"github.com/rs/zerolog/log"
)

// HealthCheck returns a simple health check response
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "ok",
	})
}

// ReadyCheck returns readiness status including store connectivity
func ReadyCheck(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ping(r.Context()); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "store not ready")
			return
		}

		response.OK(w, map[string]string{
			"status": "ready",
		})
	}
}

// FlushCache clears every cached query result
func FlushCache(cache *redis.QueryCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cache == nil {
			response.OK(w, map[string]any{"flushed": 0})
			return
		}

		flushed, err := cache.FlushAll(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("failed to flush query cache")
			response.InternalError(w, "failed to flush cache")
			return
		}

		response.OK(w, map[string]any{"flushed": flushed})
	}
}
