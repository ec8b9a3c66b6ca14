package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nanlei/chatvault/internal/api"
	"github.com/nanlei/chatvault/internal/config"
	"github.com/nanlei/chatvault/internal/domain"
	"github.com/nanlei/chatvault/internal/repository/postgres"
	"github.com/nanlei/chatvault/internal/repository/redis"
	"github.com/nanlei/chatvault/internal/repository/sqlite"
	"github.com/nanlei/chatvault/internal/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file - try multiple locations
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			fmt.Printf("Loaded .env from: %s\n", p)
			break
		}
	}

	// Setup logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("store", cfg.Store.Driver).
		Msg("Starting chat archive server")

	// Initialize the message store
	var (
		messages  domain.MessageStore
		sessions  domain.SessionStore
		readyPing func(context.Context) error
	)
	switch cfg.Store.Driver {
	case "postgres":
		db, err := postgres.NewDB(context.Background(), cfg.Store.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		messages = postgres.NewMessageRepository(db)
		sessions = postgres.NewSessionRepository(db)
		readyPing = db.Ping
	case "sqlite", "":
		db, err := sqlite.NewDB(context.Background(), cfg.Store.SQLite)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open archive database")
		}
		defer db.Close()
		messages = sqlite.NewMessageRepository(db)
		sessions = sqlite.NewSessionRepository(db)
		readyPing = db.Ping
	default:
		log.Fatal().Str("driver", cfg.Store.Driver).Msg("Unknown store driver")
	}

	// Redis is optional; without it queries hit the store directly and no
	// rate limiting is applied.
	var (
		queryCache  *redis.QueryCache
		rateLimiter *redis.RateLimiter
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()

		queryCache = redis.NewQueryCache(redisClient)
		rateLimiter = redis.NewRateLimiter(
			redisClient,
			cfg.Security.RateLimit.RequestsPerMinute,
			cfg.Security.RateLimit.Burst,
		)
	}

	queryService := service.NewQueryService(messages, sessions, queryCache, cfg.Query)
	router := api.NewRouter(cfg, queryService, readyPing, rateLimiter, queryCache)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
