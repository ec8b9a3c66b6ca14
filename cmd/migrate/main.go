package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/nanlei/chatvault/internal/config"
	"github.com/nanlei/chatvault/internal/repository/postgres"
	"github.com/rs/zerolog/log"
)

// Applies the Postgres schema migrations. The SQLite store migrates itself
// on open, so this tool is only needed with STORE_DRIVER=postgres.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Store.Driver != "postgres" {
		log.Fatal().Str("driver", cfg.Store.Driver).Msg("Migrations only apply to the postgres store")
	}

	fmt.Printf("Migrating database at %s:%d...\n", cfg.Store.Postgres.Host, cfg.Store.Postgres.Port)

	if err := postgres.RunMigrations(cfg.Store.Postgres.DSN(), "file://migrations"); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	log.Info().Msg("Migrations applied")
}
