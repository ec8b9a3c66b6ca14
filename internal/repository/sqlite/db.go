package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nanlei/chatvault/internal/config"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database handle
type DB struct {
	DB *sql.DB
}

// NewDB opens or creates the archive database at the configured path
func NewDB(ctx context.Context, cfg config.SQLiteConfig) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	// WAL keeps concurrent readers off the single import writer
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &DB{DB: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *DB) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_sessions (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_members (
		session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		member_id  INTEGER NOT NULL,
		name       TEXT NOT NULL,
		PRIMARY KEY (session_id, member_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		session_id  TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		id          INTEGER NOT NULL,
		sender_id   INTEGER NOT NULL,
		sender_name TEXT NOT NULL,
		timestamp   INTEGER NOT NULL,
		kind        TEXT NOT NULL DEFAULT 'text',
		content     TEXT NOT NULL,
		PRIMARY KEY (session_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session_ts ON messages(session_id, timestamp);
	`
	_, err := s.DB.ExecContext(ctx, schema)
	return err
}

// Close closes the database handle
func (s *DB) Close() error {
	return s.DB.Close()
}

// Ping verifies database connectivity
func (s *DB) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}
