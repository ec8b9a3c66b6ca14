package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nanlei/chatvault/internal/domain"
)

// MessageRepository implements domain.MessageStore on SQLite
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db.DB}
}

// Append stores msgs with ids assigned from the session's current maximum,
// all inside one transaction so readers never observe a partial batch.
func (r *MessageRepository) Append(ctx context.Context, sessionID string, msgs []domain.Message) ([]domain.Message, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var lastID int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM messages WHERE session_id = ?`, sessionID).Scan(&lastID)
	if err != nil {
		return nil, fmt.Errorf("failed to read last id: %w", err)
	}

	stored := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		lastID++
		m.ID = lastID
		m.SessionID = sessionID
		if m.Kind == "" {
			m.Kind = domain.KindText
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, id, sender_id, sender_name, timestamp, kind, content)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.SessionID, m.ID, m.SenderID, m.SenderName, m.Timestamp, m.Kind, m.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to insert message: %w", err)
		}
		stored[i] = m
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return stored, nil
}

// GetByID retrieves a single message
func (r *MessageRepository) GetByID(ctx context.Context, sessionID string, id int64) (*domain.Message, error) {
	var m domain.Message
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id, id, sender_id, sender_name, timestamp, kind, content
		 FROM messages WHERE session_id = ? AND id = ?`, sessionID, id).Scan(
		&m.SessionID, &m.ID, &m.SenderID, &m.SenderName, &m.Timestamp, &m.Kind, &m.Content)
	if err == sql.ErrNoRows {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &m, nil
}

// GetRange scans messages ordered by id within the inclusive id bounds.
// A bound of 0 is unbounded; limit <= 0 means no limit.
func (r *MessageRepository) GetRange(ctx context.Context, sessionID string, lowerID, upperID int64, ascending bool, limit int) ([]domain.Message, error) {
	where := []string{"session_id = ?"}
	args := []any{sessionID}

	if lowerID > 0 {
		where = append(where, "id >= ?")
		args = append(args, lowerID)
	}
	if upperID > 0 {
		where = append(where, "id <= ?")
		args = append(args, upperID)
	}

	order := "ASC"
	if !ascending {
		order = "DESC"
	}

	query := fmt.Sprintf(
		`SELECT session_id, id, sender_id, sender_name, timestamp, kind, content
		 FROM messages WHERE %s ORDER BY id %s`, strings.Join(where, " AND "), order)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query range: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.SessionID, &m.ID, &m.SenderID, &m.SenderName, &m.Timestamp, &m.Kind, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Count returns the number of messages stored for a session
func (r *MessageRepository) Count(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// LastID returns the highest assigned message id, 0 for an empty session
func (r *MessageRepository) LastID(ctx context.Context, sessionID string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(id), 0) FROM messages WHERE session_id = ?`, sessionID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read last id: %w", err)
	}
	return id, nil
}
