package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nanlei/chatvault/internal/domain"
)

// SessionRepository implements domain.SessionStore on SQLite
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db.DB}
}

func (r *SessionRepository) Create(ctx context.Context, session *domain.ChatSession, members []domain.Member) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.Name, session.CreatedAt.UnixMilli(), session.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	for _, m := range members {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO session_members (session_id, member_id, name) VALUES (?, ?, ?)`,
			session.ID, m.MemberID, m.Name)
		if err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}
	}

	return tx.Commit()
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	var created, updated int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM chat_sessions WHERE id = ?`, id).Scan(
		&s.ID, &s.Name, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	s.CreatedAt = time.UnixMilli(created)
	s.UpdatedAt = time.UnixMilli(updated)
	return &s, nil
}

func (r *SessionRepository) List(ctx context.Context, limit, offset int) ([]domain.ChatSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM chat_sessions
		 ORDER BY updated_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.ChatSession
	for rows.Next() {
		var s domain.ChatSession
		var created, updated int64
		if err := rows.Scan(&s.ID, &s.Name, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.CreatedAt = time.UnixMilli(created)
		s.UpdatedAt = time.UnixMilli(updated)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Delete removes the session, its roster and its messages
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_members WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return tx.Commit()
}

func (r *SessionRepository) GetMember(ctx context.Context, sessionID string, memberID int64) (*domain.Member, error) {
	var m domain.Member
	err := r.db.QueryRowContext(ctx,
		`SELECT member_id, name FROM session_members WHERE session_id = ? AND member_id = ?`,
		sessionID, memberID).Scan(&m.MemberID, &m.Name)
	if err == sql.ErrNoRows {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

func (r *SessionRepository) ListMembers(ctx context.Context, sessionID string) ([]domain.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT member_id, name FROM session_members WHERE session_id = ? ORDER BY member_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.MemberID, &m.Name); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
