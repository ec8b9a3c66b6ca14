package domain

import (
	"context"
	"time"
)

// ChatSession represents one imported conversation, the unit of partitioning
// for every query.
type ChatSession struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member is one entry of a session's roster. A session has a small fixed set
// of members identified by the sender ids appearing in the transcript.
type Member struct {
	MemberID int64  `json:"member_id"`
	Name     string `json:"name"`
}

// SessionStore defines the interface for session and roster storage.
// Deleting a session deletes its messages and roster.
type SessionStore interface {
	Create(ctx context.Context, session *ChatSession, members []Member) error
	Get(ctx context.Context, id string) (*ChatSession, error)
	List(ctx context.Context, limit, offset int) ([]ChatSession, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error

	// GetMember returns the roster entry or ErrMemberNotFound.
	GetMember(ctx context.Context, sessionID string, memberID int64) (*Member, error)
	ListMembers(ctx context.Context, sessionID string) ([]Member, error)
}
