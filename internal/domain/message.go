package domain

import "context"

// MessageKind classifies imported transcript rows. The message viewer shows
// every kind; the agent-facing "recent" variant keeps only text.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindSystem MessageKind = "system"
)

// Message represents one transcript row. Messages are immutable once stored;
// the id is assigned by the store at ingest and strictly increases within a
// session, so it is the only stable pagination and context anchor. Timestamps
// from imported transcripts can carry clock skew and must never drive
// ordering.
type Message struct {
	ID         int64       `json:"id"`
	SessionID  string      `json:"session_id"`
	SenderID   int64       `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	Timestamp  int64       `json:"timestamp"` // epoch millis
	Kind       MessageKind `json:"kind"`
	Content    string      `json:"content"`
}

// MessageStore defines the interface for transcript storage. Range bounds are
// inclusive message ids; 0 means unbounded on that side (ids start at 1).
// A limit <= 0 means no limit.
type MessageStore interface {
	// Append stores the given messages, assigning the next ids for the
	// session inside a single transaction. Returns the stored messages
	// with ids and session id filled in.
	Append(ctx context.Context, sessionID string, msgs []Message) ([]Message, error)

	// GetByID returns a single message or ErrMessageNotFound.
	GetByID(ctx context.Context, sessionID string, id int64) (*Message, error)

	// GetRange returns messages with lowerID <= id <= upperID ordered by id.
	GetRange(ctx context.Context, sessionID string, lowerID, upperID int64, ascending bool, limit int) ([]Message, error)

	// Count returns the number of messages stored for the session.
	Count(ctx context.Context, sessionID string) (int64, error)

	// LastID returns the highest assigned id for the session, 0 if none.
	LastID(ctx context.Context, sessionID string) (int64, error)
}
