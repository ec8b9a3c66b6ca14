package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nanlei/chatvault/internal/config"
	"github.com/nanlei/chatvault/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(context.Background(), config.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "archive.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createSession(t *testing.T, db *DB, id string) {
	t.Helper()
	now := time.Now()
	err := NewSessionRepository(db).Create(context.Background(), &domain.ChatSession{
		ID:        id,
		Name:      "test",
		CreatedAt: now,
		UpdatedAt: now,
	}, []domain.Member{{MemberID: 1, Name: "Alice"}})
	require.NoError(t, err)
}

func seedMessages(t *testing.T, repo *MessageRepository, sessionID string, n int) {
	t.Helper()
	msgs := make([]domain.Message, n)
	for i := range msgs {
		msgs[i] = domain.Message{
			SenderID:   int64(i%2 + 1),
			SenderName: "Alice",
			Timestamp:  int64((i + 1) * 1000),
			Kind:       domain.KindText,
			Content:    "msg",
		}
	}
	_, err := repo.Append(context.Background(), sessionID, msgs)
	require.NoError(t, err)
}

func TestAppendAssignsSequentialIDs(t *testing.T) {
	db := newTestDB(t)
	createSession(t, db, "s1")
	repo := NewMessageRepository(db)
	ctx := context.Background()

	first, err := repo.Append(ctx, "s1", []domain.Message{
		{SenderID: 1, SenderName: "Alice", Timestamp: 1000, Content: "a"},
		{SenderID: 1, SenderName: "Alice", Timestamp: 2000, Content: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first[0].ID)
	assert.Equal(t, int64(2), first[1].ID)
	assert.Equal(t, "s1", first[0].SessionID)

	// A second batch continues from the session's maximum.
	second, err := repo.Append(ctx, "s1", []domain.Message{
		{SenderID: 1, SenderName: "Alice", Timestamp: 3000, Content: "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), second[0].ID)

	last, err := repo.LastID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestAppendDefaultsKindToText(t *testing.T) {
	db := newTestDB(t)
	createSession(t, db, "s1")
	repo := NewMessageRepository(db)
	ctx := context.Background()

	stored, err := repo.Append(ctx, "s1", []domain.Message{
		{SenderID: 1, SenderName: "Alice", Timestamp: 1000, Content: "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.KindText, stored[0].Kind)

	got, err := repo.GetByID(ctx, "s1", stored[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindText, got.Kind)
}

func TestIDsAreScopedPerSession(t *testing.T) {
	db := newTestDB(t)
	createSession(t, db, "s1")
	createSession(t, db, "s2")
	repo := NewMessageRepository(db)

	seedMessages(t, repo, "s1", 3)
	seedMessages(t, repo, "s2", 1)

	last, err := repo.LastID(context.Background(), "s2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), last)
}

func TestGetRangeBoundsInclusive(t *testing.T) {
	db := newTestDB(t)
	createSession(t, db, "s1")
	repo := NewMessageRepository(db)
	seedMessages(t, repo, "s1", 10)
	ctx := context.Background()

	msgs, err := repo.GetRange(ctx, "s1", 3, 5, true, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(3), msgs[0].ID)
	assert.Equal(t, int64(5), msgs[2].ID)

	// Zero bounds are unbounded.
	msgs, err = repo.GetRange(ctx, "s1", 0, 0, true, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 10)

	msgs, err = repo.GetRange(ctx, "s1", 8, 0, true, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(8), msgs[0].ID)
}

func TestGetRangeDescendingWithLimit(t *testing.T) {
	db := newTestDB(t)
	createSession(t, db, "s1")
	repo := NewMessageRepository(db)
	seedMessages(t, repo, "s1", 10)

	msgs, err := repo.GetRange(context.Background(), "s1", 0, 7, false, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(7), msgs[0].ID)
	assert.Equal(t, int64(5), msgs[2].ID)
}

func TestGetByIDNotFound(t *testing.T) {
	db := newTestDB(t)
	createSession(t, db, "s1")
	repo := NewMessageRepository(db)

	_, err := repo.GetByID(context.Background(), "s1", 42)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestCountAndEmptySession(t *testing.T) {
	db := newTestDB(t)
	createSession(t, db, "s1")
	repo := NewMessageRepository(db)
	ctx := context.Background()

	n, err := repo.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, n)

	last, err := repo.LastID(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, last)

	seedMessages(t, repo, "s1", 4)
	n, err = repo.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	db := newTestDB(t)
	createSession(t, db, "s1")
	sessions := NewSessionRepository(db)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	seedMessages(t, repo, "s1", 5)
	require.NoError(t, sessions.Delete(ctx, "s1"))

	n, err := repo.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = sessions.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
