package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nanlei/chatvault/internal/config"
	"github.com/nanlei/chatvault/internal/domain"
	"github.com/nanlei/chatvault/internal/repository/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSessionID = "11111111-1111-1111-1111-111111111111"

// newTestService builds a service over a throwaway SQLite archive seeded with
// one session of ten messages. The tiny scan batch size forces the scan loops
// through multiple store round trips.
func newTestService(t *testing.T) (*QueryService, *sqlite.DB) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewDB(ctx, config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "archive.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessions := sqlite.NewSessionRepository(db)
	messages := sqlite.NewMessageRepository(db)

	now := time.Now()
	err = sessions.Create(ctx, &domain.ChatSession{
		ID:        testSessionID,
		Name:      "weekend plans",
		CreatedAt: now,
		UpdatedAt: now,
	}, []domain.Member{
		{MemberID: 1, Name: "Alice"},
		{MemberID: 2, Name: "Bob"},
	})
	require.NoError(t, err)

	seed := []domain.Message{
		{SenderID: 1, SenderName: "Alice", Timestamp: 1000, Kind: domain.KindText, Content: "good morning"},
		{SenderID: 2, SenderName: "Bob", Timestamp: 2000, Kind: domain.KindText, Content: "want to grab Coffee?"},
		{SenderID: 1, SenderName: "Alice", Timestamp: 3000, Kind: domain.KindText, Content: "sure, coffee at ten"},
		{SenderID: 2, SenderName: "Bob", Timestamp: 4000, Kind: domain.KindImage, Content: "[photo]"},
		{SenderID: 1, SenderName: "Alice", Timestamp: 5000, Kind: domain.KindText, Content: "下午去健身房吗"},
		{SenderID: 2, SenderName: "Bob", Timestamp: 6000, Kind: domain.KindText, Content: "咖啡喝太多了"},
		{SenderID: 1, SenderName: "Alice", Timestamp: 7000, Kind: domain.KindSystem, Content: "Alice pinned a message"},
		{SenderID: 2, SenderName: "Bob", Timestamp: 8000, Kind: domain.KindText, Content: "see you at the gym"},
		{SenderID: 1, SenderName: "Alice", Timestamp: 9000, Kind: domain.KindText, Content: "on my way"},
		{SenderID: 2, SenderName: "Bob", Timestamp: 10000, Kind: domain.KindText, Content: "here"},
	}
	_, err = messages.Append(ctx, testSessionID, seed)
	require.NoError(t, err)

	svc := NewQueryService(messages, sessions, nil, config.QueryConfig{
		DefaultLimit:   50,
		RecentLimit:    50,
		AllRecentLimit: 200,
		ContextSize:    5,
		ScanBatchSize:  3,
	})
	return svc, db
}

func ids(msgs []domain.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestSearchMessagesKeyword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result := svc.SearchMessages(ctx, testSessionID, domain.SearchRequest{
		Keywords: []string{"coffee"},
	})

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, []int64{2, 3}, ids(result.Messages))
}

func TestSearchMessagesMultiKeywordCJK(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result := svc.SearchMessages(ctx, testSessionID, domain.SearchRequest{
		Keywords: []string{"咖啡", "健身"},
	})

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, []int64{5, 6}, ids(result.Messages))
}

func TestSearchMessagesTimeBoundsInclusive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result := svc.SearchMessages(ctx, testSessionID, domain.SearchRequest{
		Keywords: []string{"coffee"},
		Filter:   &domain.TimeFilter{StartTs: 2000, EndTs: 3000},
	})

	assert.Equal(t, []int64{2, 3}, ids(result.Messages))

	result = svc.SearchMessages(ctx, testSessionID, domain.SearchRequest{
		Keywords: []string{"coffee"},
		Filter:   &domain.TimeFilter{StartTs: 3000, EndTs: 6000},
	})

	assert.Equal(t, []int64{3}, ids(result.Messages))
}

func TestSearchMessagesOffsetKeepsTotal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result := svc.SearchMessages(ctx, testSessionID, domain.SearchRequest{
		Keywords: []string{"e"},
		Limit:    2,
		Offset:   1,
	})

	// Five contents contain an "e"; the page starts past the first of them.
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, []int64{3, 7}, ids(result.Messages))
}

func TestSearchMessagesSenderFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result := svc.SearchMessages(ctx, testSessionID, domain.SearchRequest{
		Keywords: []string{"coffee"},
		SenderID: 1,
	})

	assert.Equal(t, []int64{3}, ids(result.Messages))
}

func TestSearchMessagesUnknownSessionIsEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result := svc.SearchMessages(ctx, "no-such-session", domain.SearchRequest{
		Keywords: []string{"coffee"},
	})

	assert.Empty(t, result.Messages)
	assert.Zero(t, result.Total)
}

func TestSearchMessagesInvertedRangeIsEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result := svc.SearchMessages(ctx, testSessionID, domain.SearchRequest{
		Keywords: []string{"coffee"},
		Filter:   &domain.TimeFilter{StartTs: 5000, EndTs: 1000},
	})

	assert.Empty(t, result.Messages)
	assert.Zero(t, result.Total)
}

func TestGetMessageContextMergesAdjacentWindows(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	blocks := svc.GetMessageContext(ctx, testSessionID, []int64{2, 3}, 1)

	require.Len(t, blocks, 1)
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(blocks[0].Messages))
}

func TestGetMessageContextDisjointHits(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	blocks := svc.GetMessageContext(ctx, testSessionID, []int64{1, 9}, 1)

	require.Len(t, blocks, 2)
	assert.Equal(t, []int64{1, 2}, ids(blocks[0].Messages))
	assert.Equal(t, []int64{8, 9, 10}, ids(blocks[1].Messages))
}

func TestGetMessageContextDefaultSize(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Negative size falls back to the configured 5 on each side.
	blocks := svc.GetMessageContext(ctx, testSessionID, []int64{6}, -1)

	require.Len(t, blocks, 1)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, ids(blocks[0].Messages))
}

func TestGetRecentMessagesTextOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result := svc.GetRecentMessages(ctx, testSessionID, nil, 3)

	// Chronological page of the newest text rows; image and system excluded.
	assert.Equal(t, []int64{8, 9, 10}, ids(result.Messages))
	assert.Equal(t, 8, result.Total)
}

func TestGetAllRecentMessagesEveryKind(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result := svc.GetAllRecentMessages(ctx, testSessionID, nil, 4)

	assert.Equal(t, []int64{7, 8, 9, 10}, ids(result.Messages))
	assert.Equal(t, 10, result.Total)
}

func TestGetRecentMessagesTimeFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result := svc.GetRecentMessages(ctx, testSessionID, &domain.TimeFilter{StartTs: 1000, EndTs: 3000}, 10)

	assert.Equal(t, []int64{1, 2, 3}, ids(result.Messages))
	assert.Equal(t, 3, result.Total)
}

func TestGetConversationBetween(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result := svc.GetConversationBetween(ctx, testSessionID, domain.ConversationRequest{
		MemberID1: 1,
		MemberID2: 2,
		Limit:     4,
	})

	assert.Equal(t, "Alice", result.Member1Name)
	assert.Equal(t, "Bob", result.Member2Name)
	assert.Equal(t, []int64{7, 8, 9, 10}, ids(result.Messages))
	assert.Equal(t, 10, result.Total)
}

func TestGetConversationBetweenUnknownMember(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result := svc.GetConversationBetween(ctx, testSessionID, domain.ConversationRequest{
		MemberID1: 1,
		MemberID2: 99,
	})

	assert.Empty(t, result.Messages)
	assert.Empty(t, result.Member1Name)
	assert.Empty(t, result.Member2Name)
}

func TestFilterMessagesWithContextStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	size := 0
	result := svc.FilterMessagesWithContext(ctx, testSessionID, domain.FilterRequest{
		Keywords:    []string{"coffee"},
		ContextSize: &size,
	})

	require.Len(t, result.Blocks, 1)
	assert.Equal(t, []int64{2, 3}, ids(result.Blocks[0].Messages))
	assert.Equal(t, int64(10), result.Stats.TotalMessages)
	assert.Equal(t, int64(2), result.Stats.HitMessages)
	// Rune count of "want to grab Coffee?" plus "sure, coffee at ten".
	assert.Equal(t, int64(39), result.Stats.TotalChars)
}

func TestFilterMessagesWithContextNoFilters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// With no filter categories set every message is a hit, so the merged
	// windows collapse into one block covering the whole session.
	result := svc.FilterMessagesWithContext(ctx, testSessionID, domain.FilterRequest{})

	require.Len(t, result.Blocks, 1)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, ids(result.Blocks[0].Messages))
	assert.Equal(t, int64(10), result.Stats.TotalMessages)
	assert.Equal(t, result.Stats.TotalMessages, result.Stats.HitMessages)
	assert.Equal(t, int64(124), result.Stats.TotalChars)
}

func TestFilterMessagesWithContextOneSidedRange(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result := svc.FilterMessagesWithContext(ctx, testSessionID, domain.FilterRequest{
		TimeFilter: &domain.TimeFilter{StartTs: 1000},
	})

	assert.Empty(t, result.Blocks)
	assert.Zero(t, result.Stats.TotalMessages)
}

func TestGetMultipleSessionsMessages(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	sessions := sqlite.NewSessionRepository(db)
	messages := sqlite.NewMessageRepository(db)
	other := "22222222-2222-2222-2222-222222222222"
	now := time.Now()
	require.NoError(t, sessions.Create(ctx, &domain.ChatSession{
		ID: other, Name: "standup", CreatedAt: now, UpdatedAt: now,
	}, nil))
	_, err := messages.Append(ctx, other, []domain.Message{
		{SenderID: 3, SenderName: "Carol", Timestamp: 500, Kind: domain.KindText, Content: "hi"},
		{SenderID: 3, SenderName: "Carol", Timestamp: 600, Kind: domain.KindText, Content: "bye"},
	})
	require.NoError(t, err)

	result := svc.GetMultipleSessionsMessages(ctx, []string{testSessionID, "missing", other})

	require.Len(t, result.Blocks, 2)
	assert.Len(t, result.Blocks[0].Messages, 10)
	assert.Len(t, result.Blocks[1].Messages, 2)
	assert.Equal(t, int64(12), result.Stats.TotalMessages)
	assert.Equal(t, int64(12), result.Stats.HitMessages)
}

func TestImportMessagesUnknownSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ImportMessages(ctx, "missing", []domain.ImportMessage{
		{SenderID: 1, SenderName: "Alice", Timestamp: 1, Kind: domain.KindText, Content: "x"},
	})

	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestQueryDowngradesStoreError(t *testing.T) {
	messages := new(MockMessageStore)
	sessions := new(MockSessionStore)
	svc := NewQueryService(messages, sessions, nil, config.QueryConfig{})

	sessions.On("Get", mock.Anything, testSessionID).
		Return(&domain.ChatSession{ID: testSessionID}, nil)
	messages.On("GetRange", mock.Anything, testSessionID, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("disk I/O error"))

	result := svc.SearchMessages(context.Background(), testSessionID, domain.SearchRequest{
		Keywords: []string{"coffee"},
	})

	assert.Empty(t, result.Messages)
	assert.Zero(t, result.Total)
	messages.AssertExpectations(t)
}

func TestQueryDowngradesCancellation(t *testing.T) {
	svc, _ := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := svc.SearchMessages(ctx, testSessionID, domain.SearchRequest{
		Keywords: []string{"coffee"},
	})

	assert.Empty(t, result.Messages)
}
