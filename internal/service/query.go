package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nanlei/chatvault/internal/config"
	"github.com/nanlei/chatvault/internal/domain"
	"github.com/nanlei/chatvault/internal/filter"
	"github.com/nanlei/chatvault/internal/repository/redis"
	"github.com/nanlei/chatvault/internal/window"
	"github.com/rs/zerolog/log"
)

// QueryService coordinates filter evaluation, context expansion and cursor
// resolution over the message store, and shapes the boundary responses.
//
// The query operations never return an error: this is the single place where
// every internal failure (missing session, invalid range, store I/O,
// cancellation) is logged and downgraded into the operation's documented
// empty payload, so the boundary contract never varies by error kind.
type QueryService struct {
	messages domain.MessageStore
	sessions domain.SessionStore
	cache    *redis.QueryCache
	cfg      config.QueryConfig
}

// NewQueryService creates a new query service. cache may be nil.
func NewQueryService(messages domain.MessageStore, sessions domain.SessionStore, cache *redis.QueryCache, cfg config.QueryConfig) *QueryService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 50
	}
	if cfg.AllRecentLimit <= 0 {
		cfg.AllRecentLimit = 200
	}
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = window.DefaultContextSize
	}
	if cfg.ScanBatchSize <= 0 {
		cfg.ScanBatchSize = 256
	}
	return &QueryService{
		messages: messages,
		sessions: sessions,
		cache:    cache,
		cfg:      cfg,
	}
}

// SearchMessages filters one session by keywords plus optional time range and
// sender, with offset pagination. Total reflects the full match count
// regardless of limit/offset truncation.
func (s *QueryService) SearchMessages(ctx context.Context, sessionID string, req domain.SearchRequest) domain.SearchResult {
	empty := domain.SearchResult{Messages: []domain.Message{}}

	f := filter.Filter{Keywords: req.Keywords}.FromTimeFilter(req.Filter)
	if req.SenderID != 0 {
		f.SenderIDs = []int64{req.SenderID}
	}
	if err := f.Validate(); err != nil {
		s.logSoftFailure("searchMessages", sessionID, err)
		return empty
	}
	if err := s.ensureSession(ctx, sessionID); err != nil {
		s.logSoftFailure("searchMessages", sessionID, err)
		return empty
	}

	opKey := searchOpKey(req)
	if s.cache != nil {
		if cached, err := s.cache.GetSearch(ctx, sessionID, opKey); err == nil && cached != nil {
			return *cached
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	pred := filter.Compile(f)
	result := empty
	err := s.forEachMatch(ctx, sessionID, pred, true, func(m domain.Message) bool {
		if result.Total >= offset && len(result.Messages) < limit {
			result.Messages = append(result.Messages, m)
		}
		result.Total++
		return true
	})
	if err != nil {
		s.logSoftFailure("searchMessages", sessionID, err)
		return empty
	}

	if s.cache != nil {
		if err := s.cache.SetSearch(ctx, sessionID, opKey, &result); err != nil {
			log.Debug().Err(err).Msg("failed to cache search result")
		}
	}
	return result
}

// GetMessageContext expands hit ids into context blocks. contextSize is
// messages on each side; a negative value picks the configured default.
// Close hits collapse into one block, each block fetched in a single range
// scan, and no message appears in two blocks.
func (s *QueryService) GetMessageContext(ctx context.Context, sessionID string, ids []int64, contextSize int) []domain.ContextBlock {
	empty := []domain.ContextBlock{}

	if len(ids) == 0 {
		return empty
	}
	if contextSize < 0 {
		contextSize = s.cfg.ContextSize
	}
	if err := s.ensureSession(ctx, sessionID); err != nil {
		s.logSoftFailure("getMessageContext", sessionID, err)
		return empty
	}

	blocks, _, err := s.materializeBlocks(ctx, sessionID, ids, contextSize)
	if err != nil {
		s.logSoftFailure("getMessageContext", sessionID, err)
		return empty
	}
	return blocks
}

// GetRecentMessages returns the most recent text messages, oldest first.
// Image and system rows are excluded; the agent consumes this variant.
func (s *QueryService) GetRecentMessages(ctx context.Context, sessionID string, tf *domain.TimeFilter, limit int) domain.SearchResult {
	if limit <= 0 {
		limit = s.cfg.RecentLimit
	}
	return s.recent(ctx, "getRecentMessages", sessionID, tf, limit, []domain.MessageKind{domain.KindText})
}

// GetAllRecentMessages is the message-viewer variant: every message kind,
// with a larger default limit.
func (s *QueryService) GetAllRecentMessages(ctx context.Context, sessionID string, tf *domain.TimeFilter, limit int) domain.SearchResult {
	if limit <= 0 {
		limit = s.cfg.AllRecentLimit
	}
	return s.recent(ctx, "getAllRecentMessages", sessionID, tf, limit, nil)
}

func (s *QueryService) recent(ctx context.Context, op, sessionID string, tf *domain.TimeFilter, limit int, kinds []domain.MessageKind) domain.SearchResult {
	empty := domain.SearchResult{Messages: []domain.Message{}}

	f := filter.Filter{Kinds: kinds}.FromTimeFilter(tf)
	if err := f.Validate(); err != nil {
		s.logSoftFailure(op, sessionID, err)
		return empty
	}
	if err := s.ensureSession(ctx, sessionID); err != nil {
		s.logSoftFailure(op, sessionID, err)
		return empty
	}

	pred := filter.Compile(f)
	result := empty
	err := s.forEachMatch(ctx, sessionID, pred, false, func(m domain.Message) bool {
		if len(result.Messages) < limit {
			result.Messages = append(result.Messages, m)
		}
		result.Total++
		return true
	})
	if err != nil {
		s.logSoftFailure(op, sessionID, err)
		return empty
	}

	// Collected newest-first; the page is returned in chronological order.
	reverseMessages(result.Messages)
	return result
}

// GetConversationBetween restricts a session to messages authored by either
// of two roster members, resolving both display names. An unknown member
// yields an empty result with empty names rather than an error.
func (s *QueryService) GetConversationBetween(ctx context.Context, sessionID string, req domain.ConversationRequest) domain.ConversationResult {
	empty := domain.ConversationResult{Messages: []domain.Message{}}

	if err := s.ensureSession(ctx, sessionID); err != nil {
		s.logSoftFailure("getConversationBetween", sessionID, err)
		return empty
	}

	m1, err := s.sessions.GetMember(ctx, sessionID, req.MemberID1)
	if err != nil {
		s.logSoftFailure("getConversationBetween", sessionID, err)
		return empty
	}
	m2, err := s.sessions.GetMember(ctx, sessionID, req.MemberID2)
	if err != nil {
		s.logSoftFailure("getConversationBetween", sessionID, err)
		return empty
	}

	f := filter.Filter{SenderIDs: []int64{req.MemberID1, req.MemberID2}}.FromTimeFilter(req.Filter)
	if err := f.Validate(); err != nil {
		s.logSoftFailure("getConversationBetween", sessionID, err)
		return empty
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	pred := filter.Compile(f)
	result := domain.ConversationResult{
		Messages:    []domain.Message{},
		Member1Name: m1.Name,
		Member2Name: m2.Name,
	}
	err = s.forEachMatch(ctx, sessionID, pred, false, func(m domain.Message) bool {
		if len(result.Messages) < limit {
			result.Messages = append(result.Messages, m)
		}
		result.Total++
		return true
	})
	if err != nil {
		s.logSoftFailure("getConversationBetween", sessionID, err)
		return empty
	}

	reverseMessages(result.Messages)
	return result
}

// FilterMessagesWithContext runs the filter over the whole session, expands
// every hit with context and reports aggregate stats. Time bounds must be
// provided together.
func (s *QueryService) FilterMessagesWithContext(ctx context.Context, sessionID string, req domain.FilterRequest) domain.FilteredMessages {
	empty := domain.FilteredMessages{Blocks: []domain.ContextBlock{}}

	if req.TimeFilter != nil && (req.TimeFilter.StartTs == 0) != (req.TimeFilter.EndTs == 0) {
		s.logSoftFailure("filterMessagesWithContext", sessionID, domain.ErrInvalidRange)
		return empty
	}

	f := filter.Filter{Keywords: req.Keywords, SenderIDs: req.SenderIDs}.FromTimeFilter(req.TimeFilter)
	if err := f.Validate(); err != nil {
		s.logSoftFailure("filterMessagesWithContext", sessionID, err)
		return empty
	}
	if err := s.ensureSession(ctx, sessionID); err != nil {
		s.logSoftFailure("filterMessagesWithContext", sessionID, err)
		return empty
	}

	contextSize := s.cfg.ContextSize
	if req.ContextSize != nil {
		contextSize = *req.ContextSize
	}

	pred := filter.Compile(f)
	var hits []int64
	err := s.forEachMatch(ctx, sessionID, pred, true, func(m domain.Message) bool {
		hits = append(hits, m.ID)
		return true
	})
	if err != nil {
		s.logSoftFailure("filterMessagesWithContext", sessionID, err)
		return empty
	}

	total, err := s.messages.Count(ctx, sessionID)
	if err != nil {
		s.logSoftFailure("filterMessagesWithContext", sessionID, err)
		return empty
	}

	blocks, chars, err := s.materializeBlocks(ctx, sessionID, hits, contextSize)
	if err != nil {
		s.logSoftFailure("filterMessagesWithContext", sessionID, err)
		return empty
	}

	return domain.FilteredMessages{
		Blocks: blocks,
		Stats: domain.FilterStats{
			TotalMessages: total,
			HitMessages:   int64(len(hits)),
			TotalChars:    chars,
		},
	}
}

// GetMultipleSessionsMessages reads the full contents of several sessions,
// one block per session in request order. Unknown session ids are skipped.
func (s *QueryService) GetMultipleSessionsMessages(ctx context.Context, sessionIDs []string) domain.FilteredMessages {
	empty := domain.FilteredMessages{Blocks: []domain.ContextBlock{}}
	out := domain.FilteredMessages{Blocks: []domain.ContextBlock{}}

	for _, sid := range sessionIDs {
		if err := s.ensureSession(ctx, sid); err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				log.Debug().Str("session_id", sid).Msg("skipping unknown session")
				continue
			}
			s.logSoftFailure("getMultipleSessionsMessages", sid, err)
			return empty
		}

		msgs, err := s.messages.GetRange(ctx, sid, 0, 0, true, 0)
		if err != nil {
			s.logSoftFailure("getMultipleSessionsMessages", sid, err)
			return empty
		}
		if len(msgs) == 0 {
			continue
		}

		out.Blocks = append(out.Blocks, domain.ContextBlock{Messages: msgs})
		out.Stats.TotalMessages += int64(len(msgs))
		out.Stats.HitMessages += int64(len(msgs))
		for _, m := range msgs {
			out.Stats.TotalChars += int64(utf8.RuneCountInString(m.Content))
		}
	}
	return out
}

// CreateSession creates a session with its roster for the import pipeline.
func (s *QueryService) CreateSession(ctx context.Context, name string, members []domain.Member) (*domain.ChatSession, error) {
	if name == "" {
		name = "Imported Chat"
	}
	now := time.Now()
	session := &domain.ChatSession{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Create(ctx, session, members); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session
func (s *QueryService) GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	return s.sessions.Get(ctx, sessionID)
}

// ListSessions lists sessions ordered by last update
func (s *QueryService) ListSessions(ctx context.Context, limit, offset int) ([]domain.ChatSession, error) {
	return s.sessions.List(ctx, limit, offset)
}

// ListMembers returns a session's roster
func (s *QueryService) ListMembers(ctx context.Context, sessionID string) ([]domain.Member, error) {
	return s.sessions.ListMembers(ctx, sessionID)
}

// DeleteSession deletes a session together with its messages and roster.
func (s *QueryService) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.invalidateSession(ctx, sessionID)
	return nil
}

// ImportMessages appends a transcript batch; the store assigns the ids.
// Unlike the query operations this is a hard-error path: the import pipeline
// needs to know its rows were not stored.
func (s *QueryService) ImportMessages(ctx context.Context, sessionID string, rows []domain.ImportMessage) ([]domain.Message, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	msgs := make([]domain.Message, len(rows))
	for i, r := range rows {
		msgs[i] = domain.Message{
			SenderID:   r.SenderID,
			SenderName: r.SenderName,
			Timestamp:  r.Timestamp,
			Kind:       r.Kind,
			Content:    r.Content,
		}
	}

	stored, err := s.messages.Append(ctx, sessionID, msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to append messages: %w", err)
	}

	if err := s.sessions.Touch(ctx, sessionID, time.Now()); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to touch session")
	}
	s.invalidateSession(ctx, sessionID)

	log.Info().Str("session_id", sessionID).Int("count", len(stored)).Msg("imported messages")
	return stored, nil
}

// materializeBlocks merges the context windows around the hit ids and fetches
// each merged window with one range scan. Returns the blocks plus the rune
// count of the content they carry.
func (s *QueryService) materializeBlocks(ctx context.Context, sessionID string, hits []int64, contextSize int) ([]domain.ContextBlock, int64, error) {
	merged := window.Merge(window.Around(hits, contextSize))

	blocks := make([]domain.ContextBlock, 0, len(merged))
	var chars int64
	for _, w := range merged {
		msgs, err := s.messages.GetRange(ctx, sessionID, w.Lo, w.Hi, true, 0)
		if err != nil {
			return nil, 0, err
		}
		if len(msgs) == 0 {
			continue
		}
		blocks = append(blocks, domain.ContextBlock{Messages: msgs})
		for _, m := range msgs {
			chars += int64(utf8.RuneCountInString(m.Content))
		}
	}
	return blocks, chars, nil
}

// forEachMatch scans the session in id order, in store batches, applying the
// predicate lazily. fn returning false stops the scan. Cancellation is
// checked between batches.
func (s *QueryService) forEachMatch(ctx context.Context, sessionID string, pred filter.Predicate, ascending bool, fn func(domain.Message) bool) error {
	var lower, upper int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := s.messages.GetRange(ctx, sessionID, lower, upper, ascending, s.cfg.ScanBatchSize)
		if err != nil {
			return err
		}
		for _, m := range batch {
			if pred.Matches(m) && !fn(m) {
				return nil
			}
		}
		if len(batch) < s.cfg.ScanBatchSize {
			return nil
		}
		last := batch[len(batch)-1].ID
		if ascending {
			lower = last + 1
		} else {
			upper = last - 1
			if upper <= 0 {
				return nil
			}
		}
	}
}

func (s *QueryService) ensureSession(ctx context.Context, sessionID string) error {
	_, err := s.sessions.Get(ctx, sessionID)
	return err
}

func (s *QueryService) invalidateSession(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.InvalidateSession(ctx, sessionID); err != nil {
		log.Debug().Err(err).Str("session_id", sessionID).Msg("failed to invalidate query cache")
	}
}

func (s *QueryService) logSoftFailure(op, sessionID string, err error) {
	ev := log.Warn()
	if errors.Is(err, domain.ErrSessionNotFound) ||
		errors.Is(err, domain.ErrMemberNotFound) ||
		errors.Is(err, domain.ErrInvalidRange) ||
		errors.Is(err, context.Canceled) {
		ev = log.Debug()
	}
	ev.Err(err).Str("op", op).Str("session_id", sessionID).Msg("query downgraded to empty result")
}

func reverseMessages(msgs []domain.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func searchOpKey(req domain.SearchRequest) string {
	var b strings.Builder
	b.WriteString("search|")
	b.WriteString(strings.Join(req.Keywords, ","))
	if req.Filter != nil {
		fmt.Fprintf(&b, "|%d-%d", req.Filter.StartTs, req.Filter.EndTs)
	}
	fmt.Fprintf(&b, "|l%d|o%d|s%d", req.Limit, req.Offset, req.SenderID)

	h := fnv.New64a()
	h.Write([]byte(b.String()))
	return fmt.Sprintf("search:%x", h.Sum64())
}
