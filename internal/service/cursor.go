package service

import (
	"context"

	"github.com/nanlei/chatvault/internal/domain"
	"github.com/nanlei/chatvault/internal/filter"
)

// Cursor pagination walks away from an anchor message id in either
// direction. The anchor itself is never part of the page, so walking "after"
// with the last returned id as the next anchor never repeats a row.

// GetMessagesBefore returns up to limit matching messages older than the
// anchor, in chronological order. A non-positive limit asks only whether
// anything older matches, reported through HasMore.
func (s *QueryService) GetMessagesBefore(ctx context.Context, sessionID string, req domain.BeforeRequest) domain.Page {
	empty := domain.Page{Messages: []domain.Message{}}

	f := filter.Filter{Keywords: req.Keywords}.FromTimeFilter(req.Filter)
	if req.SenderID != 0 {
		f.SenderIDs = []int64{req.SenderID}
	}
	if err := f.Validate(); err != nil {
		s.logSoftFailure("getMessagesBefore", sessionID, err)
		return empty
	}
	if err := s.ensureSession(ctx, sessionID); err != nil {
		s.logSoftFailure("getMessagesBefore", sessionID, err)
		return empty
	}

	pred := filter.Compile(f)

	if req.Limit <= 0 {
		probe, err := s.scanMatching(ctx, sessionID, pred, req.BeforeID, false, 1)
		if err != nil {
			s.logSoftFailure("getMessagesBefore", sessionID, err)
			return empty
		}
		return domain.Page{Messages: []domain.Message{}, HasMore: len(probe) > 0}
	}

	// One extra row decides HasMore without a second scan.
	msgs, err := s.scanMatching(ctx, sessionID, pred, req.BeforeID, false, req.Limit+1)
	if err != nil {
		s.logSoftFailure("getMessagesBefore", sessionID, err)
		return empty
	}

	hasMore := len(msgs) > req.Limit
	if hasMore {
		msgs = msgs[:req.Limit]
	}
	reverseMessages(msgs)
	return domain.Page{Messages: msgs, HasMore: hasMore}
}

// GetMessagesAfter returns up to limit matching messages newer than the
// anchor, in chronological order. An anchor of 0 starts from the beginning
// of the session.
func (s *QueryService) GetMessagesAfter(ctx context.Context, sessionID string, req domain.AfterRequest) domain.Page {
	empty := domain.Page{Messages: []domain.Message{}}

	f := filter.Filter{Keywords: req.Keywords}.FromTimeFilter(req.Filter)
	if req.SenderID != 0 {
		f.SenderIDs = []int64{req.SenderID}
	}
	if err := f.Validate(); err != nil {
		s.logSoftFailure("getMessagesAfter", sessionID, err)
		return empty
	}
	if err := s.ensureSession(ctx, sessionID); err != nil {
		s.logSoftFailure("getMessagesAfter", sessionID, err)
		return empty
	}

	pred := filter.Compile(f)

	if req.Limit <= 0 {
		probe, err := s.scanMatching(ctx, sessionID, pred, req.AfterID, true, 1)
		if err != nil {
			s.logSoftFailure("getMessagesAfter", sessionID, err)
			return empty
		}
		return domain.Page{Messages: []domain.Message{}, HasMore: len(probe) > 0}
	}

	msgs, err := s.scanMatching(ctx, sessionID, pred, req.AfterID, true, req.Limit+1)
	if err != nil {
		s.logSoftFailure("getMessagesAfter", sessionID, err)
		return empty
	}

	hasMore := len(msgs) > req.Limit
	if hasMore {
		msgs = msgs[:req.Limit]
	}
	return domain.Page{Messages: msgs, HasMore: hasMore}
}

// scanMatching collects up to want predicate matches strictly beyond the
// anchor id, ascending or descending. Descending with an anchor at or below
// the first id has nothing to visit.
func (s *QueryService) scanMatching(ctx context.Context, sessionID string, pred filter.Predicate, anchor int64, ascending bool, want int) ([]domain.Message, error) {
	var lower, upper int64
	if ascending {
		lower = anchor + 1
	} else {
		if anchor <= 1 {
			return []domain.Message{}, nil
		}
		upper = anchor - 1
	}

	out := make([]domain.Message, 0, want)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := s.messages.GetRange(ctx, sessionID, lower, upper, ascending, s.cfg.ScanBatchSize)
		if err != nil {
			return nil, err
		}
		for _, m := range batch {
			if pred.Matches(m) {
				out = append(out, m)
				if len(out) >= want {
					return out, nil
				}
			}
		}
		if len(batch) < s.cfg.ScanBatchSize {
			return out, nil
		}
		last := batch[len(batch)-1].ID
		if ascending {
			lower = last + 1
		} else {
			upper = last - 1
			if upper <= 0 {
				return out, nil
			}
		}
	}
}
