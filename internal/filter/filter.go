// Package filter implements the pure message predicate shared by every query
// path: time range containment, sender set membership and keyword
// containment compose with logical AND; keywords compose with OR.
package filter

import (
	"strings"

	"github.com/nanlei/chatvault/internal/domain"
)

// Filter is the uncompiled form built from request parameters. Zero time
// bounds are unbounded; empty slices disable their category.
type Filter struct {
	Start     int64 // epoch millis, inclusive
	End       int64 // epoch millis, inclusive
	SenderIDs []int64
	Keywords  []string
	Kinds     []domain.MessageKind
}

// Validate rejects ranges where both bounds are set and end precedes start.
func (f Filter) Validate() error {
	if f.Start != 0 && f.End != 0 && f.End < f.Start {
		return domain.ErrInvalidRange
	}
	return nil
}

// FromTimeFilter copies the optional time bounds of a request into f.
func (f Filter) FromTimeFilter(tf *domain.TimeFilter) Filter {
	if tf != nil {
		f.Start = tf.StartTs
		f.End = tf.EndTs
	}
	return f
}

// Predicate is the compiled form. Compiling lowercases keywords once so the
// same predicate evaluates cheaply over materialized windows and lazy store
// scans alike.
type Predicate struct {
	start, end int64
	senders    map[int64]struct{}
	keywords   []string
	kinds      map[domain.MessageKind]struct{}
}

// Compile builds a Predicate from f.
func Compile(f Filter) Predicate {
	p := Predicate{start: f.Start, end: f.End}
	if len(f.SenderIDs) > 0 {
		p.senders = make(map[int64]struct{}, len(f.SenderIDs))
		for _, id := range f.SenderIDs {
			p.senders[id] = struct{}{}
		}
	}
	for _, kw := range f.Keywords {
		if kw == "" {
			continue
		}
		p.keywords = append(p.keywords, strings.ToLower(kw))
	}
	if len(f.Kinds) > 0 {
		p.kinds = make(map[domain.MessageKind]struct{}, len(f.Kinds))
		for _, k := range f.Kinds {
			p.kinds[k] = struct{}{}
		}
	}
	return p
}

// Matches reports whether m satisfies every filter category.
func (p Predicate) Matches(m domain.Message) bool {
	if p.start != 0 && m.Timestamp < p.start {
		return false
	}
	if p.end != 0 && m.Timestamp > p.end {
		return false
	}
	if p.senders != nil {
		if _, ok := p.senders[m.SenderID]; !ok {
			return false
		}
	}
	if p.kinds != nil {
		if _, ok := p.kinds[m.Kind]; !ok {
			return false
		}
	}
	if len(p.keywords) > 0 {
		content := strings.ToLower(m.Content)
		hit := false
		for _, kw := range p.keywords {
			if strings.Contains(content, kw) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}
