package domain

// TimeFilter bounds are inclusive epoch millis; 0 means unbounded on that
// side.
type TimeFilter struct {
	StartTs int64 `json:"start_ts,omitempty"`
	EndTs   int64 `json:"end_ts,omitempty"`
}

// SearchRequest is a keyword search over one session. Keywords match by
// case-insensitive substring containment, any keyword present is a hit.
type SearchRequest struct {
	Keywords []string    `json:"keywords" validate:"required,min=1,dive,min=1"`
	Filter   *TimeFilter `json:"filter,omitempty"`
	Limit    int         `json:"limit" validate:"omitempty,min=1,max=500"`
	Offset   int         `json:"offset" validate:"omitempty,min=0"`
	SenderID int64       `json:"sender_id,omitempty"`
}

// SearchResult carries the page plus the full match count so callers can
// render pagination controls.
type SearchResult struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}

// ContextRequest expands one or more hit ids into surrounding messages.
// ContextSize is messages on each side; nil picks the default.
type ContextRequest struct {
	MessageID   int64   `json:"message_id,omitempty"`
	MessageIDs  []int64 `json:"message_ids,omitempty"`
	ContextSize *int    `json:"context_size,omitempty" validate:"omitempty,min=0,max=200"`
}

// ContextBlock is a maximal contiguous run of messages produced by merging
// overlapping context windows. Blocks never share a message.
type ContextBlock struct {
	Messages []Message `json:"messages"`
}

// BeforeRequest pages backward: up to Limit messages with id < BeforeID.
type BeforeRequest struct {
	BeforeID int64       `json:"before_id" validate:"required,min=1"`
	Limit    int         `json:"limit" validate:"omitempty,max=500"`
	Filter   *TimeFilter `json:"filter,omitempty"`
	SenderID int64       `json:"sender_id,omitempty"`
	Keywords []string    `json:"keywords,omitempty"`
}

// AfterRequest pages forward: up to Limit messages with id > AfterID.
// AfterID 0 starts from the beginning of the session.
type AfterRequest struct {
	AfterID  int64       `json:"after_id" validate:"omitempty,min=0"`
	Limit    int         `json:"limit" validate:"omitempty,max=500"`
	Filter   *TimeFilter `json:"filter,omitempty"`
	SenderID int64       `json:"sender_id,omitempty"`
	Keywords []string    `json:"keywords,omitempty"`
}

// Page is one cursor-pagination result, ascending by id, with HasMore set
// when at least one more matching message exists beyond the page.
type Page struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// ConversationRequest restricts a session to messages between two members.
type ConversationRequest struct {
	MemberID1 int64       `json:"member_id_1" validate:"required"`
	MemberID2 int64       `json:"member_id_2" validate:"required"`
	Filter    *TimeFilter `json:"filter,omitempty"`
	Limit     int         `json:"limit" validate:"omitempty,min=1,max=1000"`
}

// ConversationResult includes both display names resolved from the roster.
// Unknown members yield an empty result with empty names, not an error.
type ConversationResult struct {
	Messages    []Message `json:"messages"`
	Total       int       `json:"total"`
	Member1Name string    `json:"member1_name"`
	Member2Name string    `json:"member2_name"`
}

// FilterRequest filters a session and expands every hit with context.
// TimeFilter bounds must be provided together or not at all.
type FilterRequest struct {
	Keywords    []string    `json:"keywords,omitempty"`
	TimeFilter  *TimeFilter `json:"time_filter,omitempty"`
	SenderIDs   []int64     `json:"sender_ids,omitempty"`
	ContextSize *int        `json:"context_size,omitempty" validate:"omitempty,min=0,max=200"`
}

// FilterStats are aggregate counters computed once per filter invocation.
// TotalChars counts content runes across the messages in the returned blocks.
type FilterStats struct {
	TotalMessages int64 `json:"total_messages"`
	HitMessages   int64 `json:"hit_messages"`
	TotalChars    int64 `json:"total_chars"`
}

// FilteredMessages is the blocks-plus-stats shape shared by the filter and
// multi-session operations.
type FilteredMessages struct {
	Blocks []ContextBlock `json:"blocks"`
	Stats  FilterStats    `json:"stats"`
}

// BatchRequest reads the full contents of several sessions, concatenated in
// request order.
type BatchRequest struct {
	SessionIDs []string `json:"session_ids" validate:"required,min=1,dive,min=1"`
}

// ImportMessage is one row produced by the import pipeline. The store assigns
// the id.
type ImportMessage struct {
	SenderID   int64       `json:"sender_id" validate:"required"`
	SenderName string      `json:"sender_name"`
	Timestamp  int64       `json:"timestamp" validate:"required,min=1"`
	Kind       MessageKind `json:"kind" validate:"omitempty,oneof=text image system"`
	Content    string      `json:"content"`
}

// ImportRequest appends a batch of transcript rows to a session.
type ImportRequest struct {
	Messages []ImportMessage `json:"messages" validate:"required,min=1,dive"`
}

// CreateSessionRequest creates a session together with its roster.
type CreateSessionRequest struct {
	Name    string   `json:"name"`
	Members []Member `json:"members,omitempty"`
}
