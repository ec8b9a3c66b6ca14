package domain

import "errors"

// Error taxonomy for the query subsystem. Internal components return these
// typed errors; the query service is the single place that downgrades them
// into the documented empty response shapes.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrMemberNotFound   = errors.New("member not found")
	ErrInvalidRange     = errors.New("invalid time range")
	ErrStoreUnavailable = errors.New("store unavailable")
)
