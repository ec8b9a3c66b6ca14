package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/nanlei/chatvault/internal/api/middleware"
	"github.com/nanlei/chatvault/internal/api/response"
	"github.com/nanlei/chatvault/internal/domain"
	"github.com/nanlei/chatvault/internal/service"
)

var validate = validator.New()

// MessageHandler handles the query endpoints of a session's transcript
type MessageHandler struct {
	queries *service.QueryService
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(queries *service.QueryService) *MessageHandler {
	return &MessageHandler{queries: queries}
}

// Search handles keyword search with offset pagination
func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.BadRequest(w, "missing session ID")
		return
	}

	var req domain.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	response.OK(w, h.queries.SearchMessages(r.Context(), sessionID, req))
}

// Context expands hit ids into merged context blocks
func (h *MessageHandler) Context(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.BadRequest(w, "missing session ID")
		return
	}

	var req domain.ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	ids := req.MessageIDs
	if req.MessageID != 0 {
		ids = append(ids, req.MessageID)
	}
	if len(ids) == 0 {
		response.BadRequest(w, "no message ids given")
		return
	}

	contextSize := -1
	if req.ContextSize != nil {
		contextSize = *req.ContextSize
	}

	blocks := h.queries.GetMessageContext(r.Context(), sessionID, ids, contextSize)
	response.OK(w, map[string]any{"blocks": blocks})
}

// Recent returns the newest text messages in chronological order
func (h *MessageHandler) Recent(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.BadRequest(w, "missing session ID")
		return
	}

	tf, limit, err := recentParams(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	response.OK(w, h.queries.GetRecentMessages(r.Context(), sessionID, tf, limit))
}

// RecentAll is the viewer variant of Recent, including every message kind
func (h *MessageHandler) RecentAll(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.BadRequest(w, "missing session ID")
		return
	}

	tf, limit, err := recentParams(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	response.OK(w, h.queries.GetAllRecentMessages(r.Context(), sessionID, tf, limit))
}

// Conversation restricts the transcript to two roster members
func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.BadRequest(w, "missing session ID")
		return
	}

	var req domain.ConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	response.OK(w, h.queries.GetConversationBetween(r.Context(), sessionID, req))
}

// Before pages backward from an anchor message id
func (h *MessageHandler) Before(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.BadRequest(w, "missing session ID")
		return
	}

	var req domain.BeforeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	response.OK(w, h.queries.GetMessagesBefore(r.Context(), sessionID, req))
}

// After pages forward from an anchor message id
func (h *MessageHandler) After(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.BadRequest(w, "missing session ID")
		return
	}

	var req domain.AfterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	response.OK(w, h.queries.GetMessagesAfter(r.Context(), sessionID, req))
}

// Filter runs a combined filter and returns context blocks plus stats
func (h *MessageHandler) Filter(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.BadRequest(w, "missing session ID")
		return
	}

	var req domain.FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	response.OK(w, h.queries.FilterMessagesWithContext(r.Context(), sessionID, req))
}

// Batch reads the full contents of several sessions at once
func (h *MessageHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	response.OK(w, h.queries.GetMultipleSessionsMessages(r.Context(), req.SessionIDs))
}

func recentParams(r *http.Request) (*domain.TimeFilter, int, error) {
	q := r.URL.Query()

	var limit int
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, 0, errInvalidParam("limit")
		}
		limit = n
	}

	var tf *domain.TimeFilter
	startStr, endStr := q.Get("start_ts"), q.Get("end_ts")
	if startStr != "" || endStr != "" {
		tf = &domain.TimeFilter{}
		if startStr != "" {
			n, err := strconv.ParseInt(startStr, 10, 64)
			if err != nil {
				return nil, 0, errInvalidParam("start_ts")
			}
			tf.StartTs = n
		}
		if endStr != "" {
			n, err := strconv.ParseInt(endStr, 10, 64)
			if err != nil {
				return nil, 0, errInvalidParam("end_ts")
			}
			tf.EndTs = n
		}
	}

	return tf, limit, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string {
	return "invalid query parameter: " + string(e)
}
