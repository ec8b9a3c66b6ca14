package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nanlei/chatvault/internal/api/middleware"
	"github.com/nanlei/chatvault/internal/api/response"
	"github.com/nanlei/chatvault/internal/domain"
	"github.com/nanlei/chatvault/internal/service"
	"github.com/rs/zerolog/log"
)

// SessionHandler handles session lifecycle and transcript import
type SessionHandler struct {
	queries *service.QueryService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(queries *service.QueryService) *SessionHandler {
	return &SessionHandler{queries: queries}
}

// Create handles session creation with an optional roster
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	session, err := h.queries.CreateSession(r.Context(), req.Name, req.Members)
	if err != nil {
		log.Error().Err(err).Msg("failed to create session")
		response.InternalError(w, "failed to create session")
		return
	}

	response.Created(w, session)
}

// List returns sessions ordered by last update
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 50)
	offset := intParam(r, "offset", 0)

	sessions, err := h.queries.ListSessions(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list sessions")
		response.InternalError(w, "failed to list sessions")
		return
	}

	response.OK(w, sessions)
}

// Get returns one session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.BadRequest(w, "missing session ID")
		return
	}

	session, err := h.queries.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			response.NotFound(w, "session not found")
			return
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to get session")
		response.InternalError(w, "failed to get session")
		return
	}

	response.OK(w, session)
}

// Delete removes a session together with its messages and roster
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.BadRequest(w, "missing session ID")
		return
	}

	if err := h.queries.DeleteSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			response.NotFound(w, "session not found")
			return
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete session")
		response.InternalError(w, "failed to delete session")
		return
	}

	response.NoContent(w)
}

// Members returns a session's roster
func (h *SessionHandler) Members(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.BadRequest(w, "missing session ID")
		return
	}

	members, err := h.queries.ListMembers(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to list members")
		response.InternalError(w, "failed to list members")
		return
	}

	response.OK(w, members)
}

// Import appends a batch of transcript rows to a session
func (h *SessionHandler) Import(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.GetSessionID(r.Context())
	if !ok {
		response.BadRequest(w, "missing session ID")
		return
	}

	var req domain.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	stored, err := h.queries.ImportMessages(r.Context(), sessionID, req.Messages)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			response.NotFound(w, "session not found")
			return
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to import messages")
		response.InternalError(w, "failed to import messages")
		return
	}

	response.Created(w, map[string]any{
		"imported": len(stored),
		"last_id":  stored[len(stored)-1].ID,
	})
}

func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
