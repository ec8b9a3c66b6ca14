package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/nanlei/chatvault/internal/api"
	"github.com/nanlei/chatvault/internal/config"
	"github.com/nanlei/chatvault/internal/repository/sqlite"
	"github.com/nanlei/chatvault/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   any             `json:"error"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := sqlite.NewDB(context.Background(), config.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "archive.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 30 * time.Second
	cfg.Query = config.QueryConfig{
		DefaultLimit:   50,
		RecentLimit:    50,
		AllRecentLimit: 200,
		ContextSize:    5,
		ScanBatchSize:  256,
	}

	svc := service.NewQueryService(
		sqlite.NewMessageRepository(db),
		sqlite.NewSessionRepository(db),
		nil,
		cfg.Query,
	)

	router := api.NewRouter(cfg, svc, db.Ping, nil, nil)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp, env
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvalidSessionIDRejected(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions/not-a-uuid/messages/search",
		map[string]any{"keywords": []string{"x"}})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestSearchValidatesRequest(t *testing.T) {
	srv := newTestServer(t)

	// keywords are required
	resp, _ := doJSON(t, http.MethodPost,
		srv.URL+"/api/v1/sessions/11111111-1111-1111-1111-111111111111/messages/search",
		map[string]any{})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchUnknownSessionReturnsEmptyPayload(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodPost,
		srv.URL+"/api/v1/sessions/99999999-9999-9999-9999-999999999999/messages/search",
		map[string]any{"keywords": []string{"coffee"}})

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Messages []json.RawMessage `json:"messages"`
		Total    int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Empty(t, result.Messages)
	assert.Zero(t, result.Total)
}

func TestImportThenQueryFlow(t *testing.T) {
	srv := newTestServer(t)

	// Create a session with its roster.
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/sessions", map[string]any{
		"name": "team chat",
		"members": []map[string]any{
			{"member_id": 1, "name": "Alice"},
			{"member_id": 2, "name": "Bob"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var session struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	require.NotEmpty(t, session.ID)

	base := fmt.Sprintf("%s/api/v1/sessions/%s", srv.URL, session.ID)

	// Import a small transcript.
	resp, env = doJSON(t, http.MethodPost, base+"/messages", map[string]any{
		"messages": []map[string]any{
			{"sender_id": 1, "sender_name": "Alice", "timestamp": 1000, "kind": "text", "content": "coffee tomorrow?"},
			{"sender_id": 2, "sender_name": "Bob", "timestamp": 2000, "kind": "text", "content": "sounds good"},
			{"sender_id": 1, "sender_name": "Alice", "timestamp": 3000, "kind": "text", "content": "nine then"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var imported struct {
		Imported int   `json:"imported"`
		LastID   int64 `json:"last_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &imported))
	assert.Equal(t, 3, imported.Imported)
	assert.Equal(t, int64(3), imported.LastID)

	// Search hits the imported rows.
	resp, env = doJSON(t, http.MethodPost, base+"/messages/search",
		map[string]any{"keywords": []string{"coffee"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Messages []struct {
			ID      int64  `json:"id"`
			Content string `json:"content"`
		} `json:"messages"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Messages, 1)
	assert.Equal(t, int64(1), result.Messages[0].ID)
	assert.Equal(t, 1, result.Total)

	// Cursor pagination over the same transcript.
	resp, env = doJSON(t, http.MethodPost, base+"/messages/after",
		map[string]any{"after_id": 0, "limit": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page struct {
		Messages []struct {
			ID int64 `json:"id"`
		} `json:"messages"`
		HasMore bool `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)

	// Delete and confirm the session is gone.
	resp, _ = doJSON(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
