package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/internal/conversation"
	"github.com/chatrelay/chatrelay/internal/log"
)

func newTestServer() *Server {
	conv := &fakeConversations{
		reply:     &conversation.Reply{SessionID: "s1", Answer: "hi"},
		sessionID: "s1",
		fragments: []string{"hi"},
	}
	return NewServer(ServerConfig{Logger: log.NewNop()}, conv, &fakeTranscripts{}, &fakePinger{})
}

func TestServerRoutes(t *testing.T) {
	t.Parallel()

	srv := newTestServer()
	handler := srv.Handler()

	tests := []struct {
		name   string
		method string
		path   string
		body   []byte
		want   int
	}{
		{"health", http.MethodGet, "/health", nil, http.StatusOK},
		{"ready", http.MethodGet, "/ready", nil, http.StatusOK},
		{"chat", http.MethodPost, "/api/v1/chat", mustJSON(t, ChatRequest{Message: "hi"}), http.StatusOK},
		{"chat wrong method", http.MethodGet, "/api/v1/chat", nil, http.StatusMethodNotAllowed},
		{"messages", http.MethodGet, "/api/v1/sessions/s1/messages", nil, http.StatusOK},
		{"unknown route", http.MethodGet, "/nope", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, tt.path, bytes.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestServerRateLimitWired(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{reply: &conversation.Reply{SessionID: "s1", Answer: "hi"}}
	srv := NewServer(ServerConfig{
		Logger:    log.NewNop(),
		RateLimit: 1,
		RateBurst: 1,
	}, conv, &fakeTranscripts{}, &fakePinger{})
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.9:1"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
