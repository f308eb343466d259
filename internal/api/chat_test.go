package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/internal/conversation"
	"github.com/chatrelay/chatrelay/internal/log"
	"github.com/chatrelay/chatrelay/internal/testutil"
	"github.com/chatrelay/chatrelay/internal/transcript"
)

// fakeConversations scripts the orchestration layer.
type fakeConversations struct {
	reply      *conversation.Reply
	respondErr error

	sessionID string
	fragments []string
	streamErr error
}

func (f *fakeConversations) Respond(_ context.Context, _, _ string) (*conversation.Reply, error) {
	if f.respondErr != nil {
		return nil, f.respondErr
	}
	return f.reply, nil
}

func (f *fakeConversations) Stream(_ context.Context, _, _ string) (string, iter.Seq[string], error) {
	if f.streamErr != nil {
		return "", nil, f.streamErr
	}
	seq := func(yield func(string) bool) {
		for _, fr := range f.fragments {
			if !yield(fr) {
				return
			}
		}
	}
	return f.sessionID, seq, nil
}

// fakeTranscripts scripts the transcript reader.
type fakeTranscripts struct {
	turns []transcript.Turn
	err   error
}

func (f *fakeTranscripts) Turns(_ context.Context, sessionID string) ([]transcript.Turn, error) {
	if sessionID == "" {
		return nil, transcript.ErrEmptySession
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.turns, nil
}

func newTestHandler(conv Conversations, tr TranscriptReader) *ChatHandler {
	return NewChatHandler(conv, tr, log.NewNop())
}

func TestHandleChat(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{reply: &conversation.Reply{SessionID: "s1", Answer: "hi"}}
	h := newTestHandler(conv, &fakeTranscripts{})

	body, _ := json.Marshal(ChatRequest{Message: "hello", SessionID: "s1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.handleChat(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var reply conversation.Reply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "s1", reply.SessionID)
	assert.Equal(t, "hi", reply.Answer)
}

func TestHandleChatInvalidBody(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&fakeConversations{}, &fakeTranscripts{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("not json"))
	w := httptest.NewRecorder()

	h.handleChat(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestHandleChatEmptyMessage(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{respondErr: conversation.ErrEmptyMessage}
	h := newTestHandler(conv, &fakeTranscripts{})

	body, _ := json.Marshal(ChatRequest{Message: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.handleChat(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "message is required")
}

func TestHandleChatInternalError(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{respondErr: errors.New("db down")}
	h := newTestHandler(conv, &fakeTranscripts{})

	body, _ := json.Marshal(ChatRequest{Message: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.handleChat(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// Internal detail is never leaked to the client.
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestHandleStream(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{
		sessionID: "s-stream",
		fragments: []string{"Hel", "lo ", "world"},
	}
	h := newTestHandler(conv, &fakeTranscripts{})

	body, _ := json.Marshal(ChatRequest{Message: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.handleStream(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "s-stream", w.Header().Get("X-Session-Id"))

	events := testutil.ParseSSEEvents(t, w.Body.String())
	chunks := testutil.FindAllEvents(events, "chunk")
	require.Len(t, chunks, 3)

	var first chunkData
	require.NoError(t, json.Unmarshal([]byte(chunks[0].Data), &first))
	assert.Equal(t, "Hel", first.Text)

	done := testutil.FindEvent(events, "done")
	require.NotNil(t, done)
	var final doneData
	require.NoError(t, json.Unmarshal([]byte(done.Data), &final))
	assert.Equal(t, "Hello world", final.Response)
	assert.Equal(t, "s-stream", final.SessionID)
}

func TestHandleStreamEmptyMessage(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{streamErr: conversation.ErrEmptyMessage}
	h := newTestHandler(conv, &fakeTranscripts{})

	body, _ := json.Marshal(ChatRequest{Message: "  "})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.handleStream(w, req)

	// Failure before the first event is a plain JSON error, not SSE.
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "message is required")
}

func TestHandleStreamInvalidBody(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&fakeConversations{}, &fakeTranscripts{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader("{"))
	w := httptest.NewRecorder()

	h.handleStream(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestHandleMessages(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tr := &fakeTranscripts{turns: []transcript.Turn{
		{ID: 1, SessionID: "s1", Role: transcript.RoleUser, Content: "hello", CreatedAt: now},
		{ID: 2, SessionID: "s1", Role: transcript.RoleAssistant, Content: "hi", CreatedAt: now},
	}}
	h := newTestHandler(&fakeConversations{}, tr)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/messages", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		SessionID string            `json:"session_id"`
		Messages  []transcript.Turn `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "s1", resp.SessionID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, transcript.RoleUser, resp.Messages[0].Role)
}

func TestHandleMessagesUnknownSession(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&fakeConversations{}, &fakeTranscripts{})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/nope/messages", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"messages":[]`)
}

func TestHandleMessagesStorageFailure(t *testing.T) {
	t.Parallel()

	tr := &fakeTranscripts{err: errors.New("db gone")}
	h := newTestHandler(&fakeConversations{}, tr)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1/messages", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db gone")
}
