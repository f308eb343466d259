package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"log/slog"

	"github.com/chatrelay/chatrelay/internal/conversation"
	"github.com/chatrelay/chatrelay/internal/transcript"
)

// Conversations is the orchestration surface the handlers consume.
// *conversation.Manager satisfies it.
type Conversations interface {
	Respond(ctx context.Context, sessionID, message string) (*conversation.Reply, error)
	Stream(ctx context.Context, sessionID, message string) (string, iter.Seq[string], error)
}

// TranscriptReader serves the session transcript endpoint.
// *transcript.Store satisfies it.
type TranscriptReader interface {
	Turns(ctx context.Context, sessionID string) ([]transcript.Turn, error)
}

// ChatHandler handles chat and transcript endpoints.
type ChatHandler struct {
	conversations Conversations
	transcripts   TranscriptReader
	logger        *slog.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(conversations Conversations, transcripts TranscriptReader, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{conversations: conversations, transcripts: transcripts, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/chat", h.handleChat)
	mux.HandleFunc("POST /api/v1/chat/stream", h.handleStream)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", h.handleMessages)
}

// ChatRequest is the body of both chat endpoints.
type ChatRequest struct {
	// Message is the user's input. Required.
	Message string `json:"message"`
	// SessionID continues an existing conversation. Empty starts a new
	// session; the assigned id is returned in the response.
	SessionID string `json:"session_id,omitempty"`
}

// handleChat handles the synchronous JSON endpoint.
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid request body: %v", err))
		return
	}

	reply, err := h.conversations.Respond(r.Context(), req.SessionID, req.Message)
	if err != nil {
		h.writeConversationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// chunkData is the payload of "chunk" events.
type chunkData struct {
	Text string `json:"text"`
}

// doneData is the payload of "done" events.
type doneData struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// errorData is the payload of "error" events.
type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleStream handles the SSE endpoint.
//
// The assigned session id is exposed in the X-Session-Id response header
// before the first event, so a client that starts a new session can learn
// its id without waiting for the terminal "done" event.
//
// Event types:
//   - chunk: partial text {"text": "..."}
//   - done:  final reply {"response": "...", "session_id": "..."}
//   - error: request failed {"code": "...", "message": "..."}
func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported by response writer")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid request body: %v", err))
		return
	}

	sessionID, seq, err := h.conversations.Stream(r.Context(), req.SessionID, req.Message)
	if err != nil {
		h.writeConversationError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Session-Id", sessionID)

	ctx := r.Context()
	h.logger.Info("SSE stream started", "session_id", sessionID)

	var full []byte
	for fragment := range seq {
		if ctx.Err() != nil {
			h.logger.Info("client disconnected", "session_id", sessionID)
			return
		}
		full = append(full, fragment...)
		writeEvent(w, flusher, "chunk", chunkData{Text: fragment})
	}

	if ctx.Err() != nil {
		h.logger.Info("client disconnected", "session_id", sessionID)
		return
	}

	writeEvent(w, flusher, "done", doneData{Response: string(full), SessionID: sessionID})
	h.logger.Info("SSE stream completed", "session_id", sessionID, "response_len", len(full))
}

// handleMessages returns the full transcript of one session.
func (h *ChatHandler) handleMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	turns, err := h.transcripts.Turns(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, transcript.ErrEmptySession) {
			writeError(w, http.StatusBadRequest, "invalid_request", "session id is required")
			return
		}
		h.logger.Error("loading transcript failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load messages")
		return
	}

	// A session with no turns is indistinguishable from one that never
	// existed; both answer with an empty list.
	if turns == nil {
		turns = []transcript.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   turns,
	})
}

// writeConversationError maps manager errors to HTTP responses.
func (h *ChatHandler) writeConversationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
	case r.Context().Err() != nil:
		// The client is gone; nothing useful can be written.
		h.logger.Info("request canceled", "path", r.URL.Path)
	default:
		h.logger.Error("chat request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process message")
	}
}

// writeEvent writes one SSE event and flushes it to the client.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to encode SSE payload", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
