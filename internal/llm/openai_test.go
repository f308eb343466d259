package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer runs an httptest server emulating an OpenAI-compatible
// /chat/completions endpoint and returns a client pointed at it.
func newTestServer(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAI("test-key", srv.URL+"/v1", "test-model")
}

func TestComplete(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: "pong"}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	answer, err := client.Complete(context.Background(), []Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "ping"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", answer)
}

func TestCompleteProviderDown(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "ping"}})
	require.Error(t, err)
}

func TestCompleteNoChoices(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "ping"}})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestStream(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		for _, delta := range []string{"Hel", "lo ", "world"} {
			chunk := fmt.Sprintf(`{"choices":[{"delta":{"content":%q}}]}`, delta)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	})

	var got string
	for fragment, err := range client.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}) {
		require.NoError(t, err)
		got += fragment
	}
	assert.Equal(t, "Hello world", got)
}

func TestStreamOpenFailure(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	})

	var fragments []string
	var streamErr error
	for fragment, err := range client.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}) {
		if err != nil {
			streamErr = err
			break
		}
		fragments = append(fragments, fragment)
	}

	require.Error(t, streamErr)
	assert.Empty(t, fragments)
}

func TestStreamEarlyConsumerStop(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; i < 100; i++ {
			_, _ = fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n")
			flusher.Flush()
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	})

	count := 0
	for _, err := range client.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}) {
		require.NoError(t, err)
		count++
		if count == 3 {
			break // consumer walks away; stream must close cleanly
		}
	}
	assert.Equal(t, 3, count)
}
