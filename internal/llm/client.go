// Package llm defines the completion provider contract and its
// OpenAI-compatible implementation.
//
// The provider is an external collaborator: callers must treat every error
// from this package as recoverable and degrade to a fallback reply rather
// than failing the conversation.
package llm

import (
	"context"
	"iter"
)

// Message is one entry of the context window sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client produces completions for an ordered message list.
type Client interface {
	// Complete returns the full reply in one shot.
	Complete(ctx context.Context, messages []Message) (string, error)

	// Stream returns a lazy, finite sequence of text fragments whose
	// in-order concatenation is the full reply. A transport failure
	// terminates the sequence early with a non-nil error as its final
	// element; fragments already yielded remain valid.
	Stream(ctx context.Context, messages []Message) iter.Seq2[string, error]
}
