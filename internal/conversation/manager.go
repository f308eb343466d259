// Package conversation orchestrates multi-turn chat sessions.
//
// The Manager owns the ordering guarantees of one logical turn:
//
//  1. The user turn is durably appended before the provider is invoked,
//     so user input survives provider or connection failures.
//  2. The assistant turn is appended exactly once, only after the
//     provider's output is fully drained. A partial stream is either
//     completed with a fallback or discarded, never committed truncated.
//
// Provider failures never surface to the caller; they degrade to a fixed
// fallback reply. Only storage failures on the user turn are fatal.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/llm"
	"github.com/chatrelay/chatrelay/internal/transcript"
)

// ErrEmptyMessage indicates a missing or blank user message.
// Rejected before any side effect.
var ErrEmptyMessage = errors.New("empty message")

// Store is the transcript access the manager consumes.
// *transcript.Store satisfies it; tests substitute fakes.
type Store interface {
	Append(ctx context.Context, sessionID string, role transcript.Role, content string) (*transcript.Turn, error)
	History(ctx context.Context, sessionID string) ([]transcript.Message, error)
}

// Config contains all required parameters for the Manager.
type Config struct {
	Store    Store
	Provider llm.Client
	Logger   *slog.Logger // nil = slog.Default()

	SystemPrompt  string // prepended to every context window, never persisted
	FallbackReply string // substituted when the provider fails; must be non-empty
	MaxHistory    int    // prior turns per context window; must be positive
}

func (cfg Config) validate() error {
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Provider == nil {
		return errors.New("provider is required")
	}
	if cfg.FallbackReply == "" {
		return errors.New("fallback reply is required")
	}
	if cfg.MaxHistory < 1 {
		return errors.New("max history must be positive")
	}
	return nil
}

// Reply is the result of a non-streaming chat turn.
type Reply struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// Manager is the session conversation manager. It is stateless between
// requests; all conversation state lives in the transcript store.
//
// Concurrent requests against the same session are not serialized: two
// simultaneous callers may interleave history reads and turn writes. At the
// target scale that is accepted; a per-session lock would be the hardening.
type Manager struct {
	store    Store
	provider llm.Client
	logger   *slog.Logger

	systemPrompt string
	fallback     string
	maxHistory   int
}

// NewManager creates a Manager from cfg.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("conversation manager config: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:        cfg.Store,
		provider:     cfg.Provider,
		logger:       logger,
		systemPrompt: cfg.SystemPrompt,
		fallback:     cfg.FallbackReply,
		maxHistory:   cfg.MaxHistory,
	}, nil
}

// prepare runs the shared front half of both paths: validate the message,
// resolve the session, load history, assemble the context window, and
// durably persist the user turn. Any error here is fatal for the request.
func (m *Manager) prepare(ctx context.Context, sessionID, message string) (string, []llm.Message, error) {
	if strings.TrimSpace(message) == "" {
		return "", nil, ErrEmptyMessage
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
		m.logger.Debug("created session", "session_id", sessionID)
	}

	history, err := m.store.History(ctx, sessionID)
	if err != nil {
		return "", nil, fmt.Errorf("loading history: %w", err)
	}

	window := BuildContext(m.systemPrompt, history, message, m.maxHistory)

	// The user turn must be durable before the provider call: if the
	// provider or the caller's connection dies, the input is not lost.
	if _, err := m.store.Append(ctx, sessionID, transcript.RoleUser, message); err != nil {
		return "", nil, fmt.Errorf("persisting user turn: %w", err)
	}

	return sessionID, window, nil
}

// commitAssistant appends the assistant turn. By this point the caller has
// already received the reply, so a storage failure here cannot be undone;
// it is logged as a transcript inconsistency and swallowed.
func (m *Manager) commitAssistant(ctx context.Context, sessionID, content string) {
	if _, err := m.store.Append(ctx, sessionID, transcript.RoleAssistant, content); err != nil {
		m.logger.Error("assistant turn not persisted, transcript is missing a reply",
			"session_id", sessionID,
			"error", err)
	}
}

// Respond handles one non-streaming chat turn.
func (m *Manager) Respond(ctx context.Context, sessionID, message string) (*Reply, error) {
	sessionID, window, err := m.prepare(ctx, sessionID, message)
	if err != nil {
		return nil, err
	}

	answer, err := m.provider.Complete(ctx, window)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request canceled: %w", ctx.Err())
		}
		m.logger.Error("provider failed, substituting fallback reply",
			"session_id", sessionID,
			"error", err)
		answer = m.fallback
	}

	m.commitAssistant(ctx, sessionID, answer)

	return &Reply{SessionID: sessionID, Answer: answer}, nil
}

// Stream handles one streaming chat turn.
//
// The session id and the durability of the user turn are guaranteed
// synchronously, before Stream returns; the returned sequence produces
// nothing until the caller ranges over it.
//
// Each fragment is recorded in the accumulator before it is yielded, so the
// committed assistant turn reflects exactly what was produced. When the
// upstream is exhausted the accumulated reply is committed as one assistant
// turn. If the consumer abandons the sequence or ctx is canceled, the
// partial accumulation is discarded and nothing is committed: the transcript
// holds complete replies or none at all.
func (m *Manager) Stream(ctx context.Context, sessionID, message string) (string, iter.Seq[string], error) {
	sessionID, window, err := m.prepare(ctx, sessionID, message)
	if err != nil {
		return "", nil, err
	}

	seq := func(yield func(string) bool) {
		var acc strings.Builder
		abandoned := false

		for fragment, err := range m.provider.Stream(ctx, window) {
			if err != nil {
				if ctx.Err() != nil {
					abandoned = true
					break
				}
				m.logger.Error("provider stream failed",
					"session_id", sessionID,
					"accumulated_len", acc.Len(),
					"error", err)
				if acc.Len() == 0 {
					// total failure must still leave the caller
					// (and the transcript) with a non-empty reply
					acc.WriteString(m.fallback)
					if !yield(m.fallback) {
						abandoned = true
					}
				}
				break
			}

			acc.WriteString(fragment)
			if !yield(fragment) {
				abandoned = true
				break
			}
		}

		if abandoned || ctx.Err() != nil {
			m.logger.Info("stream abandoned, discarding partial reply",
				"session_id", sessionID,
				"discarded_len", acc.Len())
			return
		}

		m.commitAssistant(ctx, sessionID, acc.String())
	}

	return sessionID, seq, nil
}
