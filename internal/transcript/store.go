// Package transcript persists per-session conversation history in PostgreSQL.
//
// The transcript is an append-only log: the store exposes exactly two
// operations, appending one turn and reading a session's history in order.
// No update or delete exists at this layer.
//
// Store is safe for concurrent use; all state lives in the database.
package transcript

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// DB is the subset of pgxpool.Pool the store consumes.
// Defined here, by the consumer, so tests can substitute a fake.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	insertTurnSQL = `
		INSERT INTO turns (session_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	selectHistorySQL = `
		SELECT role, content
		FROM turns
		WHERE session_id = $1
		ORDER BY id ASC`

	selectTurnsSQL = `
		SELECT id, session_id, role, content, created_at
		FROM turns
		WHERE session_id = $1
		ORDER BY id ASC`
)

// Store reads and appends transcript turns.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a Store. logger may be nil.
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Append inserts one turn at the end of the session's transcript.
// The insert is durable and visible to subsequent History calls once
// Append returns.
func (s *Store) Append(ctx context.Context, sessionID string, role Role, content string) (*Turn, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}
	if !role.Persistable() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	turn := &Turn{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}
	row := s.db.QueryRow(ctx, insertTurnSQL, sessionID, string(role), content)
	if err := row.Scan(&turn.ID, &turn.CreatedAt); err != nil {
		return nil, fmt.Errorf("appending %s turn: %w", role, err)
	}

	s.logger.Debug("appended turn",
		"session_id", sessionID,
		"role", role,
		"turn_id", turn.ID,
		"content_len", len(content))
	return turn, nil
}

// History returns all turns for the session in conversation order,
// projected to role and content.
func (s *Store) History(ctx context.Context, sessionID string) ([]Message, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}

	rows, err := s.db.Query(ctx, selectHistorySQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var history []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}

	s.logger.Debug("loaded history", "session_id", sessionID, "turns", len(history))
	return history, nil
}

// Turns returns the session's full transcript with identifiers and
// timestamps, in conversation order.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	if sessionID == "" {
		return nil, ErrEmptySession
	}

	rows, err := s.db.Query(ctx, selectTurnsSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
	}
	return turns, nil
}
