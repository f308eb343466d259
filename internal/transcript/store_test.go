package transcript

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chatrelay/chatrelay/internal/log"
)

func TestAppendRejectsInvalidInput(t *testing.T) {
	// Validation happens before any database access, so no DB is needed.
	store := NewStore(nil, log.NewNop())
	ctx := context.Background()

	t.Run("empty session", func(t *testing.T) {
		_, err := store.Append(ctx, "", RoleUser, "hello")
		assert.ErrorIs(t, err, ErrEmptySession)
	})

	t.Run("system role is never persisted", func(t *testing.T) {
		_, err := store.Append(ctx, "s1", RoleSystem, "preamble")
		assert.ErrorIs(t, err, ErrInvalidRole)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := store.Append(ctx, "s1", Role("moderator"), "hi")
		assert.ErrorIs(t, err, ErrInvalidRole)
	})
}

func TestHistoryRejectsEmptySession(t *testing.T) {
	store := NewStore(nil, log.NewNop())
	_, err := store.History(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptySession)
}

func TestTurnsRejectsEmptySession(t *testing.T) {
	store := NewStore(nil, log.NewNop())
	_, err := store.Turns(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptySession)
}

func TestRolePersistable(t *testing.T) {
	assert.True(t, RoleUser.Persistable())
	assert.True(t, RoleAssistant.Persistable())
	assert.False(t, RoleSystem.Persistable())
	assert.False(t, Role("").Persistable())
}
