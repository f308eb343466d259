package transcript

import "time"

// Role identifies the author of a message. The set is closed: values are
// validated at the store boundary, never passed through as free-form text.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RoleSystem exists only in assembled context windows; it is never
	// persisted to the transcript.
	RoleSystem Role = "system"
)

// Persistable reports whether the role may be written to the transcript.
func (r Role) Persistable() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one persisted message in a session's transcript.
// ID is assigned by the database and is the sole ordering key.
type Turn struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a turn projected to what the completion provider needs.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
