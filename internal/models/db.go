package models

import (
	"time"

	"github.com/google/uuid"
)

// Role tags a message as written by the user or by the assistant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system" // Only ever sent to the gateway, never persisted
)

// Valid reports whether r may be stored in the transcript.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// DefaultConversationTitle is used until the user renames a conversation.
const DefaultConversationTitle = "New Chat"

// User represents a user in the database.
type User struct {
	ID             uuid.UUID `db:"id"`
	Email          string    `db:"email"`
	HashedPassword string    `db:"hashed_password"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Conversation is a titled, ordered container of messages owned by one user.
// UpdatedAt is the last-activity timestamp; every inserted message advances it.
type Conversation struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Message is one immutable turn of a conversation.
// Seq is assigned by the store on insert and breaks CreatedAt ties, so
// (CreatedAt, Seq) totally orders the messages of a conversation.
type Message struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConversationID uuid.UUID `db:"conversation_id" json:"conversation_id"`
	Seq            int64     `db:"seq" json:"seq"`
	Role           Role      `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Before reports whether m sorts strictly before other in transcript order.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.Seq < other.Seq
}
