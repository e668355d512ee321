package store

import (
	"context"
	"errors"

	"wolf-backend/internal/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a specific record is not found, or exists but
// is not owned by the requesting user.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("record already exists")

// CreateConversationParams contains parameters for creating a conversation.
type CreateConversationParams struct {
	ID     uuid.UUID // Generated by the store when uuid.Nil
	UserID uuid.UUID
	Title  string
}

// InsertMessageParams contains parameters for appending a message.
type InsertMessageParams struct {
	ID             uuid.UUID // Generated by the store when uuid.Nil
	ConversationID uuid.UUID
	UserID         uuid.UUID // Owner of the conversation
	Role           models.Role
	Content        string
}

// Store defines the interface for database operations.
// This allows for mocking in tests and switching between Postgres and SQLite.
type Store interface {
	// User operations
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error

	// Conversation operations
	CreateConversation(ctx context.Context, arg CreateConversationParams) (*models.Conversation, error)
	GetConversationByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Conversation, error)
	ListConversationsByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) // Most recent activity first
	RenameConversation(ctx context.Context, id uuid.UUID, userID uuid.UUID, title string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, id uuid.UUID, userID uuid.UUID) error // Cascades to messages

	// Transcript operations. Messages are append-only.
	InsertMessage(ctx context.Context, arg InsertMessageParams) (*models.Message, error) // Advances the conversation's updated_at
	ListMessages(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) ([]models.Message, error)
}
