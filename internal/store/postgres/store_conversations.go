package postgres

import (
	"context"
	"errors"
	"fmt"

	"wolf-backend/internal/models"
	"wolf-backend/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const createConversation = `-- name: CreateConversation :one
INSERT INTO conversations (id, user_id, title)
VALUES ($1, $2, $3)
RETURNING id, user_id, title, created_at, updated_at;
`

func (s *PostgresStore) CreateConversation(ctx context.Context, arg store.CreateConversationParams) (*models.Conversation, error) {
	id := arg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := s.db.QueryRow(ctx, createConversation, id, arg.UserID, arg.Title)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("error creating conversation: %w", err)
	}
	return conv, nil
}

const getConversationByID = `-- name: GetConversationByID :one
SELECT id, user_id, title, created_at, updated_at
FROM conversations
WHERE id = $1 AND user_id = $2;
`

func (s *PostgresStore) GetConversationByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRow(ctx, getConversationByID, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning conversation: %w", err)
	}
	return conv, nil
}

const listConversationsByUser = `-- name: ListConversationsByUser :many
SELECT id, user_id, title, created_at, updated_at
FROM conversations
WHERE user_id = $1
ORDER BY updated_at DESC, created_at DESC;
`

func (s *PostgresStore) ListConversationsByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := s.db.Query(ctx, listConversationsByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning conversation row: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation rows: %w", err)
	}

	return conversations, nil
}

const renameConversation = `-- name: RenameConversation :one
UPDATE conversations
SET title = $3
WHERE id = $1 AND user_id = $2
RETURNING id, user_id, title, created_at, updated_at;
`

// RenameConversation changes the title. Renaming is not activity, so
// updated_at is left alone.
func (s *PostgresStore) RenameConversation(ctx context.Context, id uuid.UUID, userID uuid.UUID, title string) (*models.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRow(ctx, renameConversation, id, userID, title))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error renaming conversation: %w", err)
	}
	return conv, nil
}

const deleteConversation = `-- name: DeleteConversation :exec
DELETE FROM conversations
WHERE id = $1 AND user_id = $2;
`

func (s *PostgresStore) DeleteConversation(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, deleteConversation, id, userID)
	if err != nil {
		return fmt.Errorf("error deleting conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	s.logger.Infof("DeleteConversation: deleted conversation %s (messages cascaded)", id)
	return nil
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var conv models.Conversation
	err := row.Scan(
		&conv.ID,
		&conv.UserID,
		&conv.Title,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}
