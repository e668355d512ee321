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

const touchConversation = `-- name: TouchConversation :exec
UPDATE conversations
SET updated_at = clock_timestamp()
WHERE id = $1 AND user_id = $2;
`

const insertMessage = `-- name: InsertMessage :one
INSERT INTO messages (id, conversation_id, role, content)
VALUES ($1, $2, $3, $4)
RETURNING id, conversation_id, seq, role, content, created_at;
`

// InsertMessage appends a message and advances the conversation's
// last-activity timestamp in one transaction. The ownership check is the
// UPDATE's row count, so a deleted conversation yields store.ErrNotFound.
func (s *PostgresStore) InsertMessage(ctx context.Context, arg store.InsertMessageParams) (*models.Message, error) {
	if !arg.Role.Valid() {
		return nil, fmt.Errorf("invalid message role: %q", arg.Role)
	}
	id := arg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var msg *models.Message
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, touchConversation, arg.ConversationID, arg.UserID)
		if err != nil {
			return fmt.Errorf("failed to update conversation activity: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}

		row := tx.QueryRow(ctx, insertMessage, id, arg.ConversationID, string(arg.Role), arg.Content)
		msg, err = ScanMessage(row)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		s.logger.Errorf("InsertMessage: conversation %s role %s: %v", arg.ConversationID, arg.Role, err)
		return nil, err
	}

	return msg, nil
}

const listMessages = `-- name: ListMessages :many
SELECT m.id, m.conversation_id, m.seq, m.role, m.content, m.created_at
FROM messages m
JOIN conversations c ON c.id = m.conversation_id
WHERE m.conversation_id = $1 AND c.user_id = $2
ORDER BY m.created_at ASC, m.seq ASC;
`

// ListMessages returns the full ordered transcript. An unknown or foreign
// conversation yields store.ErrNotFound rather than an empty transcript.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) ([]models.Message, error) {
	if _, err := s.GetConversationByID(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, listMessages, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := ScanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning message row: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	return messages, nil
}

const getMessageByID = `-- name: GetMessageByID :one
SELECT id, conversation_id, seq, role, content, created_at
FROM messages
WHERE id = $1;
`

// GetMessageByID reads one message without an ownership check. It serves the
// realtime listener, which fans rows out only to already-authorised
// subscribers.
func (s *PostgresStore) GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	msg, err := ScanMessage(s.db.QueryRow(ctx, getMessageByID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning message: %w", err)
	}
	return msg, nil
}

// ScanMessage scans one messages row in the column order used above.
func ScanMessage(row pgx.Row) (*models.Message, error) {
	var (
		msg  models.Message
		role string
	)
	if err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Seq,
		&role,
		&msg.Content,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	msg.Role = models.Role(role)
	return &msg, nil
}
