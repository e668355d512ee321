// Package sqlite is a single-file transcript store for local and
// single-replica deployments. It uses the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"wolf-backend/internal/models"
	"wolf-backend/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    hashed_password TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS conversations_user_updated_idx ON conversations (user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS messages_conversation_order_idx ON messages (conversation_id, created_at, seq);`

// Compile-time check to ensure Store implements store.Store
var _ store.Store = (*Store)(nil)

// Store keeps timestamps as unix nanoseconds so ordering survives the
// driver's text/time conversions unchanged.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	now    func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string, logger *zap.SugaredLogger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer at a time; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, hashed_password, created_at, updated_at FROM users WHERE email = ?`, email)

	var (
		user                 models.User
		id                   string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&id, &user.Email, &user.HashedPassword, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching user by email: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt user id %q: %w", id, err)
	}
	user.ID = parsed
	user.CreatedAt = fromNanos(createdAt)
	user.UpdatedAt = fromNanos(updatedAt)
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, hashed_password, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID.String(), user.Email, user.HashedPassword, now.UnixNano(), now.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("database error creating user: %w", err)
	}
	user.CreatedAt, user.UpdatedAt = now, now
	return nil
}

func (s *Store) CreateConversation(ctx context.Context, arg store.CreateConversationParams) (*models.Conversation, error) {
	id := arg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), arg.UserID.String(), arg.Title, now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("error creating conversation: %w", err)
	}
	return &models.Conversation{ID: id, UserID: arg.UserID, Title: arg.Title, CreatedAt: now, UpdatedAt: now}, nil
}

const conversationColumns = `id, user_id, title, created_at, updated_at`

func (s *Store) GetConversationByID(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ? AND user_id = ?`,
		id.String(), userID.String())
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) ListConversationsByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE user_id = ? ORDER BY updated_at DESC, created_at DESC`,
		userID.String())
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
	return conversations, rows.Err()
}

func (s *Store) RenameConversation(ctx context.Context, id uuid.UUID, userID uuid.UUID, title string) (*models.Conversation, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ? WHERE id = ? AND user_id = ?`,
		title, id.String(), userID.String())
	if err != nil {
		return nil, fmt.Errorf("error renaming conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetConversationByID(ctx, id, userID)
}

func (s *Store) DeleteConversation(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ? AND user_id = ?`, id.String(), userID.String())
	if err != nil {
		return fmt.Errorf("error deleting conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) InsertMessage(ctx context.Context, arg store.InsertMessageParams) (*models.Message, error) {
	if !arg.Role.Valid() {
		return nil, fmt.Errorf("invalid message role: %q", arg.Role)
	}
	id := arg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	now := s.now()
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ? AND user_id = ?`,
		now.UnixNano(), arg.ConversationID.String(), arg.UserID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation activity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}

	res, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), arg.ConversationID.String(), string(arg.Role), arg.Content, now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read message sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}

	return &models.Message{
		ID:             id,
		ConversationID: arg.ConversationID,
		Seq:            seq,
		Role:           arg.Role,
		Content:        arg.Content,
		CreatedAt:      now,
	}, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) ([]models.Message, error) {
	if _, err := s.GetConversationByID(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, seq, role, content, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at ASC, seq ASC`, conversationID.String())
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			msg            models.Message
			id, convID     string
			role           string
			createdAtNanos int64
		)
		if err := rows.Scan(&id, &convID, &msg.Seq, &role, &msg.Content, &createdAtNanos); err != nil {
			return nil, fmt.Errorf("error scanning message row: %w", err)
		}
		if msg.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("corrupt message id %q: %w", id, err)
		}
		msg.ConversationID = conversationID
		msg.Role = models.Role(role)
		msg.CreatedAt = fromNanos(createdAtNanos)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*models.Conversation, error) {
	var (
		conv                 models.Conversation
		id, userID           string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&id, &userID, &conv.Title, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if conv.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt conversation id %q: %w", id, err)
	}
	if conv.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("corrupt user id %q: %w", userID, err)
	}
	conv.CreatedAt = fromNanos(createdAt)
	conv.UpdatedAt = fromNanos(updatedAt)
	return &conv, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
