package postgres

import (
	"context"
	"fmt"
	"strings"
)

// NotifyChannel is the LISTEN/NOTIFY channel that carries message inserts.
// The payload is a JSON object with the message id and conversation_id; rows
// are re-read by the listener because NOTIFY payloads are capped at 8000 bytes.
const NotifyChannel = "wolf_messages"

var schemaStatements = []string{
	strings.Join([]string{
		"CREATE TABLE IF NOT EXISTS users (",
		"    id UUID PRIMARY KEY,",
		"    email TEXT NOT NULL UNIQUE,",
		"    hashed_password TEXT NOT NULL,",
		"    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),",
		"    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
		")",
	}, "\n"),
	strings.Join([]string{
		"CREATE TABLE IF NOT EXISTS conversations (",
		"    id UUID PRIMARY KEY,",
		"    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,",
		"    title TEXT NOT NULL DEFAULT 'New Chat',",
		"    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),",
		"    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
		")",
	}, "\n"),
	"CREATE INDEX IF NOT EXISTS conversations_user_updated_idx ON conversations (user_id, updated_at DESC)",
	strings.Join([]string{
		"CREATE TABLE IF NOT EXISTS messages (",
		"    id UUID PRIMARY KEY,",
		"    seq BIGINT GENERATED ALWAYS AS IDENTITY,",
		"    conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,",
		"    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),",
		"    content TEXT NOT NULL,",
		"    created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()",
		")",
	}, "\n"),
	"CREATE INDEX IF NOT EXISTS messages_conversation_order_idx ON messages (conversation_id, created_at, seq)",
	strings.Join([]string{
		"CREATE OR REPLACE FUNCTION wolf_notify_message() RETURNS trigger AS $$",
		"BEGIN",
		"    PERFORM pg_notify('" + NotifyChannel + "', json_build_object('id', NEW.id, 'conversation_id', NEW.conversation_id)::text);",
		"    RETURN NEW;",
		"END;",
		"$$ LANGUAGE plpgsql",
	}, "\n"),
	"DROP TRIGGER IF EXISTS messages_notify_insert ON messages",
	"CREATE TRIGGER messages_notify_insert AFTER INSERT ON messages FOR EACH ROW EXECUTE FUNCTION wolf_notify_message()",
}

// EnsureSchema creates the tables, indexes and notify trigger if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}
