package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wolf-backend/internal/models"
	"wolf-backend/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// MessageGetter reads a message by id without an ownership check.
type MessageGetter interface {
	GetMessageByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
}

type notification struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

// PGListener relays Postgres insert notifications into the hub, so every
// replica sees messages written by any other.
type PGListener struct {
	pool    *pgxpool.Pool
	channel string
	getter  MessageGetter
	hub     *Hub
	backoff time.Duration
	logger  *zap.SugaredLogger
}

func NewPGListener(pool *pgxpool.Pool, channel string, getter MessageGetter, hub *Hub, logger *zap.SugaredLogger) *PGListener {
	return &PGListener{
		pool:    pool,
		channel: channel,
		getter:  getter,
		hub:     hub,
		backoff: time.Second,
		logger:  logger,
	}
}

// Run listens until ctx is cancelled, reconnecting after failures.
func (l *PGListener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warnw("Realtime listener disconnected, retrying", "error", err, "backoff", l.backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.backoff):
		}
	}
}

func (l *PGListener) listen(ctx context.Context) error {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	// The connection keeps its LISTEN registration, so it must not go back
	// to the pool.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.logger.Infow("Realtime listener started", "channel", l.channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.relay(ctx, n.Payload)
	}
}

func (l *PGListener) relay(ctx context.Context, payload string) {
	var note notification
	if err := json.Unmarshal([]byte(payload), &note); err != nil {
		l.logger.Warnw("Ignoring malformed notification", "payload", payload, "error", err)
		return
	}
	if !l.hub.HasSubscribers(note.ConversationID) {
		return
	}

	msg, err := l.getter.GetMessageByID(ctx, note.ID)
	if err != nil {
		// Deleted between insert and read; nothing to deliver.
		if !errors.Is(err, store.ErrNotFound) {
			l.logger.Errorw("Failed to load notified message", "message_id", note.ID, "error", err)
		}
		return
	}
	l.hub.Publish(*msg)
}
