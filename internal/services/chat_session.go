package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"wolf-backend/internal/auth"
	"wolf-backend/internal/lock"
	"wolf-backend/internal/models"
	"wolf-backend/internal/sse"
	"wolf-backend/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Completer opens a completion stream for a conversation history.
type Completer interface {
	StreamCompletion(ctx context.Context, history []models.ChatMessage) (io.ReadCloser, error)
}

// FragmentFunc receives each decoded piece of the reply as it arrives. A
// returned error aborts the send; nothing of the reply is persisted.
type FragmentFunc func(fragment string) error

// SendResult is the outcome of a completed send. AssistantMessage is nil when
// the gateway streamed no text.
type SendResult struct {
	ConversationID   uuid.UUID
	UserMessage      *models.Message
	AssistantMessage *models.Message
}

// ChatSessionService drives one user turn: persist it, stream the reply from
// the gateway, persist the reply.
type ChatSessionService struct {
	store         store.Store
	gateway       Completer
	locks         lock.Locker
	streamTimeout time.Duration
	logger        *zap.SugaredLogger
	now           func() time.Time
}

func NewChatSessionService(s store.Store, gateway Completer, locks lock.Locker, streamTimeout time.Duration, logger *zap.SugaredLogger) *ChatSessionService {
	return &ChatSessionService{
		store:         s,
		gateway:       gateway,
		locks:         locks,
		streamTimeout: streamTimeout,
		logger:        logger,
		now:           time.Now,
	}
}

// SendMessage appends text to the conversation as the user's turn, streams the
// assistant reply through onFragment (which may be nil) and stores the full
// reply. Only one send per conversation may be in flight.
func (s *ChatSessionService) SendMessage(ctx context.Context, session *auth.Session, conversationID uuid.UUID, text string, onFragment FragmentFunc) (*SendResult, error) {
	result, err := s.send(ctx, session, conversationID, text, onFragment)
	if err != nil {
		s.logSendFailure(conversationID, err)
		return nil, err
	}
	return result, nil
}

// StartConversation creates a conversation on demand and sends text to it.
// Empty text is rejected before anything is created.
func (s *ChatSessionService) StartConversation(ctx context.Context, session *auth.Session, text string, onFragment FragmentFunc) (*SendResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if session == nil || session.UserID == uuid.Nil {
		return nil, &AuthError{Reason: "no session"}
	}

	conv, err := s.store.CreateConversation(ctx, store.CreateConversationParams{
		UserID: session.UserID,
		Title:  models.DefaultConversationTitle,
	})
	if err != nil {
		perr := &PersistenceError{Op: "create conversation", Err: err}
		s.logSendFailure(uuid.Nil, perr)
		return nil, perr
	}
	s.logger.Infof("Created conversation %s on first send for user %s", conv.ID, session.UserID)

	return s.SendMessage(ctx, session, conv.ID, text, onFragment)
}

func (s *ChatSessionService) send(ctx context.Context, session *auth.Session, conversationID uuid.UUID, text string, onFragment FragmentFunc) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	// The owner id scopes every store call, so an anonymous send cannot
	// persist anything.
	if session == nil || session.UserID == uuid.Nil {
		return nil, &AuthError{Reason: "no session"}
	}

	release, err := s.locks.Acquire(ctx, conversationID.String())
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, ErrSendInFlight
		}
		return nil, fmt.Errorf("acquire send lock: %w", err)
	}
	defer release()

	userMsg, err := s.store.InsertMessage(ctx, store.InsertMessageParams{
		ConversationID: conversationID,
		UserID:         session.UserID,
		Role:           models.RoleUser,
		Content:        text,
	})
	if err != nil {
		return nil, &PersistenceError{Op: "insert user message", Err: err}
	}

	history, err := s.store.ListMessages(ctx, conversationID, session.UserID)
	if err != nil {
		return nil, &PersistenceError{Op: "list messages", Err: err}
	}

	if session.AccessToken == "" {
		return nil, &AuthError{Reason: "missing access token"}
	}
	if !session.Valid(s.now()) {
		return nil, &AuthError{Reason: "session expired"}
	}

	reply, err := s.streamReply(ctx, models.History(history), onFragment)
	if err != nil {
		return nil, err
	}

	result := &SendResult{ConversationID: conversationID, UserMessage: userMsg}
	if reply == "" {
		s.logger.Warnw("Gateway returned an empty reply, nothing stored", "conversation_id", conversationID)
		return result, nil
	}

	// The reply is complete; a client that hangs up now should not lose it.
	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	assistantMsg, err := s.store.InsertMessage(insertCtx, store.InsertMessageParams{
		ConversationID: conversationID,
		UserID:         session.UserID,
		Role:           models.RoleAssistant,
		Content:        reply,
	})
	if err != nil {
		return nil, &PersistenceError{Op: "insert assistant message", Err: err}
	}
	result.AssistantMessage = assistantMsg
	return result, nil
}

// streamReply collects the reply text. The stream is bounded by the send
// timeout on top of ctx.
func (s *ChatSessionService) streamReply(ctx context.Context, history []models.ChatMessage, onFragment FragmentFunc) (string, error) {
	if s.streamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.streamTimeout)
		defer cancel()
	}

	body, err := s.gateway.StreamCompletion(ctx, history)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var reply strings.Builder
	err = sse.NewDecoder(body, s.logger).Each(func(fragment string) error {
		reply.WriteString(fragment)
		if onFragment != nil {
			return onFragment(fragment)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return "", fmt.Errorf("%w: %w", ErrStreamFailed, err)
	}
	return reply.String(), nil
}

func (s *ChatSessionService) logSendFailure(conversationID uuid.UUID, err error) {
	switch {
	case errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrSendInFlight), errors.Is(err, ErrAuth):
		s.logger.Infow("Send rejected", "conversation_id", conversationID, "reason", err)
	case errors.Is(err, context.Canceled):
		s.logger.Infow("Send cancelled by client", "conversation_id", conversationID)
	default:
		s.logger.Errorw("Send failed", "conversation_id", conversationID, "error", err)
	}
}
