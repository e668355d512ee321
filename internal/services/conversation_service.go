package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"wolf-backend/internal/models"
	"wolf-backend/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxTitleLength = 200

var (
	ErrConversationNotFound   = errors.New("conversation not found")
	ErrConversationValidation = errors.New("conversation validation failed")
)

// ConversationService manages a user's conversation list.
type ConversationService struct {
	store  store.Store
	logger *zap.SugaredLogger
}

func NewConversationService(s store.Store, logger *zap.SugaredLogger) *ConversationService {
	return &ConversationService{store: s, logger: logger}
}

func mapConversationToResponse(c *models.Conversation) models.ConversationResponse {
	return models.ConversationResponse{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// List returns the user's conversations, most recently active first.
func (s *ConversationService) List(ctx context.Context, userID uuid.UUID) (*models.ListConversationsResponse, error) {
	conversations, err := s.store.ListConversationsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	resp := &models.ListConversationsResponse{
		Conversations: make([]models.ConversationResponse, 0, len(conversations)),
	}
	for i := range conversations {
		resp.Conversations = append(resp.Conversations, mapConversationToResponse(&conversations[i]))
	}
	return resp, nil
}

// Create makes an empty conversation. A nil title means "New Chat".
func (s *ConversationService) Create(ctx context.Context, userID uuid.UUID, title *string) (*models.ConversationResponse, error) {
	name := models.DefaultConversationTitle
	if title != nil {
		var err error
		if name, err = validateTitle(*title); err != nil {
			return nil, err
		}
	}

	conv, err := s.store.CreateConversation(ctx, store.CreateConversationParams{UserID: userID, Title: name})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	s.logger.Infof("Created conversation %s for user %s", conv.ID, userID)

	resp := mapConversationToResponse(conv)
	return &resp, nil
}

func (s *ConversationService) Rename(ctx context.Context, userID, id uuid.UUID, title string) (*models.ConversationResponse, error) {
	name, err := validateTitle(title)
	if err != nil {
		return nil, err
	}

	conv, err := s.store.RenameConversation(ctx, id, userID, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to rename conversation: %w", err)
	}

	resp := mapConversationToResponse(conv)
	return &resp, nil
}

// Get returns the conversation with its ordered transcript.
func (s *ConversationService) Get(ctx context.Context, userID, id uuid.UUID) (*models.ConversationDetailResponse, error) {
	conv, err := s.store.GetConversationByID(ctx, id, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	messages, err := s.Messages(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	return &models.ConversationDetailResponse{
		ConversationResponse: mapConversationToResponse(conv),
		Messages:             messages,
	}, nil
}

// Messages returns the ordered transcript of a conversation.
func (s *ConversationService) Messages(ctx context.Context, userID, id uuid.UUID) ([]models.Message, error) {
	messages, err := s.store.ListMessages(ctx, id, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Delete removes the conversation and, by cascade, its messages.
func (s *ConversationService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.store.DeleteConversation(ctx, id, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	s.logger.Infof("Deleted conversation %s for user %s", id, userID)
	return nil
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title cannot be empty", ErrConversationValidation)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", fmt.Errorf("%w: title exceeds %d characters", ErrConversationValidation, maxTitleLength)
	}
	return title, nil
}
