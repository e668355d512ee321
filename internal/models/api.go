package models

import (
	"time"

	"github.com/google/uuid"
)

// --- Request Structs ---

// SignupRequest defines the expected body for the signup endpoint.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest defines the expected body for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// --- Response Structs ---

// UserResponse defines the user information returned by the API.
// Avoid returning sensitive info like HashedPassword.
type UserResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// AuthResponse defines the response body for successful authentication.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        UserResponse `json:"user"`
}

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// --- Conversation DTOs ---

// CreateConversationRequest defines the payload for creating a conversation.
// Title falls back to DefaultConversationTitle when omitted.
type CreateConversationRequest struct {
	Title *string `json:"title,omitempty"`
}

// RenameConversationRequest defines the payload for renaming a conversation.
type RenameConversationRequest struct {
	Title string `json:"title"`
}

// ConversationResponse is the list-view representation of a conversation.
type ConversationResponse struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListConversationsResponse defines the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// ConversationDetailResponse includes the ordered transcript.
type ConversationDetailResponse struct {
	ConversationResponse
	Messages []Message `json:"messages"`
}

// ListMessagesResponse defines the response for reading a transcript.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

// --- Messaging DTOs ---

// SendMessageRequest defines the payload for sending a user message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// FragmentEvent is relayed to the sender for every decoded stream fragment.
type FragmentEvent struct {
	Content string `json:"content"`
}

// SendMessageResponse is the terminal payload of a successful send.
// AssistantMessage is nil when the gateway streamed no text.
type SendMessageResponse struct {
	ConversationID   uuid.UUID `json:"conversation_id"`
	UserMessage      Message   `json:"user_message"`
	AssistantMessage *Message  `json:"assistant_message"`
}

// ChatStreamRequest is the body accepted by the gateway proxy endpoint.
type ChatStreamRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// GatewayErrorResponse is returned by the gateway proxy for upstream failures
// other than rate limiting and payment errors.
type GatewayErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
	Status  int    `json:"status"`
}

// LiveEvent is one frame pushed over the realtime websocket.
type LiveEvent struct {
	Type     string    `json:"type"` // "backlog" or "message"
	Messages []Message `json:"messages,omitempty"`
	Message  *Message  `json:"message,omitempty"`
}
