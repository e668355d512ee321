package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"wolf-backend/internal/gateway"
	"wolf-backend/internal/models"
	"wolf-backend/internal/services"
	"wolf-backend/internal/store"
	"wolf-backend/pkg/httputil"

	"go.uber.org/zap"
)

// MessageHandlers relays sends as server-sent events.
type MessageHandlers struct {
	chat   *services.ChatSessionService
	logger *zap.SugaredLogger
}

func NewMessageHandlers(chat *services.ChatSessionService, logger *zap.SugaredLogger) *MessageHandlers {
	return &MessageHandlers{chat: chat, logger: logger}
}

// HandleSendMessage handles POST /v1/conversations/{conversationID}/messages.
func (h *MessageHandlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	convID, err := uuidParam(r, "conversationID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}
	var req models.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	relay := newEventRelay(w)
	res, err := h.chat.SendMessage(r.Context(), session, convID, req.Content, relay.fragment)
	h.finish(r.Context(), w, relay, res, err)
}

// HandleStartConversation handles POST /v1/messages: the first message of a
// conversation that does not exist yet.
func (h *MessageHandlers) HandleStartConversation(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req models.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	relay := newEventRelay(w)
	res, err := h.chat.StartConversation(r.Context(), session, req.Content, relay.fragment)
	h.finish(r.Context(), w, relay, res, err)
}

func (h *MessageHandlers) finish(ctx context.Context, w http.ResponseWriter, relay *eventRelay, res *services.SendResult, err error) {
	if err != nil {
		if ctx.Err() != nil {
			return // client is gone
		}
		status, message := sendErrorStatus(err)
		if relay.started {
			if werr := relay.event("error", models.ErrorResponse{Error: message}); werr != nil {
				h.logger.Debugw("Failed to relay send error", "error", werr)
			}
			return
		}
		httputil.RespondError(w, status, message)
		return
	}

	done := models.SendMessageResponse{
		ConversationID:   res.ConversationID,
		UserMessage:      *res.UserMessage,
		AssistantMessage: res.AssistantMessage,
	}
	if werr := relay.event("done", done); werr != nil {
		h.logger.Debugw("Failed to relay send result", "error", werr)
	}
}

// sendErrorStatus maps a send failure to a status code and a user-visible
// message.
func sendErrorStatus(err error) (int, string) {
	var gwErr *gateway.GatewayError
	switch {
	case errors.Is(err, services.ErrEmptyMessage):
		return http.StatusBadRequest, "Message cannot be empty"
	case errors.Is(err, services.ErrAuth):
		return http.StatusUnauthorized, "Please sign in again"
	case errors.Is(err, services.ErrSendInFlight):
		return http.StatusConflict, err.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Conversation not found"
	case errors.As(err, &gwErr):
		switch {
		case gwErr.RateLimited(), gwErr.PaymentRequired():
			return gwErr.Status, gwErr.Message
		default:
			return http.StatusBadGateway, gwErr.Message
		}
	case errors.Is(err, services.ErrStreamFailed):
		return http.StatusBadGateway, "The response stream was interrupted"
	default:
		return http.StatusInternalServerError, "Failed to send message"
	}
}

// eventRelay writes text/event-stream frames, committing the response on the
// first frame.
type eventRelay struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newEventRelay(w http.ResponseWriter) *eventRelay {
	f, _ := w.(http.Flusher)
	return &eventRelay{w: w, flusher: f}
}

func (e *eventRelay) fragment(text string) error {
	return e.event("fragment", models.FragmentEvent{Content: text})
}

func (e *eventRelay) event(name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", name, err)
	}
	if !e.started {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}
