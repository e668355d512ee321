package handlers

import (
	"errors"
	"net/http"

	"wolf-backend/internal/models"
	"wolf-backend/internal/services"
	"wolf-backend/pkg/httputil"

	"go.uber.org/zap"
)

// ConversationHandlers serves the conversation list and transcripts.
type ConversationHandlers struct {
	conversations *services.ConversationService
	logger        *zap.SugaredLogger
}

func NewConversationHandlers(conversations *services.ConversationService, logger *zap.SugaredLogger) *ConversationHandlers {
	return &ConversationHandlers{conversations: conversations, logger: logger}
}

func (h *ConversationHandlers) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	resp, err := h.conversations.List(r.Context(), session.UserID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

func (h *ConversationHandlers) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.CreateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.conversations.Create(r.Context(), session.UserID, req.Title)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

func (h *ConversationHandlers) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := uuidParam(r, "conversationID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	resp, err := h.conversations.Get(r.Context(), session.UserID, id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

func (h *ConversationHandlers) HandleRenameConversation(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := uuidParam(r, "conversationID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	var req models.RenameConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.conversations.Rename(r.Context(), session.UserID, id, req.Title)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

func (h *ConversationHandlers) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := uuidParam(r, "conversationID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	if err := h.conversations.Delete(r.Context(), session.UserID, id); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(r)
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := uuidParam(r, "conversationID")
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	messages, err := h.conversations.Messages(r.Context(), session.UserID, id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.ListMessagesResponse{Messages: messages})
}

func (h *ConversationHandlers) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrConversationNotFound):
		httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, services.ErrConversationValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Errorf("Conversation request failed: %v", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
