package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"wolf-backend/internal/gateway"
	"wolf-backend/internal/models"
	"wolf-backend/pkg/httputil"

	"go.uber.org/zap"
)

// StreamCompleter is the gateway surface the proxy needs.
type StreamCompleter interface {
	StreamCompletion(ctx context.Context, history []models.ChatMessage) (io.ReadCloser, error)
}

// ChatStreamHandler is a thin authenticated proxy to the AI gateway. It adds
// the persona and model and passes the event stream through untouched.
type ChatStreamHandler struct {
	gateway StreamCompleter
	logger  *zap.SugaredLogger
}

func NewChatStreamHandler(gw StreamCompleter, logger *zap.SugaredLogger) *ChatStreamHandler {
	return &ChatStreamHandler{gateway: gw, logger: logger}
}

// HandleChatStream handles POST /functions/v1/chat-stream.
func (h *ChatStreamHandler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	var req models.ChatStreamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Infof("Proxying chat stream with %d messages", len(req.Messages))
	body, err := h.gateway.StreamCompletion(r.Context(), req.Messages)
	if err != nil {
		h.respondGatewayError(w, err)
		return
	}
	defer body.Close()

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := copyFlushing(w, body); err != nil && r.Context().Err() == nil {
		h.logger.Warnf("Chat stream relay ended early: %v", err)
	}
}

func (h *ChatStreamHandler) respondGatewayError(w http.ResponseWriter, err error) {
	var gwErr *gateway.GatewayError
	if !errors.As(err, &gwErr) {
		h.logger.Errorf("Error in chat stream proxy: %v", err)
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if gwErr.RateLimited() || gwErr.PaymentRequired() {
		httputil.RespondError(w, gwErr.Status, gwErr.Message)
		return
	}
	httputil.RespondJSON(w, gwErr.Status, models.GatewayErrorResponse{
		Error:   gwErr.Message,
		Details: gwErr.Details,
		Status:  gwErr.Status,
	})
}

// copyFlushing copies src to w, flushing after every read so events reach the
// client as they arrive.
func copyFlushing(w http.ResponseWriter, src io.Reader) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
