package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wolf-backend/internal/models"
	"wolf-backend/internal/realtime"
	"wolf-backend/internal/services"
	"wolf-backend/pkg/httputil"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = (livePongWait * 9) / 10
)

// LiveHandler pushes a conversation's transcript over a websocket: first the
// backlog, then every new message.
type LiveHandler struct {
	hub           *realtime.Hub
	conversations *services.ConversationService
	upgrader      websocket.Upgrader
	logger        *zap.SugaredLogger
}

func NewLiveHandler(hub *realtime.Hub, conversations *services.ConversationService, allowedOrigins []string, logger *zap.SugaredLogger) *LiveHandler {
	return &LiveHandler{
		hub:           hub,
		conversations: conversations,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleLive handles GET /v1/conversations/{conversationID}/live.
func (h *LiveHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
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

	// Subscribe before reading the backlog so nothing inserted in between is
	// missed; the transcript drops the overlap.
	sub := h.hub.Subscribe(convID)
	defer func() { sub.Close() }()

	backlog, err := h.conversations.Messages(r.Context(), session.UserID, convID)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		h.logger.Errorf("Live: failed to load backlog for %s: %v", convID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("Live: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	transcript := realtime.NewTranscript(backlog)
	if err := writeLive(conn, models.LiveEvent{Type: "backlog", Messages: transcript.Messages()}); err != nil {
		return
	}

	closed := readPump(conn)
	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		case msg, ok := <-sub.C():
			if !ok {
				if !sub.Lagged() {
					return
				}
				// Dropped for falling behind: resubscribe and reconcile from
				// the store.
				sub = h.hub.Subscribe(convID)
				if err := h.resync(r.Context(), conn, session.UserID, convID, transcript); err != nil {
					h.logger.Infof("Live: resync for %s ended the stream: %v", convID, err)
					return
				}
				continue
			}
			if !transcript.Merge(msg) {
				continue
			}
			m := msg
			if err := writeLive(conn, models.LiveEvent{Type: "message", Message: &m}); err != nil {
				return
			}
		}
	}
}

func (h *LiveHandler) resync(ctx context.Context, conn *websocket.Conn, userID, convID uuid.UUID, transcript *realtime.Transcript) error {
	ctx, cancel := context.WithTimeout(ctx, liveWriteWait)
	defer cancel()

	messages, err := h.conversations.Messages(ctx, userID, convID)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "conversation deleted"),
				time.Now().Add(liveWriteWait))
		}
		return err
	}
	for i := range messages {
		if !transcript.Merge(messages[i]) {
			continue
		}
		if err := writeLive(conn, models.LiveEvent{Type: "message", Message: &messages[i]}); err != nil {
			return err
		}
	}
	return nil
}

func writeLive(conn *websocket.Conn, event models.LiveEvent) error {
	if err := conn.SetWriteDeadline(time.Now().Add(liveWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(event)
}

// readPump discards client frames and reports when the connection closes.
func readPump(conn *websocket.Conn) <-chan struct{} {
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return closed
}
