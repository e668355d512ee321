// Package realtime fans newly inserted messages out to live subscribers of a
// conversation.
package realtime

import (
	"sync"
	"sync/atomic"

	"wolf-backend/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscription queue length.
const DefaultBuffer = 64

// Subscription receives the messages published for one conversation. The
// channel is closed by Close or when the subscriber falls behind; check Lagged
// to tell the two apart.
type Subscription struct {
	ConversationID uuid.UUID

	ch     chan models.Message
	hub    *Hub
	lagged atomic.Bool
}

func (s *Subscription) C() <-chan models.Message { return s.ch }

// Lagged reports whether the hub dropped this subscription because its buffer
// was full. A lagged consumer must reload the transcript from the store.
func (s *Subscription) Lagged() bool { return s.lagged.Load() }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() { s.hub.remove(s) }

type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	buffer int
	logger *zap.SugaredLogger
}

func NewHub(buffer int, logger *zap.SugaredLogger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[uuid.UUID]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

func (h *Hub) Subscribe(conversationID uuid.UUID) *Subscription {
	sub := &Subscription{
		ConversationID: conversationID,
		ch:             make(chan models.Message, h.buffer),
		hub:            h,
	}
	h.mu.Lock()
	set, ok := h.subs[conversationID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[conversationID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// HasSubscribers reports whether anyone is watching conversationID.
func (h *Hub) HasSubscribers(conversationID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID]) > 0
}

// Publish never blocks. Subscribers whose buffer is full are dropped and
// marked lagged.
func (h *Hub) Publish(msg models.Message) {
	var lagging []*Subscription

	h.mu.RLock()
	for sub := range h.subs[msg.ConversationID] {
		select {
		case sub.ch <- msg:
		default:
			lagging = append(lagging, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range lagging {
		sub.lagged.Store(true)
		h.remove(sub)
		h.logger.Warnw("Dropped lagging subscriber", "conversation_id", msg.ConversationID)
	}
}

// remove closes the channel under the write lock so no Publish can be
// sending on it.
func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.ConversationID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(h.subs, sub.ConversationID)
	}
}
