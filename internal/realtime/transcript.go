package realtime

import (
	"sort"

	"wolf-backend/internal/models"

	"github.com/google/uuid"
)

// Transcript is a consumer's local copy of a conversation. It merges the
// backlog with live rows, dropping duplicates by id and keeping
// (created_at, seq) order. It is not safe for concurrent use.
type Transcript struct {
	messages []models.Message
	seen     map[uuid.UUID]struct{}
}

func NewTranscript(backlog []models.Message) *Transcript {
	t := &Transcript{seen: make(map[uuid.UUID]struct{}, len(backlog))}
	for _, m := range backlog {
		t.Merge(m)
	}
	return t
}

// Merge adds msg and reports whether it was new.
func (t *Transcript) Merge(msg models.Message) bool {
	if _, ok := t.seen[msg.ID]; ok {
		return false
	}
	t.seen[msg.ID] = struct{}{}

	i := sort.Search(len(t.messages), func(i int) bool {
		return msg.Before(t.messages[i])
	})
	t.messages = append(t.messages, models.Message{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = msg
	return true
}

// Messages returns a copy of the ordered transcript.
func (t *Transcript) Messages() []models.Message {
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Len() int { return len(t.messages) }
