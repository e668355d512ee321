package services

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"wolf-backend/internal/models"
	"wolf-backend/internal/store"

	"github.com/google/uuid"
)

// memStore is an in-memory store.Store with failure injection.
type memStore struct {
	mu            sync.Mutex
	users         map[string]*models.User
	conversations map[uuid.UUID]*models.Conversation
	messages      map[uuid.UUID][]models.Message
	seq           int64

	failInsertRole models.Role // InsertMessage fails for this role when set
	failList       bool
}

var errInjected = errors.New("injected store failure")

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]*models.User),
		conversations: make(map[uuid.UUID]*models.Conversation),
		messages:      make(map[uuid.UUID][]models.Message),
	}
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Email]; ok {
		return store.ErrDuplicate
	}
	cp := *user
	m.users[user.Email] = &cp
	return nil
}

func (m *memStore) CreateConversation(_ context.Context, arg store.CreateConversationParams) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := arg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now()
	c := &models.Conversation{ID: id, UserID: arg.UserID, Title: arg.Title, CreatedAt: now, UpdatedAt: now}
	m.conversations[id] = c
	cp := *c
	return &cp, nil
}

func (m *memStore) owned(id, userID uuid.UUID) (*models.Conversation, error) {
	c, ok := m.conversations[id]
	if !ok || c.UserID != userID {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (m *memStore) GetConversationByID(_ context.Context, id, userID uuid.UUID) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.owned(id, userID)
	if err != nil {
		return nil, err
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListConversationsByUser(_ context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Conversation{}
	for _, c := range m.conversations {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *memStore) RenameConversation(_ context.Context, id, userID uuid.UUID, title string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.owned(id, userID)
	if err != nil {
		return nil, err
	}
	c.Title = title
	cp := *c
	return &cp, nil
}

func (m *memStore) DeleteConversation(_ context.Context, id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.owned(id, userID); err != nil {
		return err
	}
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func (m *memStore) InsertMessage(_ context.Context, arg store.InsertMessageParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsertRole != "" && arg.Role == m.failInsertRole {
		return nil, errInjected
	}
	c, err := m.owned(arg.ConversationID, arg.UserID)
	if err != nil {
		return nil, err
	}
	m.seq++
	msg := models.Message{
		ID:             uuid.New(),
		ConversationID: arg.ConversationID,
		Seq:            m.seq,
		Role:           arg.Role,
		Content:        arg.Content,
		CreatedAt:      time.Now(),
	}
	c.UpdatedAt = msg.CreatedAt
	m.messages[arg.ConversationID] = append(m.messages[arg.ConversationID], msg)
	return &msg, nil
}

func (m *memStore) ListMessages(_ context.Context, conversationID, userID uuid.UUID) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList {
		return nil, errInjected
	}
	if _, err := m.owned(conversationID, userID); err != nil {
		return nil, err
	}
	return append([]models.Message{}, m.messages[conversationID]...), nil
}

func (m *memStore) count(conversationID uuid.UUID, role models.Role) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages[conversationID] {
		if msg.Role == role {
			n++
		}
	}
	return n
}

// fakeGateway replays a canned event stream and records what it was sent.
type fakeGateway struct {
	mu      sync.Mutex
	stream  string
	err     error
	calls   int
	history []models.ChatMessage
	// onCall, when set, runs before the stream is returned.
	onCall func()
	// block, when set, makes the returned body wait for it before EOF.
	block chan struct{}
}

func (g *fakeGateway) StreamCompletion(ctx context.Context, history []models.ChatMessage) (io.ReadCloser, error) {
	g.mu.Lock()
	g.calls++
	g.history = append([]models.ChatMessage{}, history...)
	onCall, block := g.onCall, g.block
	g.mu.Unlock()

	if onCall != nil {
		onCall()
	}
	if g.err != nil {
		return nil, g.err
	}
	var r io.Reader = strings.NewReader(g.stream)
	if block != nil {
		r = io.MultiReader(r, &blockingReader{ctx: ctx, release: block})
	}
	return io.NopCloser(r), nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type blockingReader struct {
	ctx     context.Context
	release chan struct{}
}

func (b *blockingReader) Read([]byte) (int, error) {
	select {
	case <-b.release:
		return 0, io.EOF
	case <-b.ctx.Done():
		return 0, b.ctx.Err()
	}
}

func sseEvent(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}` + "\n\n"
}
