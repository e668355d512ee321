package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"wolf-backend/internal/auth"
	"wolf-backend/internal/gateway"
	"wolf-backend/internal/lock"
	"wolf-backend/internal/models"
	"wolf-backend/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sendFixture struct {
	store   *memStore
	gateway *fakeGateway
	svc     *ChatSessionService
	session *auth.Session
	convID  uuid.UUID
}

func newSendFixture(t *testing.T) *sendFixture {
	t.Helper()
	st := newMemStore()
	gw := &fakeGateway{}
	session := &auth.Session{UserID: uuid.New(), AccessToken: "token", ExpiresAt: time.Now().Add(time.Hour)}
	conv, err := st.CreateConversation(context.Background(), store.CreateConversationParams{UserID: session.UserID, Title: models.DefaultConversationTitle})
	require.NoError(t, err)

	return &sendFixture{
		store:   st,
		gateway: gw,
		svc:     NewChatSessionService(st, gw, lock.NewMemoryLocker(), time.Minute, zap.NewNop().Sugar()),
		session: session,
		convID:  conv.ID,
	}
}

func TestSendMessageStreamsAndPersistsReply(t *testing.T) {
	f := newSendFixture(t)
	f.gateway.stream = sseEvent("Hel") + sseEvent("lo") + "data: [DONE]\n\n"

	var fragments []string
	res, err := f.svc.SendMessage(context.Background(), f.session, f.convID, "  Hi  ", func(s string) error {
		fragments = append(fragments, s)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo"}, fragments)
	assert.Equal(t, "Hi", res.UserMessage.Content)
	require.NotNil(t, res.AssistantMessage)
	assert.Equal(t, "Hello", res.AssistantMessage.Content)
	assert.Equal(t, models.RoleAssistant, res.AssistantMessage.Role)

	msgs, err := f.store.ListMessages(context.Background(), f.convID, f.session.UserID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
}

func TestSendMessagePersistsUserTurnBeforeCallingGateway(t *testing.T) {
	f := newSendFixture(t)
	f.gateway.stream = sseEvent("ok")
	f.gateway.onCall = func() {
		assert.Equal(t, 1, f.store.count(f.convID, models.RoleUser))
		assert.Equal(t, 0, f.store.count(f.convID, models.RoleAssistant))
	}

	_, err := f.svc.SendMessage(context.Background(), f.session, f.convID, "question", nil)
	require.NoError(t, err)

	require.Len(t, f.gateway.history, 1)
	assert.Equal(t, models.ChatMessage{Role: models.RoleUser, Content: "question"}, f.gateway.history[0])
}

func TestSendMessageSendsFullHistory(t *testing.T) {
	f := newSendFixture(t)
	f.gateway.stream = sseEvent("first answer")
	_, err := f.svc.SendMessage(context.Background(), f.session, f.convID, "one", nil)
	require.NoError(t, err)

	f.gateway.stream = sseEvent("second answer")
	_, err = f.svc.SendMessage(context.Background(), f.session, f.convID, "two", nil)
	require.NoError(t, err)

	assert.Equal(t, []models.ChatMessage{
		{Role: models.RoleUser, Content: "one"},
		{Role: models.RoleAssistant, Content: "first answer"},
		{Role: models.RoleUser, Content: "two"},
	}, f.gateway.history)
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	f := newSendFixture(t)
	_, err := f.svc.SendMessage(context.Background(), f.session, f.convID, " \n\t", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, 0, f.store.count(f.convID, models.RoleUser))
	assert.Equal(t, 0, f.gateway.callCount())
}

func TestSendMessageWithoutSessionPersistsNothing(t *testing.T) {
	f := newSendFixture(t)
	_, err := f.svc.SendMessage(context.Background(), nil, f.convID, "hi", nil)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, 0, f.store.count(f.convID, models.RoleUser))
}

func TestSendMessageExpiredSessionKeepsUserTurn(t *testing.T) {
	f := newSendFixture(t)
	f.session.ExpiresAt = time.Now().Add(-time.Minute)

	_, err := f.svc.SendMessage(context.Background(), f.session, f.convID, "hi", nil)
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, 1, f.store.count(f.convID, models.RoleUser))
	assert.Equal(t, 0, f.gateway.callCount())
}

func TestSendMessageGatewayFailureKeepsUserTurnOnly(t *testing.T) {
	f := newSendFixture(t)
	f.gateway.err = &gateway.GatewayError{Status: http.StatusTooManyRequests, Message: gateway.MessageRateLimited}

	_, err := f.svc.SendMessage(context.Background(), f.session, f.convID, "hi", nil)
	var gwErr *gateway.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.True(t, gwErr.RateLimited())
	assert.Equal(t, 1, f.store.count(f.convID, models.RoleUser))
	assert.Equal(t, 0, f.store.count(f.convID, models.RoleAssistant))
}

func TestSendMessageEmptyReplyStoresNoAssistantMessage(t *testing.T) {
	f := newSendFixture(t)
	f.gateway.stream = "data: [DONE]\n\n"

	res, err := f.svc.SendMessage(context.Background(), f.session, f.convID, "hi", nil)
	require.NoError(t, err)
	assert.Nil(t, res.AssistantMessage)
	assert.Equal(t, 0, f.store.count(f.convID, models.RoleAssistant))
}

func TestSendMessageDeletedConversationIsNotFound(t *testing.T) {
	f := newSendFixture(t)
	require.NoError(t, f.store.DeleteConversation(context.Background(), f.convID, f.session.UserID))

	_, err := f.svc.SendMessage(context.Background(), f.session, f.convID, "hi", nil)
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, f.gateway.callCount())
}

func TestSendMessageForeignConversationIsNotFound(t *testing.T) {
	f := newSendFixture(t)
	stranger := &auth.Session{UserID: uuid.New(), AccessToken: "t", ExpiresAt: time.Now().Add(time.Hour)}

	_, err := f.svc.SendMessage(context.Background(), stranger, f.convID, "hi", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, f.store.count(f.convID, models.RoleUser))
}

func TestSendMessageAssistantInsertFailure(t *testing.T) {
	f := newSendFixture(t)
	f.gateway.stream = sseEvent("reply")
	f.store.failInsertRole = models.RoleAssistant

	_, err := f.svc.SendMessage(context.Background(), f.session, f.convID, "hi", nil)
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "insert assistant message", perr.Op)
	assert.Equal(t, 1, f.store.count(f.convID, models.RoleUser))
}

func TestSendMessageRejectsConcurrentSend(t *testing.T) {
	f := newSendFixture(t)
	f.gateway.stream = sseEvent("slow")
	f.gateway.block = make(chan struct{})

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.SendMessage(context.Background(), f.session, f.convID, "first", func(string) error {
			close(started)
			return nil
		})
		done <- err
	}()
	<-started

	_, err := f.svc.SendMessage(context.Background(), f.session, f.convID, "second", nil)
	assert.ErrorIs(t, err, ErrSendInFlight)

	close(f.gateway.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.store.count(f.convID, models.RoleUser))
	assert.Equal(t, 1, f.gateway.callCount())
}

func TestSendMessageCancelledStreamDiscardsPartialReply(t *testing.T) {
	f := newSendFixture(t)
	f.gateway.stream = sseEvent("part")
	f.gateway.block = make(chan struct{})
	defer close(f.gateway.block)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.svc.SendMessage(ctx, f.session, f.convID, "hi", func(string) error {
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, ErrStreamFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.store.count(f.convID, models.RoleAssistant))
}

func TestSendMessageFragmentCallbackErrorAborts(t *testing.T) {
	f := newSendFixture(t)
	f.gateway.stream = sseEvent("a") + sseEvent("b")
	clientGone := errors.New("client gone")

	_, err := f.svc.SendMessage(context.Background(), f.session, f.convID, "hi", func(string) error {
		return clientGone
	})
	assert.ErrorIs(t, err, clientGone)
	assert.Equal(t, 0, f.store.count(f.convID, models.RoleAssistant))
}

func TestStartConversationCreatesThenSends(t *testing.T) {
	f := newSendFixture(t)
	f.gateway.stream = sseEvent("hey")

	res, err := f.svc.StartConversation(context.Background(), f.session, "hello", nil)
	require.NoError(t, err)
	assert.NotEqual(t, f.convID, res.ConversationID)

	conv, err := f.store.GetConversationByID(context.Background(), res.ConversationID, f.session.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConversationTitle, conv.Title)
	assert.Equal(t, 1, f.store.count(res.ConversationID, models.RoleAssistant))
}

func TestStartConversationEmptyTextCreatesNothing(t *testing.T) {
	f := newSendFixture(t)
	_, err := f.svc.StartConversation(context.Background(), f.session, "", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	list, err := f.store.ListConversationsByUser(context.Background(), f.session.UserID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
