// Package storetest holds behaviour checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"wolf-backend/internal/models"
	"wolf-backend/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises s against the store.Store contract. Every check creates its
// own users, so s may be shared with other data.
func Run(t *testing.T, s store.Store) {
	t.Run("Users", func(t *testing.T) { testUsers(t, s) })
	t.Run("ConversationOwnership", func(t *testing.T) { testConversationOwnership(t, s) })
	t.Run("TranscriptOrder", func(t *testing.T) { testTranscriptOrder(t, s) })
	t.Run("ActivityOrder", func(t *testing.T) { testActivityOrder(t, s) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, s) })
}

func newUser(t *testing.T, s store.Store) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.New(), Email: uuid.NewString() + "@example.com", HashedPassword: "hash"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func newConversation(t *testing.T, s store.Store, userID uuid.UUID, title string) *models.Conversation {
	t.Helper()
	conv, err := s.CreateConversation(context.Background(), store.CreateConversationParams{UserID: userID, Title: title})
	require.NoError(t, err)
	return conv
}

func insert(t *testing.T, s store.Store, conv *models.Conversation, role models.Role, content string) *models.Message {
	t.Helper()
	msg, err := s.InsertMessage(context.Background(), store.InsertMessageParams{
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		Role:           role,
		Content:        content,
	})
	require.NoError(t, err)
	return msg
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s)

	got, err := s.GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash", got.HashedPassword)

	dup := &models.User{ID: uuid.New(), Email: u.Email, HashedPassword: "other"}
	assert.ErrorIs(t, s.CreateUser(ctx, dup), store.ErrDuplicate)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testConversationOwnership(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner, other := newUser(t, s), newUser(t, s)
	conv := newConversation(t, s, owner.ID, models.DefaultConversationTitle)

	got, err := s.GetConversationByID(ctx, conv.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConversationTitle, got.Title)

	_, err = s.GetConversationByID(ctx, conv.ID, other.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.RenameConversation(ctx, conv.ID, other.ID, "stolen")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.ListMessages(ctx, conv.ID, other.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.InsertMessage(ctx, store.InsertMessageParams{
		ConversationID: conv.ID, UserID: other.ID, Role: models.RoleUser, Content: "hi",
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteConversation(ctx, conv.ID, other.ID), store.ErrNotFound)

	renamed, err := s.RenameConversation(ctx, conv.ID, owner.ID, "Hunting plans")
	require.NoError(t, err)
	assert.Equal(t, "Hunting plans", renamed.Title)

	list, err := s.ListConversationsByUser(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testTranscriptOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s)
	conv := newConversation(t, s, u.ID, "t")

	var want []uuid.UUID
	for i, role := range []models.Role{models.RoleUser, models.RoleAssistant, models.RoleUser, models.RoleAssistant} {
		msg := insert(t, s, conv, role, string(rune('a'+i)))
		want = append(want, msg.ID)
	}

	msgs, err := s.ListMessages(ctx, conv.ID, u.ID)
	require.NoError(t, err)
	require.Len(t, msgs, len(want))
	for i, m := range msgs {
		assert.Equal(t, want[i], m.ID)
		if i > 0 {
			assert.True(t, msgs[i-1].Before(m), "message %d out of order", i)
		}
	}

	_, err = s.InsertMessage(ctx, store.InsertMessageParams{
		ConversationID: conv.ID, UserID: u.ID, Role: models.RoleSystem, Content: "x",
	})
	assert.Error(t, err)
}

func testActivityOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s)
	older := newConversation(t, s, u.ID, "older")
	time.Sleep(5 * time.Millisecond)
	newer := newConversation(t, s, u.ID, "newer")

	list, err := s.ListConversationsByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	time.Sleep(5 * time.Millisecond)
	insert(t, s, older, models.RoleUser, "bump")

	list, err = s.ListConversationsByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)
	assert.True(t, list[0].UpdatedAt.After(list[0].CreatedAt))
}

func testDeleteCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s)
	conv := newConversation(t, s, u.ID, "doomed")
	insert(t, s, conv, models.RoleUser, "hello")

	require.NoError(t, s.DeleteConversation(ctx, conv.ID, u.ID))

	_, err := s.ListMessages(ctx, conv.ID, u.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.InsertMessage(ctx, store.InsertMessageParams{
		ConversationID: conv.ID, UserID: u.ID, Role: models.RoleAssistant, Content: "late reply",
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteConversation(ctx, conv.ID, u.ID), store.ErrNotFound)
}
