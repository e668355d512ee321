package realtime

import (
	"context"

	"wolf-backend/internal/models"
	"wolf-backend/internal/store"
)

// PublishingStore feeds the hub from successful inserts. It is the realtime
// source for single-process deployments, where no database notification
// channel exists.
type PublishingStore struct {
	store.Store
	hub *Hub
}

func NewPublishingStore(s store.Store, hub *Hub) *PublishingStore {
	return &PublishingStore{Store: s, hub: hub}
}

func (s *PublishingStore) InsertMessage(ctx context.Context, arg store.InsertMessageParams) (*models.Message, error) {
	msg, err := s.Store.InsertMessage(ctx, arg)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(*msg)
	return msg, nil
}
