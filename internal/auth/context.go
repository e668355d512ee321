package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is the authenticated identity attached to a request.
type Session struct {
	UserID      uuid.UUID
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the session identifies a user and has not expired.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.UserID == uuid.Nil {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// --- Context Helper Functions ---

// WithSession returns a copy of ctx carrying session.
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext retrieves the session set by the auth middleware.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	session, ok := ctx.Value(sessionKey).(*Session)
	return session, ok && session != nil
}

// GetUserIDFromContext retrieves the UserID (uuid.UUID) from the request context.
// Returns the ID and true if found, otherwise uuid.Nil and false.
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	session, ok := SessionFromContext(ctx)
	if !ok || session.UserID == uuid.Nil {
		return uuid.Nil, false
	}
	return session.UserID, true
}
