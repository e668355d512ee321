package services

import (
	"errors"
	"fmt"
)

// Send errors. Anything returned by SendMessage after the user turn was
// persisted leaves that turn in place; sends are never retried.
var (
	ErrEmptyMessage = errors.New("message text is empty")
	ErrSendInFlight = errors.New("a message is already being sent to this conversation")
	ErrAuth         = errors.New("authentication required")
	ErrStreamFailed = errors.New("completion stream failed")
)

// AuthError reports a missing or unusable session.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAuth.Error(), e.Reason)
}

func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// PersistenceError wraps a store failure during a send. Err may be
// store.ErrNotFound when the conversation is gone or not owned by the caller.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
