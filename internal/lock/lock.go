// Package lock provides the per-conversation single-flight guard for sends.
package lock

import (
	"context"
	"errors"
)

// ErrLocked is returned by Acquire when the key is already held.
var ErrLocked = errors.New("lock: already held")

// Locker grants exclusive, non-blocking ownership of a key. Acquire never
// waits: a held key fails fast with ErrLocked.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
