package api

import (
	"net/http"
	"sync"
	"time"

	"wolf-backend/internal/auth"
	"wolf-backend/pkg/httputil"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	rateLimitMessage = "Rate limit exceeded. Please try again later."
	limiterIdleTTL   = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserRateLimiter applies a token bucket per authenticated user.
type UserRateLimiter struct {
	mu        sync.Mutex
	limiters  map[uuid.UUID]*limiterEntry
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewUserRateLimiter returns nil when rps <= 0; a nil limiter allows
// everything.
func NewUserRateLimiter(rps float64, burst int) *UserRateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &UserRateLimiter{
		limiters: make(map[uuid.UUID]*limiterEntry),
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether userID may make another request now.
func (l *UserRateLimiter) Allow(userID uuid.UUID) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	entry, ok := l.limiters[userID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *UserRateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < limiterIdleTTL {
		return
	}
	l.lastSweep = now
	for id, e := range l.limiters {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(l.limiters, id)
		}
	}
}

// Middleware rejects over-limit requests with 429. It must run after the JWT
// middleware.
func (l *UserRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := auth.GetUserIDFromContext(r.Context()); ok && !l.Allow(userID) {
			httputil.RespondError(w, http.StatusTooManyRequests, rateLimitMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}
