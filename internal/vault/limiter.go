package vault

import (
	"sync"

	"golang.org/x/time/rate"
)

// exportLimiter hands out one token bucket per user.
type exportLimiter struct {
	mu        sync.Mutex
	perMinute float64
	burst     int
	users     map[string]*rate.Limiter
}

func newExportLimiter(perMinute float64, burst int) *exportLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &exportLimiter{perMinute: perMinute, burst: burst, users: make(map[string]*rate.Limiter)}
}

func (l *exportLimiter) allow(userID string) bool {
	l.mu.Lock()
	limiter, ok := l.users[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.perMinute/60.0), l.burst)
		l.users[userID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}
