package bot

import (
	"sync"
	"time"
)

// RateLimiter implements per-user per-action in-memory rate limiting.
type RateLimiter struct {
	mu       sync.Mutex
	lastCall map[int64]map[string]time.Time
	limits   map[string]time.Duration
	exempt   func(userID int64) bool
	now      func() time.Time
}

func NewRateLimiter(exempt func(userID int64) bool) *RateLimiter {
	return &RateLimiter{
		lastCall: make(map[int64]map[string]time.Time),
		limits: map[string]time.Duration{
			"buy":     10 * time.Second,
			"status":  5 * time.Second,
			"receipt": 5 * time.Second,
			"copy":    3 * time.Second,
			"renew":   10 * time.Second,
			"support": 3 * time.Second,
		},
		exempt: exempt,
		now:    time.Now,
	}
}

// IsLimited returns true if the user called action too recently.
func (r *RateLimiter) IsLimited(userID int64, action string) bool {
	if r.exempt != nil && r.exempt(userID) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if r.lastCall[userID] == nil {
		r.lastCall[userID] = make(map[string]time.Time)
	}
	limit, ok := r.limits[action]
	if !ok {
		limit = time.Second
	}
	last := r.lastCall[userID][action]
	if now.Sub(last) < limit {
		return true
	}
	r.lastCall[userID][action] = now
	return false
}
