package router

import (
	"sync"
	"time"
)

const (
	maxMessagesPerMinute = 100
	rateLimitWindow      = time.Minute
)

type userLimit struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// RateLimiter enforces a per-user sliding window over message sends.
type RateLimiter struct {
	users map[int64]*userLimit
	mu    sync.RWMutex
}

// NewRateLimiter creates a rate limiter allowing 100 messages per minute
// per user.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		users: make(map[int64]*userLimit),
	}
}

// Allow reports whether the user may send another message now, recording
// the send if so.
func (rl *RateLimiter) Allow(userID int64) bool {
	rl.mu.RLock()
	limit, ok := rl.users[userID]
	rl.mu.RUnlock()

	if !ok {
		rl.mu.Lock()
		if limit, ok = rl.users[userID]; !ok {
			limit = &userLimit{}
			rl.users[userID] = limit
		}
		rl.mu.Unlock()
	}

	limit.mu.Lock()
	defer limit.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rateLimitWindow)

	kept := limit.timestamps[:0]
	for _, ts := range limit.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	limit.timestamps = kept

	if len(limit.timestamps) >= maxMessagesPerMinute {
		return false
	}

	limit.timestamps = append(limit.timestamps, now)
	return true
}

// Cleanup drops users with no sends inside the window. Run periodically.
func (rl *RateLimiter) Cleanup() {
	cutoff := time.Now().Add(-rateLimitWindow)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for userID, limit := range rl.users {
		limit.mu.Lock()
		active := false
		for _, ts := range limit.timestamps {
			if ts.After(cutoff) {
				active = true
				break
			}
		}
		limit.mu.Unlock()
		if !active {
			delete(rl.users, userID)
		}
	}
}
