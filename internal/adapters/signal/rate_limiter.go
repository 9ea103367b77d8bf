package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Board/internal/domain"
)

// RoomRateLimiter is a sliding-window limiter keyed by user, so opening more
// connections does not buy a user more throughput.
type RoomRateLimiter struct {
	mu        sync.Mutex
	history   map[domain.UserID][]time.Time
	limit     int
	interval  time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		history:  make(map[domain.UserID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RoomRateLimiter) Allow(uid domain.UserID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)
	if now.Sub(rl.lastSweep) >= rl.interval {
		rl.sweep(windowStart)
		rl.lastSweep = now
	}

	attempts := rl.history[uid]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[uid] = fresh
		return false
	}

	rl.history[uid] = append(fresh, now)
	return true
}

// sweep forgets users with no attempt inside the window.
func (rl *RoomRateLimiter) sweep(windowStart time.Time) {
	for uid, attempts := range rl.history {
		if n := len(attempts); n == 0 || !attempts[n-1].After(windowStart) {
			delete(rl.history, uid)
		}
	}
}
