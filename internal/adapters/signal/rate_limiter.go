package signal

import (
	"context"
	"sync"
	"time"
)

// CreateRateLimiter caps how many meetings one remote host may create per
// sliding window. A nil limiter allows everything.
type CreateRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewCreateRateLimiter(limit int, interval time.Duration) *CreateRateLimiter {
	if limit <= 0 || interval <= 0 {
		return nil
	}
	return &CreateRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *CreateRateLimiter) Allow(host string) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[host]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[host] = fresh
		return false
	}
	rl.history[host] = append(fresh, now)
	return true
}

// Prune forgets hosts with no attempt inside the window.
func (rl *CreateRateLimiter) Prune() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	windowStart := rl.now().Add(-rl.interval)
	n := 0
	for host, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, host)
			n++
		}
	}
	return n
}

// Run prunes once per window until ctx is done.
func (rl *CreateRateLimiter) Run(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	t := time.NewTicker(rl.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			rl.Prune()
		}
	}
}
