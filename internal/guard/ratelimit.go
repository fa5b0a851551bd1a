// Package guard holds the in-memory admission controls: the fixed-window
// rate limiter, the per-user cashout throttle, the short-TTL read cache, and
// the gateway circuit breaker. Every map in here is bounded and pruned; none
// may grow without limit.
package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/liftoff/platform/internal/domain"
)

type rlEntry struct {
	count       int
	windowStart time.Time
}

// RateLimiter is a bounded fixed-window limiter keyed by string (source IP
// for auth endpoints). Expired windows roll over lazily on Check; a periodic
// prune removes dead keys and enforces the size cap by dropping the
// oldest-inserted entries.
type RateLimiter struct {
	mu         sync.Mutex
	entries    map[string]*rlEntry
	order      []string // insertion order, for cap eviction
	limit      int
	window     time.Duration
	maxEntries int

	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRateLimiter creates a limiter allowing limit hits per window, holding at
// most maxEntries keys.
func NewRateLimiter(limit int, window time.Duration, maxEntries int) *RateLimiter {
	return &RateLimiter{
		entries:    make(map[string]*rlEntry),
		limit:      limit,
		window:     window,
		maxEntries: maxEntries,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Check admits or rejects one hit for key.
func (rl *RateLimiter) Check(_ context.Context, key string) domain.GuardResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	e, ok := rl.entries[key]
	if !ok || now.Sub(e.windowStart) >= rl.window {
		if !ok {
			rl.evictOverCapLocked()
			rl.order = append(rl.order, key)
		}
		rl.entries[key] = &rlEntry{count: 1, windowStart: now}
		return domain.GuardResult{
			Allowed:   true,
			Remaining: rl.limit - 1,
			ResetAt:   now.Add(rl.window),
		}
	}

	resetAt := e.windowStart.Add(rl.window)
	if e.count >= rl.limit {
		return domain.GuardResult{
			Allowed: false,
			ResetAt: resetAt,
			Reason:  fmt.Sprintf("rate limit exceeded: %d per %s", rl.limit, rl.window),
			Guard:   "rate_limiter",
		}
	}
	e.count++
	return domain.GuardResult{
		Allowed:   true,
		Remaining: rl.limit - e.count,
		ResetAt:   resetAt,
	}
}

// Start launches the periodic prune loop.
func (rl *RateLimiter) Start(interval time.Duration) {
	go func() {
		defer close(rl.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-rl.quit:
				return
			case <-ticker.C:
				rl.prune()
			}
		}
	}()
}

// Stop halts the prune loop.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.quit) })
	<-rl.done
}

func (rl *RateLimiter) prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, e := range rl.entries {
		if now.Sub(e.windowStart) >= rl.window {
			delete(rl.entries, key)
		}
	}
	rl.compactOrderLocked()
	rl.evictOverCapLocked()
}

// evictOverCapLocked drops oldest-inserted entries until there is room for
// one more key.
func (rl *RateLimiter) evictOverCapLocked() {
	for len(rl.entries) >= rl.maxEntries && len(rl.order) > 0 {
		oldest := rl.order[0]
		rl.order = rl.order[1:]
		delete(rl.entries, oldest)
	}
}

// compactOrderLocked removes order slots whose keys are gone.
func (rl *RateLimiter) compactOrderLocked() {
	live := rl.order[:0]
	for _, key := range rl.order {
		if _, ok := rl.entries[key]; ok {
			live = append(live, key)
		}
	}
	rl.order = live
}
