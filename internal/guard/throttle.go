package guard

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Throttle enforces a per-user minimum interval between cashout attempts.
// Stale entries are pruned on every call and on a periodic timer, and the map
// is capped by dropping oldest-inserted users.
type Throttle struct {
	mu          sync.Mutex
	last        map[uuid.UUID]time.Time
	order       []uuid.UUID
	minInterval time.Duration
	pruneAge    time.Duration
	maxEntries  int

	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewThrottle creates a throttle with the given minimum interval between
// calls per user. Entries idle longer than pruneAge are forgotten.
func NewThrottle(minInterval, pruneAge time.Duration, maxEntries int) *Throttle {
	return &Throttle{
		last:        make(map[uuid.UUID]time.Time),
		minInterval: minInterval,
		pruneAge:    pruneAge,
		maxEntries:  maxEntries,
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Allow records an attempt for userID and reports whether it respects the
// minimum interval. Denied attempts do not reset the clock.
func (t *Throttle) Allow(userID uuid.UUID) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.pruneLocked(now)

	if prev, ok := t.last[userID]; ok {
		if wait := t.minInterval - now.Sub(prev); wait > 0 {
			return false, wait
		}
	} else {
		t.evictOverCapLocked()
		t.order = append(t.order, userID)
	}
	t.last[userID] = now
	return true, 0
}

// Start launches the periodic prune loop.
func (t *Throttle) Start(interval time.Duration) {
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.quit:
				return
			case <-ticker.C:
				t.mu.Lock()
				t.pruneLocked(time.Now())
				t.mu.Unlock()
			}
		}
	}()
}

// Stop halts the prune loop.
func (t *Throttle) Stop() {
	t.once.Do(func() { close(t.quit) })
	<-t.done
}

func (t *Throttle) pruneLocked(now time.Time) {
	for id, last := range t.last {
		if now.Sub(last) >= t.pruneAge {
			delete(t.last, id)
		}
	}
	live := t.order[:0]
	for _, id := range t.order {
		if _, ok := t.last[id]; ok {
			live = append(live, id)
		}
	}
	t.order = live
}

func (t *Throttle) evictOverCapLocked() {
	for len(t.last) >= t.maxEntries && len(t.order) > 0 {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.last, oldest)
	}
}
