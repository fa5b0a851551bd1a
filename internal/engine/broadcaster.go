package engine

import (
	"log/slog"
	"sync"
	"time"
)

// StatusSource is the read-only view the broadcaster polls.
type StatusSource interface {
	Status() Snapshot
}

// Broadcaster publishes the engine's status to subscribers on a fixed
// cadence. Ticks are lossy: a subscriber with a full buffer misses the tick
// and catches up on the next one. It runs fine with zero subscribers.
type Broadcaster struct {
	src      StatusSource
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	subs   map[int]chan Snapshot
	nextID int

	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewBroadcaster creates a broadcaster polling src every interval.
func NewBroadcaster(src StatusSource, interval time.Duration, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		src:      src,
		interval: interval,
		logger:   logger,
		subs:     make(map[int]chan Snapshot),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the tick loop.
func (b *Broadcaster) Start() {
	go b.run()
}

// Stop halts the tick loop and waits for it to exit.
func (b *Broadcaster) Stop() {
	b.once.Do(func() { close(b.quit) })
	<-b.done
}

// Subscribe registers a tick channel with the given buffer. The returned
// cancel func unregisters and closes it.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Broadcaster) run() {
	defer close(b.done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.quit:
			return
		case <-ticker.C:
			b.publish(b.src.Status())
		}
	}
}

func (b *Broadcaster) publish(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- snap:
		default:
			// lossy on purpose; the next tick carries fresher state
		}
	}
}
