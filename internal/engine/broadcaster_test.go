package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftoff/platform/internal/domain"
)

type staticStatus struct{ snap Snapshot }

func (s staticStatus) Status() Snapshot { return s.snap }

func TestBroadcasterDeliversTicks(t *testing.T) {
	src := staticStatus{snap: Snapshot{Status: domain.RoundRunning, Multiplier: 150}}
	b := NewBroadcaster(src, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Start()
	defer b.Stop()

	select {
	case snap := <-ch:
		assert.Equal(t, int64(150), snap.Multiplier)
	case <-time.After(time.Second):
		t.Fatal("no tick within 1s")
	}
}

func TestBroadcasterDropsWhenSubscriberFull(t *testing.T) {
	src := staticStatus{snap: Snapshot{Status: domain.RoundRunning, Multiplier: 150}}
	b := NewBroadcaster(src, time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Buffer of one that nobody drains: publishes must not block.
	_, cancel := b.Subscribe(1)
	defer cancel()

	b.Start()
	time.Sleep(20 * time.Millisecond)
	b.Stop()
}

func TestBroadcasterRunsWithoutSubscribers(t *testing.T) {
	src := staticStatus{snap: Snapshot{Status: domain.RoundWaiting, Multiplier: 100}}
	b := NewBroadcaster(src, time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	b.Start()
	time.Sleep(10 * time.Millisecond)
	b.Stop()
}

func TestSubscribeCancelCloses(t *testing.T) {
	src := staticStatus{}
	b := NewBroadcaster(src, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ch, cancel := b.Subscribe(1)
	cancel()

	_, open := <-ch
	require.False(t, open, "cancel must close the subscription channel")
}
