package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/seedchain"
)

// fakeClock drives engine timers manually.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers in chronological order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.fired || t.stopped || t.when.After(target) {
				continue
			}
			if next == nil || t.when.Before(next.when) {
				next = t
			}
		}
		if next == nil {
			break
		}
		if next.when.After(c.now) {
			c.now = next.when
		}
		next.fired = true
		f := next.f
		c.mu.Unlock()
		f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

type fakeSeeds struct {
	mu   sync.Mutex
	seed []byte
	idx  int64
}

func (f *fakeSeeds) EnsureNext(context.Context) (*domain.SeedCommit, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idx++
	return &domain.SeedCommit{Idx: f.idx, SeedHash: seedchain.HashSeed(f.seed)}, f.seed, nil
}

type fakeRoundStore struct {
	mu     sync.Mutex
	starts []domain.Round
}

func (f *fakeRoundStore) PersistRoundStart(_ context.Context, r *domain.Round) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, *r)
	return nil
}

func newTestEngine(clock Clock) *Engine {
	cfg := Config{RoundGap: 5 * time.Second, SettlementWindowSeconds: 300}
	seeds := &fakeSeeds{seed: []byte("engine-test-seed")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, seeds, &fakeRoundStore{}, clock, logger)
}

// installRound puts a running round with a chosen crash point in place,
// bypassing seed derivation so timing assertions are exact.
func installRound(e *Engine, crashPoint int64) uuid.UUID {
	roundID := uuid.New()
	now := e.clock.Now()
	e.mu.Lock()
	e.current = &round{
		id:         roundID,
		seed:       []byte("installed-seed"),
		seedHash:   seedchain.HashSeed([]byte("installed-seed")),
		crashPoint: crashPoint,
		startedAt:  now,
		status:     domain.RoundRunning,
		players:    make(map[uuid.UUID]*participant),
	}
	delay := time.Duration(crashDelay(crashPoint)) * time.Millisecond
	e.crashTimer = e.clock.AfterFunc(delay, func() { e.MarkCrashed("timer") })
	e.mu.Unlock()
	return roundID
}

func TestHappyCashout(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(clock)
	roundID := installRound(e, 350)
	user := uuid.New()

	join, err := e.Join(user, 1000)
	require.NoError(t, err)
	assert.Equal(t, roundID, join.RoundID)

	clock.Advance(2200 * time.Millisecond)

	res, err := e.Cashout(user)
	require.NoError(t, err)
	assert.True(t, res.Win)
	assert.Equal(t, int64(320), res.Multiplier)
	assert.Equal(t, int64(3200), res.Payout)

	clock.Advance(300 * time.Millisecond)
	assert.Equal(t, domain.RoundCrashed, e.Status().Status)
}

func TestCashoutAfterCrashLoses(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(clock)
	installRound(e, 350)
	user := uuid.New()

	_, err := e.Join(user, 1000)
	require.NoError(t, err)

	clock.Advance(2600 * time.Millisecond)

	res, err := e.Cashout(user)
	require.NoError(t, err)
	assert.False(t, res.Win)
	assert.Equal(t, int64(350), res.Multiplier)
	assert.Zero(t, res.Payout)
}

func TestJoinRequiresRunningRound(t *testing.T) {
	e := newTestEngine(newFakeClock())
	_, err := e.Join(uuid.New(), 1000)
	assert.ErrorIs(t, err, ErrNoRunningRound)
}

func TestJoinRejectsDuplicate(t *testing.T) {
	e := newTestEngine(newFakeClock())
	installRound(e, 350)
	user := uuid.New()

	_, err := e.Join(user, 1000)
	require.NoError(t, err)
	_, err = e.Join(user, 500)
	assert.ErrorIs(t, err, ErrAlreadyJoined)
}

func TestCashoutTwiceReturnsAlreadyCashed(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(clock)
	roundID := installRound(e, 350)
	user := uuid.New()

	_, err := e.Join(user, 1000)
	require.NoError(t, err)
	clock.Advance(1500 * time.Millisecond)

	first, err := e.Cashout(user)
	require.NoError(t, err)
	require.True(t, first.Win)

	second, err := e.Cashout(user)
	assert.ErrorIs(t, err, ErrAlreadyCashed)
	require.NotNil(t, second)
	assert.Equal(t, roundID, second.RoundID)
	assert.Equal(t, first.Payout, second.Payout)
}

func TestCashoutWithoutJoinFails(t *testing.T) {
	e := newTestEngine(newFakeClock())
	installRound(e, 350)
	_, err := e.Cashout(uuid.New())
	assert.ErrorIs(t, err, ErrNotJoined)
}

func TestLeaveRemovesUncashedPlayer(t *testing.T) {
	e := newTestEngine(newFakeClock())
	installRound(e, 350)
	user := uuid.New()

	_, err := e.Join(user, 1000)
	require.NoError(t, err)
	e.Leave(user)

	_, err = e.Join(user, 1000)
	assert.NoError(t, err, "a compensated player can rejoin")
}

func TestMultiplierMonotoneAndCapped(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(clock)
	installRound(e, 350)

	var observed []int64
	for i := 0; i < 30; i++ {
		observed = append(observed, e.Status().Multiplier)
		clock.Advance(100 * time.Millisecond)
	}

	assert.True(t, isNonDecreasing(observed), "multiplier must never go backwards")
	for _, m := range observed {
		assert.LessOrEqual(t, m, int64(350))
	}
}

func isNonDecreasing(xs []int64) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i] < xs[i-1] {
			return false
		}
	}
	return true
}

func TestLifecycleEventOrdering(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(clock)

	require.NoError(t, e.Start(context.Background()))

	started := <-e.Events()
	require.Equal(t, EventRoundStarted, started.Kind)
	assert.Empty(t, started.Round.ServerSeed, "roundStarted must not reveal the seed")
	assert.NotEmpty(t, started.Round.ServerSeedHash)

	// Run the round to its crash point.
	clock.Advance(time.Duration(crashDelay(started.Round.CrashPoint)+100) * time.Millisecond)

	crashed := <-e.Events()
	require.Equal(t, EventRoundCrashed, crashed.Kind)
	assert.Equal(t, started.Round.RoundID, crashed.Round.RoundID)
	assert.NotEmpty(t, crashed.Round.ServerSeed, "roundCrashed must reveal the seed")
	assert.Equal(t, seedchain.HashSeed(crashed.Round.ServerSeed), crashed.Round.ServerSeedHash)
	require.NotNil(t, crashed.Round.EndedAt)
}

func TestCrashSchedulesNextRound(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(clock)

	require.NoError(t, e.Start(context.Background()))
	first := <-e.Events()

	clock.Advance(time.Duration(crashDelay(first.Round.CrashPoint)+100) * time.Millisecond)
	<-e.Events() // roundCrashed

	clock.Advance(6 * time.Second)
	next := <-e.Events()
	assert.Equal(t, EventRoundStarted, next.Kind)
	assert.NotEqual(t, first.Round.RoundID, next.Round.RoundID)
}

func TestQueuedCrashEventSurvivesDispose(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(clock)
	installRound(e, 350)

	clock.Advance(3 * time.Second)

	// Dispose before the crash event is consumed: shutdown zeroes the live
	// seed, but the already-queued reveal must keep its own copy.
	e.Dispose()

	crashed := <-e.Events()
	require.Equal(t, EventRoundCrashed, crashed.Kind)
	assert.Equal(t, []byte("installed-seed"), crashed.Round.ServerSeed)
	assert.Equal(t, seedchain.HashSeed(crashed.Round.ServerSeed), crashed.Round.ServerSeedHash)
}

func TestDisposeStopsEngine(t *testing.T) {
	clock := newFakeClock()
	e := newTestEngine(clock)
	installRound(e, 350)

	e.Dispose()
	assert.Equal(t, domain.RoundWaiting, e.Status().Status)

	_, err := e.Join(uuid.New(), 1000)
	assert.ErrorIs(t, err, ErrNoRunningRound)
}
