package guard

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, 100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := rl.Check(ctx, "test-key")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, 100)
	ctx := context.Background()

	rl.Check(ctx, "test-key")
	rl.Check(ctx, "test-key")
	result := rl.Check(ctx, "test-key")

	assert.False(t, result.Allowed)
	assert.Equal(t, "rate_limiter", result.Guard)
	assert.False(t, result.ResetAt.IsZero())
}

func TestRateLimiter_ReportsRemaining(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, 100)
	ctx := context.Background()

	assert.Equal(t, 2, rl.Check(ctx, "k").Remaining)
	assert.Equal(t, 1, rl.Check(ctx, "k").Remaining)
	assert.Equal(t, 0, rl.Check(ctx, "k").Remaining)
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, 100)
	ctx := context.Background()

	assert.True(t, rl.Check(ctx, "key-a").Allowed)
	assert.True(t, rl.Check(ctx, "key-b").Allowed)
}

func TestRateLimiter_WindowRollsOver(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond, 100)
	ctx := context.Background()

	require.True(t, rl.Check(ctx, "k").Allowed)
	require.False(t, rl.Check(ctx, "k").Allowed)

	time.Sleep(15 * time.Millisecond)
	assert.True(t, rl.Check(ctx, "k").Allowed, "expired window must roll over")
}

func TestRateLimiter_CapDropsOldestInserted(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute, 2)
	ctx := context.Background()

	rl.Check(ctx, "first")
	rl.Check(ctx, "second")
	rl.Check(ctx, "third") // evicts "first"

	rl.mu.Lock()
	_, hasFirst := rl.entries["first"]
	_, hasThird := rl.entries["third"]
	size := len(rl.entries)
	rl.mu.Unlock()

	assert.False(t, hasFirst)
	assert.True(t, hasThird)
	assert.LessOrEqual(t, size, 2)
}

func TestThrottle_EnforcesMinInterval(t *testing.T) {
	th := NewThrottle(50*time.Millisecond, time.Minute, 100)
	user := uuid.New()

	ok, _ := th.Allow(user)
	require.True(t, ok)

	ok, wait := th.Allow(user)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))

	time.Sleep(60 * time.Millisecond)
	ok, _ = th.Allow(user)
	assert.True(t, ok)
}

func TestThrottle_DeniedAttemptDoesNotResetClock(t *testing.T) {
	th := NewThrottle(40*time.Millisecond, time.Minute, 100)
	user := uuid.New()

	th.Allow(user)
	time.Sleep(25 * time.Millisecond)
	ok, _ := th.Allow(user)
	require.False(t, ok)

	// Had the denial reset the clock, this would still be blocked.
	time.Sleep(20 * time.Millisecond)
	ok, _ = th.Allow(user)
	assert.True(t, ok)
}

func TestThrottle_UsersAreIndependent(t *testing.T) {
	th := NewThrottle(time.Minute, time.Hour, 100)

	ok, _ := th.Allow(uuid.New())
	require.True(t, ok)
	ok, _ = th.Allow(uuid.New())
	assert.True(t, ok)
}

func TestCache_SetGet(t *testing.T) {
	c := NewCache()
	c.Set("round:history", []string{"a", "b"}, time.Minute)

	v, ok := c.Get("round:history")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, v)
}

func TestCache_Expires(t *testing.T) {
	c := NewCache()
	c.Set("k", 1, 5*time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache()
	c.Set("k", 1, time.Minute)
	c.Invalidate("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_SweepRemovesExpired(t *testing.T) {
	c := NewCache()
	c.Set("k", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	c.sweep()

	c.mu.Lock()
	_, present := c.items["k"]
	c.mu.Unlock()
	assert.False(t, present)
}

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)
	assert.True(t, cb.Check().Allowed)
}

func TestCircuitBreaker_OpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()

	result := cb.Check()
	assert.False(t, result.Allowed)
	assert.Equal(t, "circuit_breaker", result.Guard)
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.True(t, cb.Check().Allowed, "failure count must reset on success")
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	cb.RecordFailure()
	require.False(t, cb.Check().Allowed)

	time.Sleep(15 * time.Millisecond)
	assert.True(t, cb.Check().Allowed, "one probe after reset timeout")
	assert.False(t, cb.Check().Allowed, "second concurrent probe rejected")

	cb.RecordSuccess()
	assert.True(t, cb.Check().Allowed)
}
