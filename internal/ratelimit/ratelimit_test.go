package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(start time.Time) (*MemoryStore, *time.Time) {
	now := start
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	return store, &now
}

func TestWithinLimitAllowsAndRemainingDecreases(t *testing.T) {
	store, _ := newTestStore(time.Unix(1_700_000_000, 0))
	limiter := New(store)
	policy := Policy{Limit: 5, Window: time.Minute}

	for i := 1; i <= 5; i++ {
		d, err := limiter.Check(context.Background(), "203.0.113.7", policy)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 5-i, d.Remaining)
	}
}

func TestOverLimitDeniedAndWindowResets(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	store, now := newTestStore(start)
	limiter := New(store)
	policy := Policy{Limit: 3, Window: time.Minute}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d, err := limiter.Check(ctx, "id", policy)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := limiter.Check(ctx, "id", policy)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, start.Add(time.Minute), d.ResetAt)

	// A fresh window opens once the old one elapses.
	*now = start.Add(time.Minute + time.Second)
	d, err = limiter.Check(ctx, "id", policy)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
	assert.Equal(t, now.Add(time.Minute), d.ResetAt)
}

func TestAuthCallbackPolicyEleventhRequestDenied(t *testing.T) {
	store, _ := newTestStore(time.Unix(1_700_000_000, 0))
	limiter := New(store)
	policy := Policy{Limit: 10, Window: 60 * time.Second}

	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		d, err := limiter.Check(ctx, "198.51.100.1", policy)
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i)
	}

	d, err := limiter.Check(ctx, "198.51.100.1", policy)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter(store.now()), time.Duration(0))
}

func TestIndependentIdentifiers(t *testing.T) {
	store, _ := newTestStore(time.Unix(1_700_000_000, 0))
	limiter := New(store)
	policy := Policy{Limit: 1, Window: time.Minute}

	ctx := context.Background()
	d, err := limiter.Check(ctx, "a", policy)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = limiter.Check(ctx, "a", policy)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = limiter.Check(ctx, "b", policy)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "other identifiers keep their own bucket")
}

func TestEmptyIdentifierFallsBackToSharedBucket(t *testing.T) {
	store, _ := newTestStore(time.Unix(1_700_000_000, 0))
	limiter := New(store)
	policy := Policy{Limit: 1, Window: time.Minute}

	ctx := context.Background()
	d, err := limiter.Check(ctx, "", policy)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = limiter.Check(ctx, SharedIdentifier, policy)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "empty identifier shares the global bucket")
}

func TestSweepDropsOnlyElapsedBuckets(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	store, now := newTestStore(start)

	ctx := context.Background()
	_, _, err := store.Incr(ctx, "old", time.Minute)
	require.NoError(t, err)

	*now = start.Add(30 * time.Second)
	_, _, err = store.Incr(ctx, "fresh", time.Minute)
	require.NoError(t, err)

	// "old" elapsed at start+60s, "fresh" has 30s left.
	require.NoError(t, store.Sweep(ctx, start.Add(61*time.Second)))
	assert.Equal(t, 1, store.Len())

	// The surviving bucket is still counting.
	count, _, err := store.Incr(ctx, "fresh", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRetryAfterNeverBelowOneSecond(t *testing.T) {
	d := Decision{ResetAt: time.Unix(100, 0)}
	assert.Equal(t, time.Second, d.RetryAfter(time.Unix(100, 0)))
	assert.Equal(t, time.Second, d.RetryAfter(time.Unix(200, 0)))
	assert.Equal(t, 30*time.Second, d.RetryAfter(time.Unix(70, 0)))
}
