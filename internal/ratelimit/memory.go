package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepEvery triggers a passive full sweep once per this many increments.
const sweepEvery = 256

type bucket struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

func (b *bucket) elapsed(now time.Time) bool {
	return !now.Before(b.windowStart.Add(b.window))
}

// MemoryStore is a process-local fixed-window store. Each process
// instance enforces its own independent limit; a deployment needing a
// globally consistent limit should use the Redis store instead.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	ops     int

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (s *MemoryStore) Incr(_ context.Context, id string, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	s.ops++
	if s.ops%sweepEvery == 0 {
		s.sweepLocked(now)
	}

	b, ok := s.buckets[id]
	if !ok || b.elapsed(now) {
		b = &bucket{count: 1, windowStart: now, window: window}
		s.buckets[id] = b
		return b.count, b.windowStart, nil
	}

	b.count++
	return b.count, b.windowStart, nil
}

// Sweep drops every bucket whose window elapsed before now.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	return nil
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for id, b := range s.buckets {
		if b.elapsed(now) {
			delete(s.buckets, id)
		}
	}
}

// Len reports the number of live buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
