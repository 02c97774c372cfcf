package repo

import (
	"context"
	"sync"
	"time"
)

const defaultSweepEvery = 30 * time.Second

type windowCounter struct {
	count     int64
	expiresAt time.Time
}

// MemoryRateStore 进程内频控存储，只在单实例或 Redis 不可用的部署里使用。
// 过期数据在访问时按 sweepEvery 的间隔统一清理。
type MemoryRateStore struct {
	mu         sync.Mutex
	counters   map[string]*windowCounter
	markers    map[string]time.Time
	now        func() time.Time
	sweepEvery time.Duration
	lastSweep  time.Time
}

// NewMemoryRateStore uses now as its clock; nil means time.Now.
func NewMemoryRateStore(now func() time.Time) *MemoryRateStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryRateStore{
		counters:   make(map[string]*windowCounter),
		markers:    make(map[string]time.Time),
		now:        now,
		sweepEvery: defaultSweepEvery,
		lastSweep:  now(),
	}
}

func (s *MemoryRateStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = &windowCounter{}
		s.counters[key] = c
	}
	c.count++
	if c.count == 1 {
		c.expiresAt = now.Add(window)
	}
	return c.count, nil
}

func (s *MemoryRateStore) TryMark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	if expiresAt, ok := s.markers[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	s.markers[key] = now.Add(ttl)
	return true, nil
}

// Len reports how many live or not-yet-swept entries the store holds.
func (s *MemoryRateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters) + len(s.markers)
}

// Sweep drops every expired entry immediately.
func (s *MemoryRateStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(s.now())
}

func (s *MemoryRateStore) sweepLocked(now time.Time) {
	if now.Sub(s.lastSweep) < s.sweepEvery {
		return
	}
	s.sweep(now)
}

func (s *MemoryRateStore) sweep(now time.Time) {
	for k, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, k)
		}
	}
	for k, exp := range s.markers {
		if !now.Before(exp) {
			delete(s.markers, k)
		}
	}
	s.lastSweep = now
}
