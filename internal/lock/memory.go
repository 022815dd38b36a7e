package lock

import (
	"context"
	"sync"
	"time"

	"marketplace-be/internal/clock"
)

// MemoryLocker only serializes callers inside one process.
type MemoryLocker struct {
	mu    sync.Mutex
	clock clock.Clock
	held  map[string]memoryHold
	seq   uint64
}

type memoryHold struct {
	seq       uint64
	expiresAt time.Time
}

func NewMemoryLocker(c clock.Clock) *MemoryLocker {
	return &MemoryLocker{clock: c, held: make(map[string]memoryHold)}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if h, ok := l.held[key]; ok && now.Before(h.expiresAt) {
		return nil, false, nil
	}

	l.seq++
	l.held[key] = memoryHold{seq: l.seq, expiresAt: now.Add(ttl)}
	return &memoryLease{locker: l, key: key, seq: l.seq}, true, nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	seq    uint64
}

func (m *memoryLease) Release(_ context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()

	if h, ok := m.locker.held[m.key]; ok && h.seq == m.seq {
		delete(m.locker.held, m.key)
	}
	return nil
}
