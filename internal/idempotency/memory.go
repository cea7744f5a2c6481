package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryGuard is the single-replica fallback used when Redis is not configured.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]memoryEntry
	now  func() time.Time
	seq  uint64
}

type memoryEntry struct {
	expires time.Time
	seq     uint64
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]memoryEntry), now: time.Now}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if e, ok := g.held[key]; ok && now.Before(e.expires) {
		return nil, false, nil
	}
	g.seq++
	g.held[key] = memoryEntry{expires: now.Add(ttl), seq: g.seq}
	return &memoryLease{guard: g, key: key, seq: g.seq}, true, nil
}

type memoryLease struct {
	guard *MemoryGuard
	key   string
	seq   uint64
}

func (l *memoryLease) Release(context.Context) error {
	l.guard.mu.Lock()
	defer l.guard.mu.Unlock()
	if e, ok := l.guard.held[l.key]; ok && e.seq == l.seq {
		delete(l.guard.held, l.key)
	}
	return nil
}
