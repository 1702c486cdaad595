package lock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryLocker is a process-local Locker for single-worker deployments and tests.
type MemoryLocker struct {
	mu    sync.Mutex
	clock clockwork.Clock
	held  map[string]memoryEntry
}

type memoryEntry struct {
	owner     string
	expiresAt time.Time
}

func NewMemoryLocker(clock clockwork.Clock) *MemoryLocker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &MemoryLocker{clock: clock, held: make(map[string]memoryEntry)}
}

func (l *MemoryLocker) Obtain(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	if entry, ok := l.held[key]; ok && now.Before(entry.expiresAt) {
		return nil, ErrNotObtained
	}

	owner := ownerToken()
	l.held[key] = memoryEntry{owner: owner, expiresAt: now.Add(ttl)}

	return &memoryLock{locker: l, key: key, owner: owner}, nil
}

type memoryLock struct {
	locker *MemoryLocker
	key    string
	owner  string
}

func (l *memoryLock) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	if entry, ok := l.locker.held[l.key]; ok && entry.owner == l.owner {
		delete(l.locker.held, l.key)
	}

	return nil
}
