package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps locks in process memory. Used by single-process
// deployments and unit tests.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]Lock
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[string]Lock), now: time.Now}
}

// WithClock overrides the time source.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) TakeLock(_ context.Context, key string, ttl time.Duration) (*Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if cur, ok := m.locks[key]; ok && now.Before(cur.ExpiresOn) {
		return nil, ErrLockTaken
	}
	l := Lock{Key: key, Owner: newOwner(), ExpiresOn: now.Add(ttl)}
	m.locks[key] = l
	return &l, nil
}

func (m *MemoryStore) ReleaseLock(_ context.Context, l *Lock) error {
	if l == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.locks[l.Key]; ok && cur.Owner == l.Owner {
		delete(m.locks, l.Key)
	}
	return nil
}

func (m *MemoryStore) ExtendLock(_ context.Context, l *Lock, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	cur, ok := m.locks[l.Key]
	if !ok || cur.Owner != l.Owner || !now.Before(cur.ExpiresOn) {
		return ErrLockTaken
	}
	cur.ExpiresOn = now.Add(ttl)
	m.locks[l.Key] = cur
	l.ExpiresOn = cur.ExpiresOn
	return nil
}

// IsLocked reports whether key is currently held.
func (m *MemoryStore) IsLocked(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.locks[key]
	return ok && m.now().Before(cur.ExpiresOn)
}
