package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tracekeeper/internal/trace/ports"
	"tracekeeper/pkg/platform/sentinel"
)

// MemoryLock is an in-process lease table for single-instance deployments and tests.
type MemoryLock struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
	seq    uint64
}

type lease struct {
	token   uint64
	expires time.Time
}

func NewMemory() *MemoryLock {
	return &MemoryLock{
		leases: make(map[string]lease),
		now:    time.Now,
	}
}

func (l *MemoryLock) Acquire(_ context.Context, key string, ttl time.Duration) (ports.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[key]; ok && now.Before(held.expires) {
		return nil, fmt.Errorf("acquire lease %s: %w", key, sentinel.ErrAlreadyUsed)
	}
	l.seq++
	l.leases[key] = lease{token: l.seq, expires: now.Add(ttl)}
	return &memoryLease{lock: l, key: key, token: l.seq}, nil
}

type memoryLease struct {
	lock  *MemoryLock
	key   string
	token uint64
}

func (m *memoryLease) Extend(_ context.Context, ttl time.Duration) error {
	m.lock.mu.Lock()
	defer m.lock.mu.Unlock()

	now := m.lock.now()
	held, ok := m.lock.leases[m.key]
	if !ok || held.token != m.token || !now.Before(held.expires) {
		return fmt.Errorf("extend lease %s: %w", m.key, sentinel.ErrNotFound)
	}
	m.lock.leases[m.key] = lease{token: m.token, expires: now.Add(ttl)}
	return nil
}

func (m *memoryLease) Release(context.Context) error {
	m.lock.mu.Lock()
	defer m.lock.mu.Unlock()
	if held, ok := m.lock.leases[m.key]; ok && held.token == m.token {
		delete(m.lock.leases, m.key)
	}
	return nil
}
