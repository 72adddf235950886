package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryIndex is an in-process DeadlineIndex.
type MemoryIndex struct {
	mu     sync.RWMutex
	queues map[string]map[string]float64
}

// NewMemoryIndex returns an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{queues: make(map[string]map[string]float64)}
}

func (m *MemoryIndex) Insert(_ context.Context, hospitalID, caseID string, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[hospitalID]
	if !ok {
		q = make(map[string]float64)
		m.queues[hospitalID] = q
	}
	q[caseID] = Score(deadline)
	return nil
}

func (m *MemoryIndex) Remove(_ context.Context, hospitalID, caseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[hospitalID]
	delete(q, caseID)
	if len(q) == 0 {
		delete(m.queues, hospitalID)
	}
	return nil
}

func (m *MemoryIndex) PeekEarliest(_ context.Context, hospitalID string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best Entry
	found := false
	for id, s := range m.queues[hospitalID] {
		if !found || s < best.Score || (s == best.Score && id < best.CaseID) {
			best = Entry{CaseID: id, Score: s}
			found = true
		}
	}
	return best, found, nil
}

// Rebuild swaps in a fresh map so readers see either the old or the new set.
func (m *MemoryIndex) Rebuild(_ context.Context, hospitalID string, entries []Entry) error {
	q := make(map[string]float64, len(entries))
	for _, e := range entries {
		q[e.CaseID] = e.Score
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(q) == 0 {
		delete(m.queues, hospitalID)
		return nil
	}
	m.queues[hospitalID] = q
	return nil
}

func (m *MemoryIndex) Lookup(_ context.Context, hospitalID, caseID string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.queues[hospitalID][caseID]
	return s, ok, nil
}

func (m *MemoryIndex) Len(_ context.Context, hospitalID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queues[hospitalID]), nil
}

func (m *MemoryIndex) Tenants(context.Context) ([]string, error) {
	m.mu.RLock()
	out := make([]string, 0, len(m.queues))
	for h := range m.queues {
		out = append(out, h)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

// MemoryLocker is an in-process Locker with lease expiry.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]memoryLease
	Now  func() time.Time
}

type memoryLease struct {
	token   string
	expires time.Time
}

// NewMemoryLocker returns a locker using the wall clock.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryLease), Now: time.Now}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, lease, wait time.Duration) (Lock, error) {
	token := uuid.NewString()
	err := AcquireWithin(ctx, wait, func() (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		now := l.Now()
		if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
			return false, nil
		}
		l.held[key] = memoryLease{token: token, expires: now.Add(lease)}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &memoryLock{owner: l, key: key, token: token}, nil
}

type memoryLock struct {
	owner *MemoryLocker
	key   string
	token string
}

func (m *memoryLock) Key() string { return m.key }

func (m *memoryLock) Release(context.Context) error {
	m.owner.mu.Lock()
	defer m.owner.mu.Unlock()
	cur, ok := m.owner.held[m.key]
	if !ok || cur.token != m.token {
		return ErrLockLost
	}
	delete(m.owner.held, m.key)
	return nil
}
