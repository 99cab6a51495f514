package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Record
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record), now: time.Now}
}

func (m *MemoryStore) Put(ctx context.Context, rec Record) error {
	if rec.ID == "" || rec.UserID == "" {
		return errors.New("session: missing id or user_id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !rec.ExpiresAt.After(m.now()) {
		delete(m.recs, rec.ID)
		return nil
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if !rec.ExpiresAt.After(m.now()) {
		delete(m.recs, id)
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.recs, id)
	m.mu.Unlock()
	return nil
}
