package session

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps sessions in process memory. It stores copies so uncommitted
// handler mutations never leak into the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]*Session)}
}

// GetOrCreate returns a copy of the stored session, creating it on first use.
func (m *MemoryStore) GetOrCreate(_ context.Context, id int64) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s.Clone(), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s.Clone(), nil
	}
	fresh := New(id)
	m.sessions[id] = fresh
	return fresh.Clone(), nil
}

// Update stores a copy of s.
func (m *MemoryStore) Update(_ context.Context, s *Session) error {
	if s == nil {
		return fmt.Errorf("session: nil session")
	}
	if !s.State.Valid() {
		return fmt.Errorf("session %d: %w", s.ID, ErrInvalidState)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Len reports the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
