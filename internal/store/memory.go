package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"regime-engine/internal/engine"
)

// MemoryStore is an in-memory SessionStore. Sessions are deep-copied through
// JSON on the way in and out so callers never share mutable state with the
// store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

// Save stores a deep copy of the session
func (m *MemoryStore) Save(_ context.Context, session *engine.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = data
	return nil
}

// Get returns a deep copy of the session
func (m *MemoryStore) Get(_ context.Context, id string) (*engine.Session, error) {
	m.mu.RLock()
	data, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var session engine.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns all sessions, newest first
func (m *MemoryStore) List(_ context.Context) ([]*engine.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*engine.Session, 0, len(m.sessions))
	for _, data := range m.sessions {
		var session engine.Session
		if err := json.Unmarshal(data, &session); err != nil {
			return nil, err
		}
		sessions = append(sessions, &session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// Delete removes a session
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}
