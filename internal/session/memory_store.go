package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ship/internal/ship/ports"
)

// memoryStore keeps sessions in a map. Used by tests and by the server when
// no session directory is configured.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*ports.Session
}

// NewMemoryStore returns an in-memory SessionStore.
func NewMemoryStore() ports.SessionStore {
	return &memoryStore{sessions: make(map[string]*ports.Session)}
}

func (m *memoryStore) Create(ctx context.Context, session *ports.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; ok {
		return ports.ErrSessionExists
	}
	copied, err := cloneSession(session)
	if err != nil {
		return err
	}
	m.sessions[session.ID] = copied
	return nil
}

func (m *memoryStore) Get(ctx context.Context, id string) (*ports.Session, error) {
	m.mu.RLock()
	stored, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ports.ErrSessionNotFound
	}
	return cloneSession(stored)
}

func (m *memoryStore) Update(ctx context.Context, id string, mutate func(*ports.Session) error) (*ports.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[id]
	if !ok {
		return nil, ports.ErrSessionNotFound
	}
	working, err := cloneSession(stored)
	if err != nil {
		return nil, err
	}
	if err := mutate(working); err != nil {
		return nil, err
	}
	working.Version = stored.Version + 1
	working.UpdatedAt = time.Now()
	m.sessions[id] = working
	return cloneSession(working)
}

func (m *memoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// cloneSession deep-copies a session through its JSON form so callers never
// alias stored state.
func cloneSession(s *ports.Session) (*ports.Session, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out ports.Session
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
