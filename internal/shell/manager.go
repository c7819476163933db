//go:build linux || darwin

package shell

import (
	"sort"
	"sync"
)

// Manager tracks live shell sessions by id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// Get returns nil when id is unknown.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// List returns the sessions ordered by start time.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].StartedAt.Before(list[j].StartedAt)
	})
	return list
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupAll tears down every session concurrently and waits for all of
// them.
func (m *Manager) CleanupAll() {
	var wg sync.WaitGroup
	for _, s := range m.List() {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Cleanup()
		}(s)
	}
	wg.Wait()
}
