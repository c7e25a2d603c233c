package websocket

import (
	"sync"
)

// Registry indexes joined sessions by room (the joined user's id).
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]*Session),
	}
}

// Join adds s to the room of its user. Joining twice is a no-op.
func (r *Registry) Join(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[s.UserID] == nil {
		r.rooms[s.UserID] = make(map[string]*Session)
	}
	r.rooms[s.UserID][s.ID] = s
}

// Leave removes s only if the room still holds this exact session.
func (r *Registry) Leave(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessions, ok := r.rooms[s.UserID]; ok {
		if current, ok := sessions[s.ID]; ok && current == s {
			delete(sessions, s.ID)
			if len(sessions) == 0 {
				delete(r.rooms, s.UserID)
			}
		}
	}
}

func (r *Registry) Room(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Session, 0, len(r.rooms[userID]))
	for _, s := range r.rooms[userID] {
		result = append(result, s)
	}
	return result
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, sessions := range r.rooms {
		n += len(sessions)
	}
	return n
}

func (r *Registry) CloseAll() {
	r.mu.RLock()
	var all []*Session
	for _, sessions := range r.rooms {
		for _, s := range sessions {
			all = append(all, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range all {
		s.Close()
	}
}
