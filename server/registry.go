package server

import (
	"sync"

	"chat-relay/contract"
	"chat-relay/errors"
)

type Set map[string]struct{}

// Registry owns the two process-wide membership structures: the session
// directory (username to connection) and the room membership sets. One
// lock guards both so a broadcast snapshot never observes a half-applied
// join or leave.
type Registry struct {
	mu          sync.RWMutex
	Sessions    map[string]contract.Outbound // username -> connected session
	RoomMembers map[string]Set               // room -> usernames
}

func NewRegistry() *Registry {
	return &Registry{
		Sessions:    make(map[string]contract.Outbound),
		RoomMembers: make(map[string]Set),
	}
}

// AddSession registers an authenticated session under its username.
// A username can be connected at most once; a second connection with the
// same identity is refused so private message routing stays unambiguous.
func (r *Registry) AddSession(s contract.Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.Sessions[s.Username()]; ok {
		return errors.ErrAlreadyConnected
	}
	r.Sessions[s.Username()] = s
	return nil
}

func (r *Registry) RemoveSession(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Sessions, username)
}

// FindSession resolves a live session by identity, for private messages.
func (r *Registry) FindSession(username string) (contract.Outbound, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.Sessions[username]
	return s, ok
}

// Join adds the user to the named room, creating the room on first use.
func (r *Registry) Join(username, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.RoomMembers[room]; !ok {
		r.RoomMembers[room] = make(Set)
	}
	r.RoomMembers[room][username] = struct{}{}
}

// Leave removes the user from the room's member set and reports whether a
// removal actually happened. Leaving a room the user is not in is a no-op.
// Emptied rooms are kept; rooms are never reclaimed.
func (r *Registry) Leave(username, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.RoomMembers[room]
	if !ok {
		return false
	}
	if _, ok := members[username]; !ok {
		return false
	}
	delete(members, username)
	return true
}

// Snapshot resolves the room's current members into live sessions,
// excluding one username (the sender). Delivery happens outside the lock:
// the caller gets a copy that later joins/leaves cannot disturb.
// Returns nil for an unknown or empty room.
func (r *Registry) Snapshot(room, except string) []contract.Outbound {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.RoomMembers[room]
	if !ok {
		return nil
	}
	var sessions []contract.Outbound
	for username := range members {
		if username == except {
			continue
		}
		if s, exists := r.Sessions[username]; exists {
			sessions = append(sessions, s)
		}
	}
	return sessions
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Sessions)
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.RoomMembers)
}
