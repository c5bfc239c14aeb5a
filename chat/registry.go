package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/puyokura/foodfortalk/model"
)

// Session is one admitted connection. UserID and DisplayName are fixed at connect time.
type Session struct {
	Conn        Conn
	UserID      uint
	DisplayName string
	ConnectedAt time.Time
}

// Registry tracks who is online. At most one session per user is kept.
type Registry struct {
	mu     sync.RWMutex
	byUser map[uint]*Session
	byConn map[string]uint // conn id -> user id
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[uint]*Session),
		byConn: make(map[string]uint),
	}
}

// Admit stores s and returns the session it replaced, if any.
func (r *Registry) Admit(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.byUser[s.UserID]
	if prev != nil {
		delete(r.byConn, prev.Conn.ID())
	}
	r.byUser[s.UserID] = s
	r.byConn[s.Conn.ID()] = s.UserID
	return prev
}

// Remove drops the session owned by conn. It is a no-op for unknown or replaced connections.
func (r *Registry) Remove(conn Conn) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[conn.ID()]
	if !ok {
		return nil, false
	}
	delete(r.byConn, conn.ID())

	s := r.byUser[userID]
	delete(r.byUser, userID)
	return s, true
}

// Find returns the live session of userID.
func (r *Registry) Find(userID uint) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUser[userID]
	return s, ok
}

// SessionOf returns the session conn was admitted with, if it is still current.
func (r *Registry) SessionOf(conn Conn) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[conn.ID()]
	if !ok {
		return nil, false
	}
	return r.byUser[userID], true
}

// ListOnline returns the online users ordered by id.
func (r *Registry) ListOnline() []model.PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.PresenceEntry, 0, len(r.byUser))
	for _, s := range r.byUser {
		out = append(out, model.PresenceEntry{UserID: s.UserID, DisplayName: s.DisplayName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Sessions returns a snapshot for fan-out.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.byUser))
	for _, s := range r.byUser {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
