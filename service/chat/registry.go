package chat

import (
	"sync"
)

// Session is a point-in-time view of one connection's state.
type Session struct {
	ConnID    string
	Username  string
	Room      string
	PushToken string
}

// SessionPatch merges non-nil fields into a session on Upsert.
type SessionPatch struct {
	Username  *string
	Room      *string
	PushToken *string
}

// Registry is the authoritative in-memory map of live connections.
// It is injected into the coordinator at bootstrap; nothing else holds it.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]*Client
	byRoom map[string]map[string]*Client // room -> conn_id -> client
}

func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]*Client),
		byRoom: make(map[string]map[string]*Client),
	}
}

// Add registers a freshly-connected client (no room, no token).
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[c.ConnID] = c
}

// Upsert merges patch into the session. A room change moves the client
// between room indexes; the previous session state is returned.
func (r *Registry) Upsert(connID string, patch SessionPatch) (prev Session, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.byConn[connID]
	if !exists {
		return Session{}, false
	}
	prev = snapshot(c)

	if patch.Username != nil {
		c.Username = *patch.Username
	}
	if patch.PushToken != nil {
		c.PushToken = *patch.PushToken
	}
	if patch.Room != nil && *patch.Room != c.Room {
		r.unindexRoom(c)
		c.Room = *patch.Room
		r.indexRoom(c)
	}
	return prev, true
}

// Remove deletes the session entirely (not archived) and returns its last state.
// Removing an unknown connection is a no-op.
func (r *Registry) Remove(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.byConn[connID]
	if !exists {
		return Session{}, false
	}
	last := snapshot(c)
	r.unindexRoom(c)
	delete(r.byConn, connID)
	return last, true
}

// Get returns the current session view for a connection.
func (r *Registry) Get(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, exists := r.byConn[connID]
	if !exists {
		return Session{}, false
	}
	return snapshot(c), true
}

// MembersOf returns a point-in-time snapshot of the room's member sessions.
func (r *Registry) MembersOf(room string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byRoom[room]
	if len(m) == 0 {
		return nil
	}
	out := make([]Session, 0, len(m))
	for _, c := range m {
		out = append(out, snapshot(c))
	}
	return out
}

// ClientsOf returns the live clients currently joined to room.
func (r *Registry) ClientsOf(room string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byRoom[room]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

func (r *Registry) indexRoom(c *Client) {
	if c.Room == "" {
		return
	}
	m := r.byRoom[c.Room]
	if m == nil {
		m = make(map[string]*Client)
		r.byRoom[c.Room] = m
	}
	m[c.ConnID] = c
}

func (r *Registry) unindexRoom(c *Client) {
	if c.Room == "" {
		return
	}
	if m := r.byRoom[c.Room]; m != nil {
		delete(m, c.ConnID)
		if len(m) == 0 {
			delete(r.byRoom, c.Room)
		}
	}
}

func snapshot(c *Client) Session {
	return Session{
		ConnID:    c.ConnID,
		Username:  c.Username,
		Room:      c.Room,
		PushToken: c.PushToken,
	}
}
