package realtime

import (
	"sort"
	"sync"

	"groupchat/internal/metrics"
)

// Registry maps a user id to that user's live connections. It is the only
// source of truth for presence and is rebuilt empty on process start.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]Conn
	total int
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[string]map[string]Conn)}
}

// Register adds conn to the user's set and reports whether it is the user's
// first live connection.
func (r *Registry) Register(userID string, conn Conn) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		set = make(map[string]Conn)
		r.users[userID] = set
		first = true
	}
	if _, dup := set[conn.ID()]; !dup {
		set[conn.ID()] = conn
		r.total++
	}
	r.observe()
	return first
}

// Unregister removes conn and reports whether the user has no live
// connection left. Unregistering an unknown connection reports false.
func (r *Registry) Unregister(userID string, conn Conn) (becameOffline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, present := set[conn.ID()]; !present {
		return false
	}
	delete(set, conn.ID())
	r.total--
	if len(set) == 0 {
		delete(r.users, userID)
		becameOffline = true
	}
	r.observe()
	return becameOffline
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

func (r *Registry) has(userID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID][connID]
	return ok
}

// ConnectionsOf returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsOf(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.users[userID]
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// OnlineUsers returns the ids of all users with a live connection, sorted.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Connections returns a snapshot of every live connection.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conn, 0, r.total)
	for _, set := range r.users {
		for _, c := range set {
			out = append(out, c)
		}
	}
	return out
}

// observe must be called with mu held.
func (r *Registry) observe() {
	metrics.ConnectionsActive.Set(float64(r.total))
	metrics.OnlineUsers.Set(float64(len(r.users)))
}
