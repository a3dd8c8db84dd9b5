package server

import "sync"

// Registry maps each user to their set of live connections. It is the
// single source of truth for reachability. Register and Deregister
// report the 0->1 and 1->0 boundary crossings atomically with the
// mutation, so presence transitions are detected exactly once even
// when several connections of one user come and go concurrently.
type Registry struct {
	mu    sync.Mutex
	conns map[int64]map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]map[*Conn]struct{})}
}

// Register adds the connection to its owner's set and reports whether
// it was the user's first live connection.
func (r *Registry) Register(c *Conn) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[c.UserID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[c.UserID] = set
	}
	first = len(set) == 0
	set[c] = struct{}{}
	return first
}

// Deregister removes the connection and reports whether its owner has
// no connections left. Deregistering a connection that is not present
// is a no-op and never reports a spurious offline transition.
func (r *Registry) Deregister(c *Conn) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[c.UserID]
	if !ok {
		return false
	}
	if _, present := set[c]; !present {
		return false
	}

	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, c.UserID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[userID]) > 0
}

// ConnectionsFor returns a snapshot of the user's live connections,
// empty if the user is offline or unknown.
func (r *Registry) ConnectionsFor(userID int64) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.conns[userID]
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// All returns a snapshot of every live connection, for shutdown.
func (r *Registry) All() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Conn
	for _, set := range r.conns {
		for c := range set {
			out = append(out, c)
		}
	}
	return out
}

// Counts reports live connections and distinct online users.
func (r *Registry) Counts() (connections, users int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, set := range r.conns {
		connections += len(set)
	}
	return connections, len(r.conns)
}
