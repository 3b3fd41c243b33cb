package core

import "sync"

// Registry is the authoritative in-memory mapping from user ID to the
// user's active connection. At most one entry exists per user; a new
// registration for the same user supersedes the old one (latest wins).
//
// All methods are safe for concurrent use from many connection
// lifecycles. No caller I/O happens while the lock is held.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry constructs an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register inserts or replaces the entry for userID and returns the
// replaced client, if any. A non-nil return signals a reconnect: the
// caller owns closing the superseded connection.
func (r *Registry) Register(userID string, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.clients[userID]
	r.clients[userID] = c
	return prev
}

// Lookup returns the active connection for userID, if any.
func (r *Registry) Lookup(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

// Unregister removes the entry for userID only if it still points at
// expected. A stale disconnect from a superseded connection is a no-op,
// so it can never evict a newer registration. Reports whether the entry
// was removed.
func (r *Registry) Unregister(userID string, expected *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients[userID] != expected {
		return false
	}
	delete(r.clients, userID)
	return true
}

// SnapshotOnlineIDs returns the IDs of all currently registered users.
func (r *Registry) SnapshotOnlineIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// Clients returns all currently registered connections. Used for full
// broadcasts.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}
