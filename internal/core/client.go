package core

import "sync"

// State is a connection's lifecycle state.
type State int

const (
	// StateConnecting is the initial state before identity is resolved.
	StateConnecting State = iota
	// StateIdentified means identity is bound; operations are accepted.
	StateIdentified
	// StateClosed means the connection is terminated or superseded.
	StateClosed
)

// Client is one live connection as seen by the core layer. The transport
// owns the underlying socket; the core holds the client only as a delivery
// handle keyed by user ID in the presence registry.
type Client struct {
	// ConnID uniquely identifies this connection, not the user. Two
	// consecutive connections of the same user have distinct ConnIDs.
	ConnID string

	// Events carries outbound events to the transport write loop.
	Events chan *Event

	mu       sync.Mutex
	state    State
	userID   string
	username string

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client in the Connecting state.
func NewClient(connID string) *Client {
	return &Client{
		ConnID: connID,
		Events: make(chan *Event, 16),
		done:   make(chan struct{}),
	}
}

// identify binds a resolved identity and moves the client to Identified.
func (c *Client) identify(userID, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.username = username
	c.state = StateIdentified
}

// Identity returns the bound user identity. ok is false unless the client
// is in the Identified state.
func (c *Client) Identity() (userID, username string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdentified {
		return "", "", false
	}
	return c.userID, c.username, true
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close moves the client to Closed and signals Done. Safe to call more
// than once; later calls are no-ops.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		close(c.done)
	})
}

// Done is closed when the client is closed or superseded by a newer
// connection of the same user. The transport write loop watches it.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// send delivers an event without blocking. Events are dropped for closed
// clients and slow consumers; live delivery is best-effort by contract.
func (c *Client) send(ev *Event) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.Events <- ev:
	default:
		// Drop if slow consumer.
	}
}
