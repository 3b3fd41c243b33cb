package core

import "github.com/tmakarov/pulsechat-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessage delivers a new message to its receiver.
	EventMessage EventKind = iota
	// EventMessageSent acknowledges a successful send to the sender.
	EventMessageSent
	// EventMessageError reports a failed send to the sender.
	EventMessageError
	// EventStatusUpdate notifies about a user's presence status change.
	EventStatusUpdate
	// EventOnlineUsers delivers the online-users snapshot to a client
	// right after it is identified.
	EventOnlineUsers
	// EventHistory delivers conversation history to the requesting client.
	EventHistory
	// EventMessagesRead acknowledges a mark-as-read request with the count.
	EventMessagesRead
	// EventError notifies a client about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Message  *store.Message   // EventMessage, EventMessageSent
	Messages []*store.Message // EventHistory
	Users    []*store.User    // EventOnlineUsers
	UserID   string           // EventStatusUpdate: whose status; EventHistory: peer; EventMessagesRead: sender
	Status   store.Status     // EventStatusUpdate
	Count    int64            // EventMessagesRead
	Error    *CoreError       // EventError, EventMessageError
}
