package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Status is a user's self-reported presence status.
type Status string

const (
	StatusAvailable Status = "Available"
	StatusBusy      Status = "Busy"
	StatusAway      Status = "Away"
	StatusOffline   Status = "Offline"
)

// Valid reports whether s is one of the four known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBusy, StatusAway, StatusOffline:
		return true
	}
	return false
}

// User represents a registered account.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Status       Status
	CreatedAt    time.Time
}

// Message represents a persisted direct message. Immutable once created,
// except for the Read flag.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Content    string
	IsReply    bool
	ReplyToID  *string
	Read       bool
	CreatedAt  time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers lists all users.
	ListUsers(ctx context.Context) ([]*User, error)

	// SetStatus updates a user's current presence status.
	SetStatus(ctx context.Context, userID string, status Status) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message, assigning its ID and CreatedAt.
	CreateMessage(ctx context.Context, msg *Message) (*Message, error)

	// GetMessageByID retrieves a message by ID. Returns ErrNotFound when absent.
	GetMessageByID(ctx context.Context, id string) (*Message, error)

	// ListConversation returns all messages exchanged between two users,
	// ordered by creation time ascending.
	ListConversation(ctx context.Context, userID, otherID string) ([]*Message, error)

	// ListConversationPartners returns the IDs of users the given user has
	// exchanged messages with.
	ListConversationPartners(ctx context.Context, userID string) ([]string, error)

	// UnreadMessageIDs returns IDs of unread messages sent from senderID
	// to receiverID.
	UnreadMessageIDs(ctx context.Context, senderID, receiverID string) ([]string, error)

	// MarkRead flips the read flag on the given messages. Returns how many
	// rows were updated.
	MarkRead(ctx context.Context, ids []string) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
