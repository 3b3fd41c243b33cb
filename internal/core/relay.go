package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmakarov/pulsechat-server/internal/store"
)

// Identity is a resolved user identity bound to a connection.
type Identity struct {
	UserID   string
	Username string
}

// IdentityResolver validates an inbound connection's credential and
// yields a stable user identity, or rejects the connection.
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (Identity, error)
}

// SendRequest carries a message-send request. The sender is taken from
// the issuing connection's bound identity, never from the request.
type SendRequest struct {
	ReceiverID string
	Content    string
	ReplyTo    *string
}

// Relay owns the send-message and status-broadcast protocols and the
// connection lifecycle around the presence registry. Persistence always
// precedes delivery; registry access is instantaneous and never overlaps
// store calls.
type Relay struct {
	registry *Registry
	users    store.UserStore
	messages store.MessageStore
	resolver IdentityResolver
	log      *zerolog.Logger
}

// NewRelay constructs a relay over the given registry and collaborators.
func NewRelay(registry *Registry, users store.UserStore, messages store.MessageStore, resolver IdentityResolver, logger *zerolog.Logger) *Relay {
	return &Relay{
		registry: registry,
		users:    users,
		messages: messages,
		resolver: resolver,
		log:      logger,
	}
}

// Registry exposes the presence registry for read-side collaborators.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// Connect resolves the credential, registers the client in the presence
// registry and announces availability. A prior connection of the same
// user is superseded and closed. On resolution failure the client stays
// unidentified and the error is returned for the transport to act on.
func (r *Relay) Connect(ctx context.Context, c *Client, credential string) error {
	ident, err := r.resolver.Resolve(ctx, credential)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}

	c.identify(ident.UserID, ident.Username)

	if prev := r.registry.Register(ident.UserID, c); prev != nil && prev != c {
		r.log.Debug().
			Str("user_id", ident.UserID).
			Str("old_conn", prev.ConnID).
			Str("new_conn", c.ConnID).
			Msg("connection superseded by reconnect")
		prev.Close()
	}

	r.log.Info().Str("user_id", ident.UserID).Str("conn_id", c.ConnID).Msg("user connected")

	r.setAndBroadcastStatus(ctx, ident.UserID, store.StatusAvailable)

	c.send(&Event{Kind: EventOnlineUsers, Users: r.onlineUsers(ctx)})

	return nil
}

// Disconnect tears down a connection. The registry entry is removed only
// if this client is still the registered one for its user; a stale
// disconnect of a superseded connection changes nothing.
func (r *Relay) Disconnect(ctx context.Context, c *Client) {
	// Identity must be read before Close flips the state.
	userID, _, ok := c.Identity()
	c.Close()
	if !ok {
		return
	}

	if !r.registry.Unregister(userID, c) {
		r.log.Debug().Str("user_id", userID).Str("conn_id", c.ConnID).Msg("stale disconnect ignored")
		return
	}

	r.log.Info().Str("user_id", userID).Str("conn_id", c.ConnID).Msg("user disconnected")

	r.setAndBroadcastStatus(ctx, userID, store.StatusOffline)
}

// SendMessage validates, persists and relays a direct message. The
// receiver gets a message event only when online; the sender always gets
// exactly one message-sent acknowledgment on success.
func (r *Relay) SendMessage(ctx context.Context, c *Client, req SendRequest) {
	senderID, _, ok := c.Identity()
	if !ok {
		c.send(&Event{Kind: EventMessageError, Error: coreError(ErrCodeNotAuthenticated, "identity not bound")})
		return
	}

	if req.ReceiverID == "" || strings.TrimSpace(req.Content) == "" {
		c.send(&Event{Kind: EventMessageError, Error: coreError(ErrCodeBadRequest, "receiverId and content are required")})
		return
	}

	if req.ReplyTo != nil {
		if _, err := r.messages.GetMessageByID(ctx, *req.ReplyTo); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.send(&Event{Kind: EventMessageError, Error: coreError(ErrCodeReplyTargetNotFound, "reply target does not exist")})
			} else {
				r.log.Error().Err(err).Str("reply_to", *req.ReplyTo).Msg("reply target lookup failed")
				c.send(&Event{Kind: EventMessageError, Error: coreError(ErrCodePersistenceFailure, "message store unavailable")})
			}
			return
		}
	}

	saved, err := r.messages.CreateMessage(ctx, &store.Message{
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		IsReply:    req.ReplyTo != nil,
		ReplyToID:  req.ReplyTo,
	})
	if err != nil {
		r.log.Error().Err(err).Str("sender_id", senderID).Msg("persist message failed")
		c.send(&Event{Kind: EventMessageError, Error: coreError(ErrCodePersistenceFailure, "message store unavailable")})
		return
	}

	// Persist-before-deliver: the message is durable by this point.
	if receiver, online := r.registry.Lookup(req.ReceiverID); online {
		receiver.send(&Event{Kind: EventMessage, Message: saved})
	}

	c.send(&Event{Kind: EventMessageSent, Message: saved})
}

// ChangeStatus validates and persists a status change for the issuing
// connection's own user, then broadcasts it to every connected client.
func (r *Relay) ChangeStatus(ctx context.Context, c *Client, status store.Status) {
	userID, _, ok := c.Identity()
	if !ok {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeNotAuthenticated, "identity not bound")})
		return
	}

	if !status.Valid() {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeInvalidStatus, fmt.Sprintf("unknown status %q", status))})
		return
	}

	if err := r.users.SetStatus(ctx, userID, status); err != nil {
		r.log.Error().Err(err).Str("user_id", userID).Msg("persist status failed")
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodePersistenceFailure, "user store unavailable")})
		return
	}

	r.broadcast(&Event{Kind: EventStatusUpdate, UserID: userID, Status: status})
}

// Conversation delivers the message history between the issuing user and
// otherID to the issuing connection.
func (r *Relay) Conversation(ctx context.Context, c *Client, otherID string) {
	userID, _, ok := c.Identity()
	if !ok {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeNotAuthenticated, "identity not bound")})
		return
	}

	if otherID == "" {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "userId is required")})
		return
	}

	messages, err := r.messages.ListConversation(ctx, userID, otherID)
	if err != nil {
		r.log.Error().Err(err).Str("user_id", userID).Str("other_id", otherID).Msg("load conversation failed")
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodePersistenceFailure, "message store unavailable")})
		return
	}

	c.send(&Event{Kind: EventHistory, UserID: otherID, Messages: messages})
}

// MarkRead flips the read flag on all unread messages from senderID to
// the issuing user and acknowledges with the count.
func (r *Relay) MarkRead(ctx context.Context, c *Client, senderID string) {
	userID, _, ok := c.Identity()
	if !ok {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeNotAuthenticated, "identity not bound")})
		return
	}

	if senderID == "" {
		c.send(&Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "senderId is required")})
		return
	}

	ids, err := r.messages.UnreadMessageIDs(ctx, senderID, userID)
	if err == nil {
		var count int64
		count, err = r.messages.MarkRead(ctx, ids)
		if err == nil {
			c.send(&Event{Kind: EventMessagesRead, UserID: senderID, Count: count})
			return
		}
	}

	r.log.Error().Err(err).Str("user_id", userID).Str("sender_id", senderID).Msg("mark read failed")
	c.send(&Event{Kind: EventError, Error: coreError(ErrCodePersistenceFailure, "message store unavailable")})
}

// setAndBroadcastStatus persists a lifecycle-driven status change and, on
// success, broadcasts it. A failed broadcast after successful persistence
// is best-effort; fresh queries recover true state.
func (r *Relay) setAndBroadcastStatus(ctx context.Context, userID string, status store.Status) {
	if err := r.users.SetStatus(ctx, userID, status); err != nil {
		r.log.Warn().Err(err).Str("user_id", userID).Str("status", string(status)).Msg("persist lifecycle status failed")
		return
	}
	r.broadcast(&Event{Kind: EventStatusUpdate, UserID: userID, Status: status})
}

// broadcast sends an event to every registered connection.
func (r *Relay) broadcast(ev *Event) {
	for _, c := range r.registry.Clients() {
		c.send(ev)
	}
}

// onlineUsers loads the user records behind the registry snapshot.
func (r *Relay) onlineUsers(ctx context.Context) []*store.User {
	ids := r.registry.SnapshotOnlineIDs()
	users := make([]*store.User, 0, len(ids))
	for _, id := range ids {
		user, err := r.users.GetUserByID(ctx, id)
		if err != nil {
			r.log.Warn().Err(err).Str("user_id", id).Msg("load online user failed")
			continue
		}
		users = append(users, user)
	}
	return users
}
