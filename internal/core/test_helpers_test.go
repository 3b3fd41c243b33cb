package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/tmakarov/pulsechat-server/internal/log"
	"github.com/tmakarov/pulsechat-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// drainEvents empties the channel and returns everything buffered so far.
func drainEvents(ch <-chan *Event) []*Event {
	var events []*Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func countKind(events []*Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type fakeResolver struct {
	identities map[string]Identity
}

func (f *fakeResolver) Resolve(_ context.Context, credential string) (Identity, error) {
	ident, ok := f.identities[credential]
	if !ok {
		return Identity{}, errors.New("unknown credential")
	}
	return ident, nil
}

type fakeUserStore struct {
	mu            sync.Mutex
	users         map[string]*store.User
	statuses      map[string]store.Status
	failSetStatus error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:    make(map[string]*store.User),
		statuses: make(map[string]store.Status),
	}
}

func (f *fakeUserStore) add(id, username string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = &store.User{ID: id, Username: username, Status: store.StatusOffline}
}

func (f *fakeUserStore) status(id string) store.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

func (f *fakeUserStore) CreateUser(_ context.Context, username, email, passwordHash string) (*store.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (f *fakeUserStore) GetUserByUsername(_ context.Context, username string) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (f *fakeUserStore) ListUsers(_ context.Context) ([]*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]*store.User, 0, len(f.users))
	for _, u := range f.users {
		copied := *u
		users = append(users, &copied)
	}
	return users, nil
}

func (f *fakeUserStore) SetStatus(_ context.Context, userID string, status store.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSetStatus != nil {
		return f.failSetStatus
	}
	f.statuses[userID] = status
	return nil
}

type fakeMessageStore struct {
	mu         sync.Mutex
	seq        int
	messages   map[string]*store.Message
	failCreate error
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{messages: make(map[string]*store.Message)}
}

func (f *fakeMessageStore) CreateMessage(_ context.Context, msg *store.Message) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	f.seq++
	saved := *msg
	saved.ID = fmt.Sprintf("m%d", f.seq)
	saved.CreatedAt = time.Now().UTC()
	f.messages[saved.ID] = &saved
	copied := saved
	return &copied, nil
}

func (f *fakeMessageStore) GetMessageByID(_ context.Context, id string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	copied := *msg
	return &copied, nil
}

func (f *fakeMessageStore) ListConversation(_ context.Context, userID, otherID string) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var messages []*store.Message
	for _, msg := range f.messages {
		if (msg.SenderID == userID && msg.ReceiverID == otherID) ||
			(msg.SenderID == otherID && msg.ReceiverID == userID) {
			copied := *msg
			messages = append(messages, &copied)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	return messages, nil
}

func (f *fakeMessageStore) ListConversationPartners(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]struct{})
	for _, msg := range f.messages {
		if msg.SenderID == userID {
			seen[msg.ReceiverID] = struct{}{}
		}
		if msg.ReceiverID == userID {
			seen[msg.SenderID] = struct{}{}
		}
	}
	partners := make([]string, 0, len(seen))
	for id := range seen {
		partners = append(partners, id)
	}
	return partners, nil
}

func (f *fakeMessageStore) UnreadMessageIDs(_ context.Context, senderID, receiverID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, msg := range f.messages {
		if msg.SenderID == senderID && msg.ReceiverID == receiverID && !msg.Read {
			ids = append(ids, msg.ID)
		}
	}
	return ids, nil
}

func (f *fakeMessageStore) MarkRead(_ context.Context, ids []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, id := range ids {
		if msg, ok := f.messages[id]; ok && !msg.Read {
			msg.Read = true
			count++
		}
	}
	return count, nil
}

type testRelay struct {
	relay    *Relay
	users    *fakeUserStore
	messages *fakeMessageStore
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()

	users := newFakeUserStore()
	users.add("a1", "alice")
	users.add("b1", "bob")
	users.add("c1", "carol")

	messages := newFakeMessageStore()
	resolver := &fakeResolver{identities: map[string]Identity{
		"tok-a": {UserID: "a1", Username: "alice"},
		"tok-b": {UserID: "b1", Username: "bob"},
		"tok-c": {UserID: "c1", Username: "carol"},
	}}

	return &testRelay{
		relay:    NewRelay(NewRegistry(), users, messages, resolver, log.Nop()),
		users:    users,
		messages: messages,
	}
}

// connect opens an identified connection using the given credential.
func (tr *testRelay) connect(t *testing.T, connID, credential string) *Client {
	t.Helper()
	c := NewClient(connID)
	if err := tr.relay.Connect(context.Background(), c, credential); err != nil {
		t.Fatalf("connect %s: %v", connID, err)
	}
	return c
}
