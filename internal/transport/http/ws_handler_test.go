package http

import (
	"context"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tmakarov/pulsechat-server/internal/config"
	"github.com/tmakarov/pulsechat-server/internal/proto"
)

func TestWebSocketRejectsInvalidToken(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, ts.wsURL("not-a-token"), nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.CloseNow()

	var out rawOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("expected error envelope before close, got %v", err)
	}
	if out.Type != proto.OutboundTypeError || out.Error == nil || out.Error.Code != "unauthorized" {
		t.Fatalf("unexpected envelope: %+v", out)
	}

	if err := wsjson.Read(ctx, conn, &out); err == nil {
		t.Fatal("expected connection to be closed")
	} else if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestWebSocketConnectAnnouncesPresence(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice := ts.registerUser(t, "alice", "alice@example.com")
	bob := ts.registerUser(t, "bob", "bob@example.com")

	aliceConn := ts.dialWS(t, ctx, alice.Token)

	online := decodeData[[]proto.UserPayload](t, readUntil(t, ctx, aliceConn, proto.OutboundTypeOnlineUsers))
	if len(online) != 1 || online[0].ID != alice.User.ID {
		t.Fatalf("expected only alice online, got %+v", online)
	}
	if online[0].Status != "Available" {
		t.Fatalf("expected Available on connect, got %q", online[0].Status)
	}

	bobConn := ts.dialWS(t, ctx, bob.Token)

	online = decodeData[[]proto.UserPayload](t, readUntil(t, ctx, bobConn, proto.OutboundTypeOnlineUsers))
	if len(online) != 2 {
		t.Fatalf("expected two users online, got %+v", online)
	}

	// Alice is told about bob coming online.
	update := decodeData[proto.StatusUpdatePayload](t, readUntil(t, ctx, aliceConn, proto.OutboundTypeStatusUpdate))
	for update.UserID != bob.User.ID {
		update = decodeData[proto.StatusUpdatePayload](t, readUntil(t, ctx, aliceConn, proto.OutboundTypeStatusUpdate))
	}
	if update.Status != "Available" {
		t.Fatalf("expected bob Available, got %+v", update)
	}

	// Disconnect flips bob to Offline for the remaining users.
	_ = bobConn.Close(websocket.StatusNormalClosure, "bye")

	update = decodeData[proto.StatusUpdatePayload](t, readUntil(t, ctx, aliceConn, proto.OutboundTypeStatusUpdate))
	for update.UserID != bob.User.ID || update.Status == "Available" {
		update = decodeData[proto.StatusUpdatePayload](t, readUntil(t, ctx, aliceConn, proto.OutboundTypeStatusUpdate))
	}
	if update.Status != "Offline" {
		t.Fatalf("expected bob Offline after disconnect, got %+v", update)
	}
}

func TestWebSocketMessageFlow(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice := ts.registerUser(t, "alice", "alice@example.com")
	bob := ts.registerUser(t, "bob", "bob@example.com")

	aliceConn := ts.dialWS(t, ctx, alice.Token)
	readUntil(t, ctx, aliceConn, proto.OutboundTypeOnlineUsers)
	bobConn := ts.dialWS(t, ctx, bob.Token)
	readUntil(t, ctx, bobConn, proto.OutboundTypeOnlineUsers)

	sendInbound(t, ctx, aliceConn, proto.InboundTypeSendMessage, proto.SendMessageData{
		ReceiverID: bob.User.ID,
		Content:    "hello bob",
	})

	delivered := decodeData[proto.MessagePayload](t, readUntil(t, ctx, bobConn, proto.OutboundTypeMessage))
	if delivered.SenderID != alice.User.ID || delivered.Content != "hello bob" {
		t.Fatalf("unexpected delivery: %+v", delivered)
	}
	if delivered.ID == "" || delivered.Timestamp == "" {
		t.Fatalf("expected persisted fields on delivery: %+v", delivered)
	}

	ack := decodeData[proto.MessagePayload](t, readUntil(t, ctx, aliceConn, proto.OutboundTypeMessageSent))
	if ack.ID != delivered.ID {
		t.Fatalf("ack and delivery disagree: %+v vs %+v", ack, delivered)
	}

	// Bob replies to the delivered message.
	sendInbound(t, ctx, bobConn, proto.InboundTypeSendMessage, proto.SendMessageData{
		ReceiverID: alice.User.ID,
		Content:    "hi alice",
		ReplyTo:    &delivered.ID,
	})

	reply := decodeData[proto.MessagePayload](t, readUntil(t, ctx, aliceConn, proto.OutboundTypeMessage))
	if !reply.IsReply || reply.ReplyTo == nil || *reply.ReplyTo != delivered.ID {
		t.Fatalf("reply fields wrong: %+v", reply)
	}

	// A reply to a message that never existed fails without delivery.
	missing := "missing-id"
	sendInbound(t, ctx, bobConn, proto.InboundTypeSendMessage, proto.SendMessageData{
		ReceiverID: alice.User.ID,
		Content:    "ghost",
		ReplyTo:    &missing,
	})

	failure := readUntil(t, ctx, bobConn, proto.OutboundTypeMessageError)
	if failure.Error == nil || failure.Error.Code != "reply_target_not_found" {
		t.Fatalf("unexpected send failure: %+v", failure)
	}

	// History over the socket returns both persisted messages in order.
	sendInbound(t, ctx, aliceConn, proto.InboundTypeGetConversation, proto.GetConversationData{UserID: bob.User.ID})
	history := decodeData[proto.ConversationHistoryPayload](t, readUntil(t, ctx, aliceConn, proto.OutboundTypeConversationHistory))
	if len(history.Messages) != 2 || history.Messages[0].Content != "hello bob" || history.Messages[1].Content != "hi alice" {
		t.Fatalf("unexpected history: %+v", history)
	}

	// Alice marks bob's messages as read.
	sendInbound(t, ctx, aliceConn, proto.InboundTypeMarkRead, proto.MarkReadData{SenderID: bob.User.ID})
	read := decodeData[proto.MessagesReadPayload](t, readUntil(t, ctx, aliceConn, proto.OutboundTypeMessagesRead))
	if read.SenderID != bob.User.ID || read.Count != 1 {
		t.Fatalf("unexpected mark-read ack: %+v", read)
	}
}

func TestWebSocketStatusUpdateFlow(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice := ts.registerUser(t, "alice", "alice@example.com")
	bob := ts.registerUser(t, "bob", "bob@example.com")

	aliceConn := ts.dialWS(t, ctx, alice.Token)
	readUntil(t, ctx, aliceConn, proto.OutboundTypeOnlineUsers)
	bobConn := ts.dialWS(t, ctx, bob.Token)
	readUntil(t, ctx, bobConn, proto.OutboundTypeOnlineUsers)

	sendInbound(t, ctx, bobConn, proto.InboundTypeUpdateStatus, proto.UpdateStatusData{Status: "Away"})

	update := decodeData[proto.StatusUpdatePayload](t, readUntil(t, ctx, aliceConn, proto.OutboundTypeStatusUpdate))
	for update.UserID != bob.User.ID || update.Status != "Away" {
		update = decodeData[proto.StatusUpdatePayload](t, readUntil(t, ctx, aliceConn, proto.OutboundTypeStatusUpdate))
	}

	// The change survives the socket: REST sees it too.
	var record proto.UserPayload
	ts.doJSON(t, "GET", "/api/users/"+bob.User.ID, alice.Token, nil, &record)
	if record.Status != "Away" {
		t.Fatalf("status not persisted, got %q", record.Status)
	}

	// An unknown enum value is rejected without a broadcast.
	sendInbound(t, ctx, bobConn, proto.InboundTypeUpdateStatus, proto.UpdateStatusData{Status: "Invisible"})

	failure := readUntil(t, ctx, bobConn, proto.OutboundTypeError)
	if failure.Error == nil || failure.Error.Code != "invalid_status" {
		t.Fatalf("expected invalid_status, got %+v", failure)
	}

	ts.doJSON(t, "GET", "/api/users/"+bob.User.ID, alice.Token, nil, &record)
	if record.Status != "Away" {
		t.Fatalf("invalid status leaked into the store: %q", record.Status)
	}
}

func TestWebSocketReconnectSupersedesOldConnection(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice := ts.registerUser(t, "alice", "alice@example.com")
	bob := ts.registerUser(t, "bob", "bob@example.com")

	oldConn := ts.dialWS(t, ctx, alice.Token)
	readUntil(t, ctx, oldConn, proto.OutboundTypeOnlineUsers)

	newConn := ts.dialWS(t, ctx, alice.Token)
	online := decodeData[[]proto.UserPayload](t, readUntil(t, ctx, newConn, proto.OutboundTypeOnlineUsers))
	if len(online) != 1 || online[0].ID != alice.User.ID {
		t.Fatalf("expected alice still online once, got %+v", online)
	}

	// The old socket is closed by the server.
	readCtx, readCancel := context.WithTimeout(ctx, 3*time.Second)
	defer readCancel()
	for {
		var out rawOutbound
		if err := wsjson.Read(readCtx, oldConn, &out); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
				t.Fatalf("expected policy violation close on old socket, got %v", err)
			}
			break
		}
	}

	// The fresh connection still receives deliveries.
	bobConn := ts.dialWS(t, ctx, bob.Token)
	readUntil(t, ctx, bobConn, proto.OutboundTypeOnlineUsers)

	sendInbound(t, ctx, bobConn, proto.InboundTypeSendMessage, proto.SendMessageData{
		ReceiverID: alice.User.ID,
		Content:    "still there?",
	})

	delivered := decodeData[proto.MessagePayload](t, readUntil(t, ctx, newConn, proto.OutboundTypeMessage))
	if delivered.Content != "still there?" {
		t.Fatalf("unexpected delivery: %+v", delivered)
	}
}

func TestWebSocketRateLimitsSendMessage(t *testing.T) {
	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.SendRateLimit = 2
	limited := newTestServerWithConfig(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alice := limited.registerUser(t, "alice", "alice@example.com")
	bob := limited.registerUser(t, "bob", "bob@example.com")

	conn := limited.dialWS(t, ctx, alice.Token)
	readUntil(t, ctx, conn, proto.OutboundTypeOnlineUsers)

	for i := 0; i < 3; i++ {
		sendInbound(t, ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{
			ReceiverID: bob.User.ID,
			Content:    "spam",
		})
	}

	failure := readUntil(t, ctx, conn, proto.OutboundTypeMessageError)
	if failure.Error == nil || failure.Error.Code != "rate_limited" {
		t.Fatalf("expected rate_limited, got %+v", failure)
	}
}
