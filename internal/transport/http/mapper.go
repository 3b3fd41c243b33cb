package http

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tmakarov/pulsechat-server/internal/core"
	"github.com/tmakarov/pulsechat-server/internal/proto"
	"github.com/tmakarov/pulsechat-server/internal/store"
)

// dispatchInbound decodes an inbound envelope and invokes the matching
// relay operation on behalf of the client. A non-nil proto.Error means
// the payload never reached the relay; a non-nil error is fatal for the
// connection.
func dispatchInbound(ctx context.Context, relay *core.Relay, client *core.Client, inbound proto.Inbound) (*proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, err
		}
		relay.SendMessage(ctx, client, core.SendRequest{
			ReceiverID: data.ReceiverID,
			Content:    data.Content,
			ReplyTo:    data.ReplyTo,
		})
		return nil, nil
	case proto.InboundTypeUpdateStatus:
		var data proto.UpdateStatusData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, err
		}
		relay.ChangeStatus(ctx, client, store.Status(data.Status))
		return nil, nil
	case proto.InboundTypeGetConversation:
		var data proto.GetConversationData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, err
		}
		relay.Conversation(ctx, client, data.UserID)
		return nil, nil
	case proto.InboundTypeMarkRead:
		var data proto.MarkReadData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, err
		}
		relay.MarkRead(ctx, client, data.SenderID)
		return nil, nil
	default:
		return &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessage:
		return proto.Outbound{
			Type: proto.OutboundTypeMessage,
			Data: messagePayload(event.Message),
		}
	case core.EventMessageSent:
		return proto.Outbound{
			Type: proto.OutboundTypeMessageSent,
			Data: messagePayload(event.Message),
		}
	case core.EventMessageError:
		return proto.Outbound{
			Type:  proto.OutboundTypeMessageError,
			Error: protoError(event.Error),
		}
	case core.EventStatusUpdate:
		return proto.Outbound{
			Type: proto.OutboundTypeStatusUpdate,
			Data: proto.StatusUpdatePayload{
				UserID: event.UserID,
				Status: string(event.Status),
			},
		}
	case core.EventOnlineUsers:
		users := make([]proto.UserPayload, 0, len(event.Users))
		for _, u := range event.Users {
			users = append(users, userPayload(u))
		}
		return proto.Outbound{
			Type: proto.OutboundTypeOnlineUsers,
			Data: users,
		}
	case core.EventHistory:
		messages := make([]proto.MessagePayload, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, messagePayload(msg))
		}
		return proto.Outbound{
			Type: proto.OutboundTypeConversationHistory,
			Data: proto.ConversationHistoryPayload{
				UserID:   event.UserID,
				Messages: messages,
			},
		}
	case core.EventMessagesRead:
		return proto.Outbound{
			Type: proto.OutboundTypeMessagesRead,
			Data: proto.MessagesReadPayload{
				SenderID: event.UserID,
				Count:    event.Count,
			},
		}
	case core.EventError:
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: protoError(event.Error),
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown event"}}
	}
}

func messagePayload(msg *store.Message) proto.MessagePayload {
	return proto.MessagePayload{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Timestamp:  msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		IsRead:     msg.Read,
		IsReply:    msg.IsReply,
		ReplyTo:    msg.ReplyToID,
	}
}

func userPayload(u *store.User) proto.UserPayload {
	return proto.UserPayload{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Status:    string(u.Status),
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func protoError(err *core.CoreError) *proto.Error {
	if err == nil {
		return &proto.Error{Code: "unknown", Msg: "unknown error"}
	}
	return &proto.Error{Code: err.Code, Msg: err.Message}
}
