package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeSendMessage     = "send-message"
	InboundTypeUpdateStatus    = "update-status"
	InboundTypeGetConversation = "get-conversation"
	InboundTypeMarkRead        = "mark-read"

	OutboundTypeMessage             = "message"
	OutboundTypeMessageSent         = "message-sent"
	OutboundTypeMessageError        = "message-error"
	OutboundTypeStatusUpdate        = "status-update"
	OutboundTypeOnlineUsers         = "online-users"
	OutboundTypeConversationHistory = "conversation-history"
	OutboundTypeMessagesRead        = "messages-read"
	OutboundTypeError               = "error"
)

// SendMessageData is an inbound direct-message request. The sender is
// always the authenticated user; it is never taken from the payload.
type SendMessageData struct {
	ReceiverID string  `json:"receiverId"`
	Content    string  `json:"content"`
	ReplyTo    *string `json:"replyTo,omitempty"`
}

// UpdateStatusData is an inbound status-change request.
type UpdateStatusData struct {
	Status string `json:"status"`
}

// GetConversationData requests history with another user.
type GetConversationData struct {
	UserID string `json:"userId"`
}

// MarkReadData requests marking a conversation as read.
type MarkReadData struct {
	SenderID string `json:"senderId"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// MessagePayload is the wire shape of a persisted message.
type MessagePayload struct {
	ID         string  `json:"id"`
	SenderID   string  `json:"senderId"`
	ReceiverID string  `json:"receiverId"`
	Content    string  `json:"content"`
	Timestamp  string  `json:"timestamp"`
	IsRead     bool    `json:"isRead"`
	IsReply    bool    `json:"isReply"`
	ReplyTo    *string `json:"replyTo"`
}

// UserPayload is the wire shape of a user, without credentials.
type UserPayload struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

// StatusUpdatePayload announces a user's new presence status.
type StatusUpdatePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// ConversationHistoryPayload carries history with one peer.
type ConversationHistoryPayload struct {
	UserID   string           `json:"userId"`
	Messages []MessagePayload `json:"messages"`
}

// MessagesReadPayload acknowledges a mark-read request.
type MessagesReadPayload struct {
	SenderID string `json:"senderId"`
	Count    int64  `json:"count"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
