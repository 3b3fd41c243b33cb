package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tmakarov/pulsechat-server/internal/proto"
	"github.com/tmakarov/pulsechat-server/internal/store"
)

// MessageHandlers provides HTTP handlers for the message CRUD surface.
// This is a thin wrapper over the message store; live delivery is the
// relay's job and happens only on the WebSocket path.
type MessageHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.Store, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		store: st,
		log:   logger,
	}
}

// Conversation returns the history between the caller and another user.
// GET /api/messages/conversation/:userID/:otherUserID
func (h *MessageHandlers) Conversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	if c.Param("userID") != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "cannot read another user's conversation"})
		return
	}

	messages, err := h.store.ListConversation(c.Request.Context(), userID, c.Param("otherUserID"))
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to load conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.MessagePayload, 0, len(messages))
	for _, msg := range messages {
		response = append(response, messagePayload(msg))
	}

	c.JSON(http.StatusOK, response)
}

// SendMessageRequest represents the message creation body.
type SendMessageRequest struct {
	ReceiverID string  `json:"receiverId" binding:"required"`
	Content    string  `json:"content" binding:"required"`
	ReplyTo    *string `json:"replyTo"`
}

// Send persists a message without live delivery.
// POST /api/messages
func (h *MessageHandlers) Send(c *gin.Context) {
	senderID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "receiverId and content are required"})
		return
	}

	if req.ReplyTo != nil {
		if _, err := h.store.GetMessageByID(c.Request.Context(), *req.ReplyTo); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "reply target does not exist"})
				return
			}
			h.log.Error().Err(err).Str("reply_to", *req.ReplyTo).Msg("reply target lookup failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
	}

	saved, err := h.store.CreateMessage(c.Request.Context(), &store.Message{
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		IsReply:    req.ReplyTo != nil,
		ReplyToID:  req.ReplyTo,
	})
	if err != nil {
		h.log.Error().Err(err).Str("sender_id", senderID).Msg("failed to persist message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, messagePayload(saved))
}

// MarkReadRequest represents the mark-as-read body.
type MarkReadRequest struct {
	SenderID string `json:"senderId" binding:"required"`
}

// MarkRead flips the read flag on all unread messages from senderId to
// the caller and returns the count updated.
// POST /api/messages/read
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "senderId is required"})
		return
	}

	ids, err := h.store.UnreadMessageIDs(c.Request.Context(), req.SenderID, userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to list unread messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	count, err := h.store.MarkRead(c.Request.Context(), ids)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to mark messages read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, proto.MessagesReadPayload{SenderID: req.SenderID, Count: count})
}
