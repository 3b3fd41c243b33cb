package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tmakarov/pulsechat-server/internal/proto"
	"github.com/tmakarov/pulsechat-server/internal/store"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.Store, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store: st,
		log:   logger,
	}
}

// ListUsers returns all users without credentials.
// GET /api/users
func (h *UserHandlers) ListUsers(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.UserPayload, 0, len(users))
	for _, u := range users {
		response = append(response, userPayload(u))
	}

	c.JSON(http.StatusOK, response)
}

// Me returns the authenticated user.
// GET /api/users/me
func (h *UserHandlers) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	h.getUser(c, userID)
}

// GetUser returns one user by ID.
// GET /api/users/:id
func (h *UserHandlers) GetUser(c *gin.Context) {
	h.getUser(c, c.Param("id"))
}

func (h *UserHandlers) getUser(c *gin.Context, id string) {
	user, err := h.store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		if userNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", id).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, userPayload(user))
}

// UpdateStatusRequest represents the status patch body.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus patches the caller's own presence status. This is a thin
// store wrapper; live broadcasts belong to the relay path.
// PATCH /api/users/:id/status
func (h *UserHandlers) UpdateStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	// A user may not change another's status.
	if c.Param("id") != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "cannot change another user's status"})
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	status := store.Status(req.Status)
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid status"})
		return
	}

	if err := h.store.SetStatus(c.Request.Context(), userID, status); err != nil {
		if userNotFound(err) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to update status")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, proto.StatusUpdatePayload{UserID: userID, Status: req.Status})
}

// Conversations returns the users the caller has exchanged messages with.
// GET /api/users/:id/conversations
func (h *UserHandlers) Conversations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	if c.Param("id") != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "cannot read another user's conversations"})
		return
	}

	partnerIDs, err := h.store.ListConversationPartners(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to list conversation partners")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.UserPayload, 0, len(partnerIDs))
	for _, id := range partnerIDs {
		user, err := h.store.GetUserByID(c.Request.Context(), id)
		if err != nil {
			if userNotFound(err) {
				continue
			}
			h.log.Error().Err(err).Str("user_id", id).Msg("failed to load conversation partner")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		response = append(response, userPayload(user))
	}

	c.JSON(http.StatusOK, response)
}
