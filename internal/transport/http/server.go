package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tmakarov/pulsechat-server/internal/auth"
	"github.com/tmakarov/pulsechat-server/internal/config"
	"github.com/tmakarov/pulsechat-server/internal/core"
	"github.com/tmakarov/pulsechat-server/internal/store"
)

// NewServer builds the HTTP server: REST API, WebSocket endpoint, health check.
func NewServer(relay *core.Relay, authService *auth.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/ws", gin.WrapH(NewWSHandler(relay, cfg, logger)))

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(st, logger)
	messageHandlers := NewMessageHandlers(st, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("", AuthMiddleware(authService, logger))
	authed.GET("/users", userHandlers.ListUsers)
	authed.GET("/users/me", userHandlers.Me)
	authed.GET("/users/:id", userHandlers.GetUser)
	authed.PATCH("/users/:id/status", userHandlers.UpdateStatus)
	authed.GET("/users/:id/conversations", userHandlers.Conversations)
	authed.GET("/messages/conversation/:userID/:otherUserID", messageHandlers.Conversation)
	authed.POST("/messages", messageHandlers.Send)
	authed.POST("/messages/read", messageHandlers.MarkRead)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
