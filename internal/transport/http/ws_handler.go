package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/tmakarov/pulsechat-server/internal/config"
	"github.com/tmakarov/pulsechat-server/internal/core"
	"github.com/tmakarov/pulsechat-server/internal/proto"
	"github.com/tmakarov/pulsechat-server/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	relay *core.Relay
	cfg   config.Config
	log   *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(relay *core.Relay, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{relay: relay, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()
	credential := connectionCredential(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := core.NewClient(utils.NewConnID())

	if err := h.relay.Connect(ctx, client, credential); err != nil {
		h.log.Warn().Err(err).Str("conn_id", client.ConnID).Msg("identity resolution failed")
		_ = wsjson.Write(ctx, conn, proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "invalid credentials"},
		})
		conn.Close(websocket.StatusPolicyViolation, "unauthorized")
		return
	}

	// Fresh context: the disconnect side effects must run even though the
	// request context is gone by then.
	defer h.relay.Disconnect(context.WithoutCancel(ctx), client)

	limiter := newRateLimiter(h.cfg.SendRateLimit)
	limiter.startReset(client.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if errors.Is(err, errSuperseded) {
		status = websocket.StatusPolicyViolation
		reason = "superseded by newer connection"
		err = nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ConnID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// errSuperseded marks a write loop exit caused by a newer connection of
// the same user taking over the registry entry.
var errSuperseded = errors.New("connection superseded")

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if inbound.Type == proto.InboundTypeSendMessage && !limiter.allow() {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeMessageError,
				Error: &proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many messages, slow down"},
			}); writeErr != nil {
				return writeErr
			}
			continue
		}

		protoErr, err := dispatchInbound(ctx, h.relay, client, inbound)
		if err != nil {
			h.log.Warn().Err(err).Str("conn_id", client.ConnID).Msg("failed to decode inbound")
			return err
		}
		if protoErr != nil {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ConnID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return errSuperseded
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// connectionCredential extracts the client credential from the upgrade
// request: Authorization header first, then the token query parameter
// (browser WebSocket clients cannot set headers).
func connectionCredential(r *stdhttp.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}
