package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tmakarov/pulsechat-server/internal/auth"
	"github.com/tmakarov/pulsechat-server/internal/config"
	"github.com/tmakarov/pulsechat-server/internal/core"
	"github.com/tmakarov/pulsechat-server/internal/log"
	"github.com/tmakarov/pulsechat-server/internal/proto"
	"github.com/tmakarov/pulsechat-server/internal/store/sqlite"
)

// tokenResolver mirrors the wiring the app package does: a JWT credential
// resolves to the identity baked into its claims.
type tokenResolver struct {
	svc *auth.Service
}

func (r tokenResolver) Resolve(_ context.Context, credential string) (core.Identity, error) {
	claims, err := r.svc.ValidateToken(credential)
	if err != nil {
		return core.Identity{}, err
	}
	return core.Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

type testServer struct {
	*httptest.Server
	cfg config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	return newTestServerWithConfig(t, cfg)
}

func newTestServerWithConfig(t *testing.T, cfg config.Config) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	logger := log.Nop()
	registry := core.NewRegistry()
	relay := core.NewRelay(registry, st, st, tokenResolver{svc: authService}, logger)

	srv := NewServer(relay, authService, st, cfg, logger)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, cfg: cfg}
}

// doJSON issues a JSON request against the test server and decodes the
// response body into out (when out is non-nil).
func (ts *testServer) doJSON(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := stdhttp.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response of %s %s: %v", method, path, err)
		}
	}

	return resp.StatusCode
}

// registerUser creates a user through the public API and returns the
// issued token together with the created record.
func (ts *testServer) registerUser(t *testing.T, username, email string) AuthResponse {
	t.Helper()

	var resp AuthResponse
	status := ts.doJSON(t, stdhttp.MethodPost, "/api/register", "", RegisterRequest{
		Username: username,
		Email:    email,
		Password: "secret1",
	}, &resp)
	if status != stdhttp.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d", username, status)
	}
	if resp.Token == "" || resp.User.ID == "" {
		t.Fatalf("register %s: incomplete response %+v", username, resp)
	}

	return resp
}

// wsURL converts the test server's base URL into the websocket endpoint.
func (ts *testServer) wsURL(token string) string {
	return strings.Replace(ts.URL, "http://", "ws://", 1) + "/ws?token=" + token
}

// dialWS opens an identified websocket connection.
func (ts *testServer) dialWS(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, ts.wsURL(token), nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })

	return conn
}

// rawOutbound keeps the data payload undecoded so each test can unmarshal
// it into the expected shape.
type rawOutbound struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// readUntil reads outbound envelopes until one of the wanted type arrives.
// Broadcast traffic from concurrent connections is skipped over.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, wantType string) rawOutbound {
	t.Helper()

	readCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	for {
		var out rawOutbound
		if err := wsjson.Read(readCtx, conn, &out); err != nil {
			t.Fatalf("reading until %q: %v", wantType, err)
		}
		if out.Type == wantType {
			return out
		}
	}
}

func decodeData[T any](t *testing.T, out rawOutbound) T {
	t.Helper()

	var data T
	if err := json.Unmarshal(out.Data, &data); err != nil {
		t.Fatalf("failed to decode %s data: %v", out.Type, err)
	}
	return data
}

func sendInbound(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("failed to marshal %s data: %v", msgType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: raw}); err != nil {
		t.Fatalf("failed to write %s: %v", msgType, err)
	}
}
