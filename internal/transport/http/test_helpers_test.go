package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat-server/internal/auth"
	"github.com/vovakirdan/roomchat-server/internal/bus"
	"github.com/vovakirdan/roomchat-server/internal/config"
	"github.com/vovakirdan/roomchat-server/internal/core"
	"github.com/vovakirdan/roomchat-server/internal/proto"
	"github.com/vovakirdan/roomchat-server/internal/store/sqlite"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	server *httptest.Server
	relay  *core.Relay
	auth   *auth.Service
	cfg    *config.Config
}

// startTestServer wires an in-memory sqlite store and memory bus behind the real router.
func startTestServer(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Auth.JWTSecret = testJWTSecret
	cfg.Auth.JWTIssuer = "test"
	cfg.Auth.JWTAudience = "test"
	cfg.AllowedOrigins = []string{"http://localhost:5173"}
	for _, m := range mutate {
		m(&cfg)
	}

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := zerolog.Nop()
	memBus := bus.NewMemoryBus()
	t.Cleanup(func() { _ = memBus.Close() })

	authService := createTestAuthService(t, st, cfg.Auth)
	relay := core.NewRelay(core.NewRegistry(), core.NewHistory(st), core.NewBroadcaster(memBus, cfg.Bus.ChannelPrefix), core.Options{
		HistoryLimit: cfg.HistoryLimit,
		AvatarURL:    cfg.AvatarURL,
		SendBuffer:   cfg.SendBuffer,
	}, &logger)

	server := NewServer(relay, authService, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, relay: relay, auth: authService, cfg: &cfg}
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st *sqlite.SQLiteStore, cfg config.AuthConfig) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	}

	return auth.NewService(st, jwtConfig)
}

// registerUser creates an account and returns its token.
func (e *testEnv) registerUser(t *testing.T, username string) string {
	t.Helper()
	token, err := e.auth.Register(context.Background(), username, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return token
}

func (e *testEnv) wsURL(path string) string {
	return strings.Replace(e.server.URL, "http", "ws", 1) + path
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()
	url := e.wsURL("/")
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// frame is the decoded form of an outbound server frame.
type frame struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
	Error    *proto.Error    `json:"error"`
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Payload: data}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readFrame returns the next frame of the wanted type, skipping others.
func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string) frame {
	t.Helper()
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("read waiting for %s: %v", typ, err)
		}
		if f.Type == typ {
			return f
		}
	}
}

func joinRoom(t *testing.T, ctx context.Context, conn *websocket.Conn, room string) []proto.Message {
	t.Helper()
	send(t, ctx, conn, proto.InboundTypeJoin, proto.RoomData{RoomID: room})
	f := readFrame(t, ctx, conn, proto.OutboundTypeHistory)
	var msgs []proto.Message
	if err := json.Unmarshal(f.Payload, &msgs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	return msgs
}

func decodeMessage(t *testing.T, f frame) proto.Message {
	t.Helper()
	var msg proto.Message
	if err := json.Unmarshal(f.Payload, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return msg
}

// expectClose reads until the server closes the socket and returns the close code.
func expectClose(t *testing.T, ctx context.Context, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()
	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			return websocket.CloseStatus(err)
		}
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
