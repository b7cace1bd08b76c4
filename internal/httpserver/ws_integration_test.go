package httpserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley/parley/internal/config"
	"github.com/parley/parley/internal/signaling"
)

func testWSConfig() config.Config {
	cfg := testServerConfig()
	cfg.WSIdleTimeout = 30 * time.Second
	cfg.WSPingInterval = 10 * time.Second
	cfg.WSWriteTimeout = 2 * time.Second
	cfg.MaxMessageBytes = 64 * 1024
	cfg.MaxMessagesPerSecond = 100
	cfg.SendQueueSize = 16
	cfg.ClientIDCollision = config.CollisionEvict
	return cfg
}

// startSignalingTestServer boots the full middleware chain with the
// signaling routes mounted, the way cmd/parleyd wires them.
func startSignalingTestServer(t *testing.T, cfg config.Config) net.Addr {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(cfg, log, BuildInfo{}, nil)
	reg := signaling.NewRegistry(log, nil)
	signaling.NewServer(cfg, log, reg, nil).RegisterRoutes(srv.Mux())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-errCh
	})
	return ln.Addr()
}

func wsURL(addr net.Addr, clientID, username string) string {
	return fmt.Sprintf("ws://%s/ws?roomId=lobby&clientId=%s&username=%s", addr, clientID, username)
}

// The /ws endpoint lives behind the same middleware chain as everything
// else, so upgrades must survive the logging wrapper and the origin gate
// must keep cross-origin browsers out.
func TestWebSocketUpgradeAndOriginGate(t *testing.T) {
	cfg := testWSConfig()
	cfg.AllowedOrigins = []string{"http://app.example.com"}
	addr := startSignalingTestServer(t, cfg)

	alice, _, err := websocket.DefaultDialer.Dial(wsURL(addr, "alice", "Alice"), nil)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer alice.Close()

	bob, _, err := websocket.DefaultDialer.Dial(wsURL(addr, "bob", "Bob"), nil)
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bob.Close()

	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	var join struct {
		Type string `json:"type"`
		From string `json:"from"`
	}
	if err := alice.ReadJSON(&join); err != nil {
		t.Fatalf("read join: %v", err)
	}
	if join.Type != "join" || join.From != "bob" {
		t.Fatalf("unexpected join: %+v", join)
	}

	// Cross-origin upgrade attempts die at the gate with a 403.
	header := http.Header{"Origin": {"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(addr, "carol", "Carol"), header)
	if err == nil {
		t.Fatal("expected cross-origin dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 handshake response, got %+v", resp)
	}

	// Allowlisted origins upgrade fine.
	header = http.Header{"Origin": {"http://app.example.com"}}
	carol, _, err := websocket.DefaultDialer.Dial(wsURL(addr, "carol", "Carol"), header)
	if err != nil {
		t.Fatalf("dial carol: %v", err)
	}
	_ = carol.Close()

	// A configured allowlist replaces the same-host default, for upgrades
	// as much as for plain requests.
	header = http.Header{"Origin": {"http://" + addr.String()}}
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(addr, "dave", "Dave"), header)
	if err == nil {
		t.Fatal("expected unlisted same-host dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 handshake response, got %+v", resp)
	}
}

func TestWebSocketSameHostOriginDefault(t *testing.T) {
	addr := startSignalingTestServer(t, testWSConfig())

	header := http.Header{"Origin": {"http://" + addr.String()}}
	dave, _, err := websocket.DefaultDialer.Dial(wsURL(addr, "dave", "Dave"), header)
	if err != nil {
		t.Fatalf("dial with same-host origin: %v", err)
	}
	_ = dave.Close()

	header = http.Header{"Origin": {"http://elsewhere.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(addr, "erin", "Erin"), header)
	if err == nil {
		t.Fatal("expected cross-host dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 handshake response, got %+v", resp)
	}
}
