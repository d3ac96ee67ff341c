package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeBus is an EventBus whose subscription never emits.
type fakeBus struct{}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error { return nil }
func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// dialPair upgrades one connection through a test server and returns both
// ends of it.
func dialPair(t *testing.T) (clientSide, serverSide *websocket.Conn) {
	t.Helper()

	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientSide, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { clientSide.Close() })

	select {
	case serverSide = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side connection")
	}
	return clientSide, serverSide
}

func stopHub(t *testing.T, h *Hub, cancel context.CancelFunc, runDone <-chan error) {
	t.Helper()
	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
}

func TestReadPumpExitsAfterHubStops(t *testing.T) {
	h := NewHub(&fakeBus{}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- h.Run(ctx) }()

	clientSide, serverSide := dialPair(t)
	stopHub(t, h, cancel, runDone)

	// A client whose connection drops only after the hub stopped draining
	// unregister must still see its readPump return.
	c := &client{hub: h, conn: serverSide, send: make(chan []byte, 1), pools: make(map[string]bool)}
	pumpDone := make(chan struct{})
	go func() {
		c.readPump()
		close(pumpDone)
	}()

	clientSide.Close()

	select {
	case <-pumpDone:
	case <-time.After(2 * time.Second):
		t.Fatal("readPump must not block on unregister after the hub stopped")
	}
}

func TestHandleWSRejectsAfterHubStops(t *testing.T) {
	h := NewHub(&fakeBus{}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- h.Run(ctx) }()

	stopHub(t, h, cancel, runDone)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		// The upgrade may already fail once the server side closed.
		return
	}
	defer conn.Close()

	// The stopped hub closes the connection instead of registering it.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection accepted by a stopped hub should be closed")
	}
}
