package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sentiment-engine/internal/domain"
)

// testServer is a minimal websocket tick provider.
type testServer struct {
	*httptest.Server
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn

	subscribed chan subscribeRequest
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s := &testServer{subscribed: make(chan subscribeRequest, 1)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req subscribeRequest
			if json.Unmarshal(msg, &req) == nil && req.Action == "subscribe" {
				select {
				case s.subscribed <- req:
				default:
				}
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *testServer) sendTicks(t *testing.T, ticks ...domain.Tick) {
	t.Helper()

	raws := make([]rawTick, len(ticks))
	for i, tk := range ticks {
		raws[i] = rawTick{Symbol: tk.Symbol, Price: tk.Price, Volume: tk.Volume, Timestamp: float64(tk.TimestampMs)}
	}
	payload, err := json.Marshal(map[string]interface{}{"type": "trade", "data": raws})
	if err != nil {
		t.Fatal(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		t.Fatal("no client connected")
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatal(err)
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestClientSubscribesAndDeliversTicks(t *testing.T) {
	server := newTestServer(t)

	received := make(chan domain.Tick, 10)
	client := NewClient(ClientOptions{
		URL:    server.wsURL(),
		Symbol: "TQQQ",
		Handler: func(tk domain.Tick) {
			received <- tk
		},
		Logger: quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	select {
	case req := <-server.subscribed:
		if req.Symbols != "TQQQ" {
			t.Errorf("subscribed to %q, want TQQQ", req.Symbols)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe request received")
	}

	server.sendTicks(t, domain.Tick{Symbol: "TQQQ", Price: 85.0, Volume: 10, TimestampMs: 1700000000123})

	select {
	case tk := <-received:
		if tk.Price != 85.0 {
			t.Errorf("tick price = %v, want 85.0", tk.Price)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tick not delivered")
	}

	if client.TickCount() != 1 {
		t.Errorf("TickCount = %d, want 1", client.TickCount())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}

func TestClientStallDetection(t *testing.T) {
	server := newTestServer(t)

	cfg := DefaultClientConfig()
	cfg.HealthCheckInterval = 20 * time.Millisecond
	cfg.StallTimeout = 60 * time.Millisecond
	// Keep pings away from the short test window.
	cfg.PingInterval = time.Minute
	cfg.PongWait = time.Minute

	client := NewClient(ClientOptions{
		URL:    server.wsURL(),
		Symbol: "TQQQ",
		Config: &cfg,
		Logger: quietLogger(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.Run(ctx)
	if err == nil {
		t.Fatal("expected error after stall close")
	}
	if !errors.Is(err, ErrStreamClosed) {
		t.Errorf("err = %v, want ErrStreamClosed", err)
	}
	if ctx.Err() != nil {
		t.Error("stall detection did not fire before test timeout")
	}
}
