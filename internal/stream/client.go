package stream

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sentiment-engine/internal/domain"
)

// ClientConfig configures stream connection behavior.
type ClientConfig struct {
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// PongWait is how long to wait for a pong after a ping.
	PongWait time.Duration
	// HealthCheckInterval is how often the health monitor runs.
	HealthCheckInterval time.Duration
	// StallTimeout closes the connection when no tick arrived for this long
	// during market hours.
	StallTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
	// HandshakeTimeout is the timeout for the websocket dial.
	HandshakeTimeout time.Duration
}

// DefaultClientConfig returns the default stream configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval:        15 * time.Second,
		PongWait:            5 * time.Second,
		HealthCheckInterval: 5 * time.Second,
		StallTimeout:        15 * time.Second,
		WriteTimeout:        10 * time.Second,
		HandshakeTimeout:    10 * time.Second,
	}
}

// TickHandler consumes parsed ticks synchronously with the read loop.
type TickHandler func(domain.Tick)

// Client maintains a single streaming connection to the tick provider.
// One Run call is one connection lifetime; the supervisor owns reconnects.
type Client struct {
	url     string
	apiKey  string
	symbol  string
	config  ClientConfig
	handler TickHandler
	logger  *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	lastTickMs atomic.Int64
	tickCount  atomic.Int64

	// closeLogged suppresses duplicate concurrent disconnect logs:
	// fast-path atomic check, then double-check under the mutex.
	closeLogged atomic.Bool
	closeMu     sync.Mutex
}

// ClientOptions configures a Client.
type ClientOptions struct {
	URL     string
	APIKey  string
	Symbol  string
	Handler TickHandler
	Logger  *log.Logger
	// Config overrides DefaultClientConfig when non-nil.
	Config *ClientConfig
}

// NewClient creates a stream client. It does not connect; call Run.
func NewClient(opts ClientOptions) *Client {
	cfg := DefaultClientConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[stream] ", log.LstdFlags)
	}

	return &Client{
		url:     opts.URL,
		apiKey:  opts.APIKey,
		symbol:  opts.Symbol,
		config:  cfg,
		handler: opts.Handler,
		logger:  logger,
	}
}

// TickCount returns the number of ticks received on the current connection.
func (c *Client) TickCount() int64 {
	return c.tickCount.Load()
}

// Run connects, subscribes, and reads ticks until the connection drops or
// ctx is cancelled. Returns ErrAuthFailed, ErrRateLimited or ErrStreamClosed.
func (c *Client) Run(ctx context.Context) error {
	c.tickCount.Store(0)
	c.lastTickMs.Store(time.Now().UnixMilli())
	c.closeLogged.Store(false)

	if err := c.connect(ctx); err != nil {
		return err
	}
	defer c.closeConn("run exit")

	if err := c.subscribe(); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.symbol, err)
	}
	c.logger.Printf("Connected and subscribed to %s", c.symbol)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.pingLoop(runCtx)
	}()
	go func() {
		defer wg.Done()
		c.healthLoop(runCtx)
	}()

	err := c.readLoop(ctx)

	cancel()
	c.closeConn("read loop done")
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// connect dials the upstream with the API key attached.
func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	url := c.url
	if c.apiKey != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url = url + sep + "token=" + c.apiKey
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return fmt.Errorf("%w: http %d", ErrAuthFailed, resp.StatusCode)
			case http.StatusTooManyRequests:
				return fmt.Errorf("%w: http %d", ErrRateLimited, resp.StatusCode)
			}
		}
		return fmt.Errorf("%w: dial: %v", ErrStreamClosed, err)
	}

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.config.PingInterval + c.config.PongWait))
		return nil
	})

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// subscribe sends the subscription request for the instrument.
func (c *Client) subscribe() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrStreamClosed
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(subscribeRequest{
		Action:  "subscribe",
		Symbols: c.symbol,
	})
}

// readLoop reads messages and hands ticks to the handler.
func (c *Client) readLoop(ctx context.Context) error {
	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return ErrStreamClosed
		}

		conn.SetReadDeadline(time.Now().Add(c.config.PingInterval + c.config.PongWait))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logDisconnect(err)
			if websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				return fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
			return fmt.Errorf("%w: %v", ErrStreamClosed, err)
		}

		ticks, err := ParseTicks(message)
		if err != nil {
			c.logger.Printf("Unparseable message dropped: %v", err)
			continue
		}

		for _, tick := range ticks {
			c.lastTickMs.Store(time.Now().UnixMilli())
			c.tickCount.Add(1)
			if c.handler != nil {
				c.handler(tick)
			}
		}
	}
}

// pingLoop sends a ping every PingInterval. A missing pong surfaces as a
// read deadline error in the read loop.
func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will notice
				}
			}
			c.connMu.Unlock()
		}
	}
}

// healthLoop closes the connection when no tick arrived for StallTimeout.
func (c *Client) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			silent := time.Since(time.UnixMilli(c.lastTickMs.Load()))
			if silent > c.config.StallTimeout {
				c.logDisconnect(fmt.Errorf("no tick for %s", silent.Round(time.Second)))
				c.closeConn("stall detected")
				return
			}
		}
	}
}

// closeConn closes the connection once; later calls are no-ops.
func (c *Client) closeConn(reason string) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}

	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	c.conn.Close()
	c.conn = nil
}

// logDisconnect emits a single consolidated disconnect message. Concurrent
// callers (read loop, health monitor) race to log; the fast path checks the
// flag without the lock, then re-checks after acquiring it.
func (c *Client) logDisconnect(cause error) {
	if c.closeLogged.Load() {
		return
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closeLogged.Load() {
		return
	}
	c.closeLogged.Store(true)

	c.logger.Printf("Disconnected from %s: cause=%v ticks_received=%d",
		c.symbol, cause, c.tickCount.Load())
}
