package stream

import (
	"context"
	"errors"
	"log"
	"time"
)

// Reconnect lanes.
const (
	// FastReconnectDelay applies when the previous connection was
	// established and received at least one tick.
	FastReconnectDelay = 2 * time.Second
	// InitialBackoff starts the exponential lane for connections that never
	// produced data.
	InitialBackoff = 2 * time.Second
	// MaxBackoff caps the exponential lane.
	MaxBackoff = 60 * time.Second
)

// MarketClock gates reconnect attempts on market hours.
type MarketClock interface {
	IsOpen(t time.Time) bool
	BlockUntilOpen(ctx context.Context) error
}

// Supervisor wraps the stream client's main loop with market-hours gating
// and the two reconnect lanes.
type Supervisor struct {
	client *Client
	clock  MarketClock
	logger *log.Logger
}

// NewSupervisor creates a stream supervisor.
func NewSupervisor(client *Client, clock MarketClock, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.New(log.Writer(), "[supervisor] ", log.LstdFlags)
	}
	return &Supervisor{client: client, clock: clock, logger: logger}
}

// NextDelay picks the reconnect delay: the fast lane when the previous
// connection had ticks, otherwise the next step of the exponential lane.
// Rate limiting always uses the exponential lane.
func NextDelay(prev time.Duration, hadTicks bool, rateLimited bool) time.Duration {
	if hadTicks && !rateLimited {
		return FastReconnectDelay
	}

	if prev < InitialBackoff {
		return InitialBackoff
	}
	next := prev * 2
	if next > MaxBackoff {
		next = MaxBackoff
	}
	return next
}

// Run drives connect/reconnect until ctx is cancelled or a fatal error
// occurs. Auth failures are fatal; everything else reconnects.
func (s *Supervisor) Run(ctx context.Context) error {
	delay := time.Duration(0)

	for {
		if err := s.clock.BlockUntilOpen(ctx); err != nil {
			return err
		}

		err := s.client.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, ErrAuthFailed) {
			s.logger.Printf("Authentication failed, giving up: %v", err)
			return err
		}

		hadTicks := s.client.TickCount() > 0
		rateLimited := errors.Is(err, ErrRateLimited)
		delay = NextDelay(delay, hadTicks, rateLimited)
		if hadTicks && !rateLimited {
			// Fast lane resets the exponential sequence.
			delay = FastReconnectDelay
		}

		s.logger.Printf("Reconnecting in %s (had_ticks=%v rate_limited=%v)",
			delay, hadTicks, rateLimited)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		// The market may have closed during the backoff; the next loop
		// iteration blocks until open.
		if !s.clock.IsOpen(time.Now()) {
			s.logger.Println("Market closed during backoff, waiting for next open")
			delay = 0
		}
	}
}
