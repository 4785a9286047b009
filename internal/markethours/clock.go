// Package markethours decides whether the instrument's market is open and
// gates connection attempts while it is closed.
package markethours

import (
	"context"
	"log"
	"time"

	"github.com/scmhub/calendar"
)

const (
	// marketTimezone is the exchange timezone for the weekday window.
	marketTimezone = "America/New_York"

	// Regular session window.
	openHour    = 9
	openMinute  = 30
	closeHour   = 16
	closeMinute = 0

	// recheckInterval caps how long BlockUntilOpen sleeps between clock
	// re-evaluations.
	recheckInterval = 5 * time.Minute
)

// Clock reports market open/closed state for the instrument.
// A nil timezone means the zone failed to load; the clock then reports
// closed (fail-safe) unless skip is set.
type Clock struct {
	loc    *time.Location
	cal    *calendar.Calendar
	skip   bool
	logger *log.Logger
	now    func() time.Time
}

// Options configures a Clock.
type Options struct {
	// Skip forces always-open (test mode).
	Skip   bool
	Logger *log.Logger
	// Now overrides the time source for tests.
	Now func() time.Time
}

// NewClock builds a market clock. The exchange holiday calendar refines the
// weekday window when available; without it the clock falls back to plain
// Mon-Fri 09:30-16:00.
func NewClock(opts Options) *Clock {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[markethours] ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Clock{skip: opts.Skip, logger: logger, now: now}

	loc, err := time.LoadLocation(marketTimezone)
	if err != nil {
		logger.Printf("Failed to load timezone %s: %v (clock reports closed)", marketTimezone, err)
		return c
	}
	c.loc = loc

	if cal := calendar.GetCalendar("xnys"); cal != nil {
		c.cal = cal
	} else {
		logger.Println("Exchange calendar xnys unavailable, using weekday window only")
	}

	return c
}

// Location returns the exchange timezone, or UTC when it failed to load.
func (c *Clock) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// IsOpen reports whether the market is open at t.
func (c *Clock) IsOpen(t time.Time) bool {
	if c.skip {
		return true
	}
	if c.loc == nil {
		return false
	}

	local := t.In(c.loc)

	if c.cal != nil && !c.cal.IsBusinessDay(local) {
		return false
	}
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	return minutes >= openHour*60+openMinute && minutes < closeHour*60+closeMinute
}

// NextOpenAfter returns the next instant at or after t when the market
// opens. With a broken timezone it returns t plus the recheck interval so
// callers keep polling instead of spinning.
func (c *Clock) NextOpenAfter(t time.Time) time.Time {
	if c.skip {
		return t
	}
	if c.loc == nil {
		return t.Add(recheckInterval)
	}
	if c.IsOpen(t) {
		return t
	}

	local := t.In(c.loc)
	for day := 0; day < 14; day++ {
		candidate := time.Date(local.Year(), local.Month(), local.Day(),
			openHour, openMinute, 0, 0, c.loc).AddDate(0, 0, day)
		if candidate.Before(local) || !c.IsOpen(candidate) {
			continue
		}
		return candidate
	}

	// Two weeks without an open session means calendar trouble; keep polling.
	return t.Add(recheckInterval)
}

// BlockUntilOpen sleeps until the market opens, re-checking the clock at
// most every 5 minutes. Returns early with the context error on cancel.
func (c *Clock) BlockUntilOpen(ctx context.Context) error {
	for {
		now := c.now()
		if c.IsOpen(now) {
			return nil
		}

		next := c.NextOpenAfter(now)
		sleep := next.Sub(now)
		if sleep > recheckInterval {
			sleep = recheckInterval
		}
		if sleep < time.Second {
			sleep = time.Second
		}

		c.logger.Printf("Market closed, next open %s, sleeping %s",
			next.Format(time.RFC3339), sleep.Round(time.Second))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}
