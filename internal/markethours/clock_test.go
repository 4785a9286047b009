package markethours

import (
	"context"
	"io"
	"log"
	"testing"
	"time"
)

func testClock(t *testing.T, skip bool) *Clock {
	t.Helper()
	return NewClock(Options{
		Skip:   skip,
		Logger: log.New(io.Discard, "", 0),
	})
}

func nyTime(t *testing.T, year int, month time.Month, day, hour, min int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}
	return time.Date(year, month, day, hour, min, 0, 0, loc)
}

func TestIsOpenWeekdayWindow(t *testing.T) {
	c := testClock(t, false)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		// 2026-08-24 is a Monday.
		{"mid session", nyTime(t, 2026, 8, 24, 12, 0), true},
		{"at open", nyTime(t, 2026, 8, 24, 9, 30), true},
		{"before open", nyTime(t, 2026, 8, 24, 9, 29), false},
		{"at close", nyTime(t, 2026, 8, 24, 16, 0), false},
		{"last minute", nyTime(t, 2026, 8, 24, 15, 59), true},
		{"saturday", nyTime(t, 2026, 8, 22, 12, 0), false},
		{"sunday", nyTime(t, 2026, 8, 23, 12, 0), false},
		{"overnight", nyTime(t, 2026, 8, 24, 3, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsOpen(tt.at); got != tt.want {
				t.Errorf("IsOpen(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestIsOpenSkipOverride(t *testing.T) {
	c := testClock(t, true)

	if !c.IsOpen(nyTime(t, 2026, 8, 23, 3, 0)) {
		t.Error("skip override should force open on a Sunday night")
	}
}

func TestNextOpenAfter(t *testing.T) {
	c := testClock(t, false)

	// Friday after close -> Monday 09:30 (skipping the weekend), unless the
	// Monday is a holiday, in which case a later business day.
	fridayEvening := nyTime(t, 2026, 8, 21, 18, 0)
	next := c.NextOpenAfter(fridayEvening)

	if !next.After(fridayEvening) {
		t.Fatalf("next open %s not after %s", next, fridayEvening)
	}
	if !c.IsOpen(next) {
		t.Errorf("NextOpenAfter returned a closed instant: %s", next)
	}
	if next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		t.Errorf("next open fell on a weekend: %s", next)
	}
}

func TestNextOpenAfterWhenOpen(t *testing.T) {
	c := testClock(t, false)

	during := nyTime(t, 2026, 8, 24, 12, 0)
	if got := c.NextOpenAfter(during); !got.Equal(during) {
		t.Errorf("NextOpenAfter during session = %s, want %s", got, during)
	}
}

func TestBlockUntilOpenReturnsImmediatelyWhenOpen(t *testing.T) {
	c := NewClock(Options{
		Skip:   true,
		Logger: log.New(io.Discard, "", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := c.BlockUntilOpen(ctx); err != nil {
		t.Errorf("BlockUntilOpen with skip = %v, want nil", err)
	}
}

func TestBlockUntilOpenHonorsCancel(t *testing.T) {
	c := NewClock(Options{
		Logger: log.New(io.Discard, "", 0),
		Now: func() time.Time {
			// Always Sunday, market never opens during the test.
			return nyTime(t, 2026, 8, 23, 12, 0)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.BlockUntilOpen(ctx); err == nil {
		t.Error("expected context error from cancelled BlockUntilOpen")
	}
}
