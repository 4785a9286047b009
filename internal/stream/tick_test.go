package stream

import (
	"testing"
	"time"
)

func TestParseTicksEnvelope(t *testing.T) {
	msg := []byte(`{"type":"trade","data":[
		{"s":"TQQQ","p":85.0,"v":100,"t":1700000000123},
		{"s":"TQQQ","p":85.1,"v":50,"t":1700000000456}
	]}`)

	ticks, err := ParseTicks(msg)
	if err != nil {
		t.Fatalf("ParseTicks: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("got %d ticks, want 2", len(ticks))
	}
	if ticks[0].Price != 85.0 || ticks[0].TimestampMs != 1700000000123 {
		t.Errorf("first tick = %+v", ticks[0])
	}
}

func TestParseTicksBareObject(t *testing.T) {
	msg := []byte(`{"s":"TQQQ","p":85.0,"v":10,"t":1700000000123}`)

	ticks, err := ParseTicks(msg)
	if err != nil {
		t.Fatalf("ParseTicks: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("got %d ticks, want 1", len(ticks))
	}
}

func TestParseTicksSecondsTimestamp(t *testing.T) {
	// Values at or below 1e10 are epoch seconds.
	msg := []byte(`{"s":"TQQQ","p":85.0,"v":10,"t":1700000000}`)

	ticks, err := ParseTicks(msg)
	if err != nil {
		t.Fatalf("ParseTicks: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("got %d ticks, want 1", len(ticks))
	}
	if ticks[0].TimestampMs != 1700000000000 {
		t.Errorf("TimestampMs = %d, want seconds converted to ms", ticks[0].TimestampMs)
	}
}

func TestParseTicksSkipsInvalid(t *testing.T) {
	msg := []byte(`{"type":"trade","data":[
		{"s":"TQQQ","p":0,"v":10,"t":1700000000123},
		{"s":"TQQQ","p":85.0,"v":-5,"t":1700000000123},
		{"s":"TQQQ","p":85.0,"v":5,"t":1700000000123}
	]}`)

	ticks, err := ParseTicks(msg)
	if err != nil {
		t.Fatalf("ParseTicks: %v", err)
	}
	if len(ticks) != 1 {
		t.Errorf("got %d ticks, want 1 (zero price and negative volume dropped)", len(ticks))
	}
}

func TestParseTicksNonTradeMessage(t *testing.T) {
	ticks, err := ParseTicks([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("ParseTicks: %v", err)
	}
	if len(ticks) != 0 {
		t.Errorf("got %d ticks from ping, want 0", len(ticks))
	}
}

func TestNextDelayFastLane(t *testing.T) {
	// A connection that received ticks reconnects after 2 s regardless of
	// previous backoff.
	if got := NextDelay(32*time.Second, true, false); got != FastReconnectDelay {
		t.Errorf("NextDelay(had ticks) = %v, want %v", got, FastReconnectDelay)
	}
}

func TestNextDelayExponentialLane(t *testing.T) {
	delays := []time.Duration{0, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}

	for i, prev := range delays {
		if got := NextDelay(prev, false, false); got != want[i] {
			t.Errorf("NextDelay(%v, no ticks) = %v, want %v", prev, got, want[i])
		}
	}

	// Capped at 60 s.
	if got := NextDelay(60*time.Second, false, false); got != MaxBackoff {
		t.Errorf("NextDelay at cap = %v, want %v", got, MaxBackoff)
	}
}

func TestNextDelayRateLimitedNeverFast(t *testing.T) {
	// Rate limiting uses the exponential lane even when ticks flowed.
	if got := NextDelay(4*time.Second, true, true); got != 8*time.Second {
		t.Errorf("NextDelay(rate limited) = %v, want 8s", got)
	}
}
