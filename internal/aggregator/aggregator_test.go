package aggregator

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/storage/memory"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fixedClock returns a controllable time source.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func tickAt(ms int64, price, volume float64) domain.Tick {
	return domain.Tick{Symbol: "TQQQ", Price: price, Volume: volume, TimestampMs: ms}
}

func TestFinalizeElapsedBuildsOneCandlePerSecond(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	agg := New(Options{Symbol: "TQQQ", Logger: quietLogger(), Now: clock.now})

	// Three ticks in second 999, one in second 1000 (current).
	agg.HandleTick(tickAt(999_100, 85.0, 10))
	agg.HandleTick(tickAt(999_500, 85.5, 5))
	agg.HandleTick(tickAt(999_900, 85.2, 20))
	agg.HandleTick(tickAt(1000_100, 86.0, 1))

	ctx := context.Background()
	agg.finalizeElapsed(ctx)

	select {
	case c := <-agg.Candles():
		if c.BucketSecond != 999 {
			t.Errorf("BucketSecond = %d, want 999", c.BucketSecond)
		}
		if c.Open != 85.0 || c.Close != 85.2 {
			t.Errorf("open/close = %v/%v, want 85.0/85.2", c.Open, c.Close)
		}
		if c.High != 85.5 || c.Low != 85.0 {
			t.Errorf("high/low = %v/%v, want 85.5/85.0", c.High, c.Low)
		}
		if c.Volume != 35 || c.TickCount != 3 {
			t.Errorf("volume/count = %v/%d, want 35/3", c.Volume, c.TickCount)
		}
	default:
		t.Fatal("no candle finalized for elapsed second")
	}

	// The current second must not be finalized.
	select {
	case c := <-agg.Candles():
		t.Fatalf("unexpected candle for second %d", c.BucketSecond)
	default:
	}

	// Finalizing again produces nothing new.
	agg.finalizeElapsed(ctx)
	select {
	case c := <-agg.Candles():
		t.Fatalf("second %d finalized twice", c.BucketSecond)
	default:
	}
}

func TestFinalizeElapsedEmitsBacklogInOrder(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1700000095, 0)}
	agg := New(Options{Symbol: "TQQQ", Logger: quietLogger(), Now: clock.now})

	// Five backlogged seconds arriving scrambled, as after a stalled loop.
	for _, sec := range []int64{1700000093, 1700000090, 1700000094, 1700000091, 1700000092} {
		agg.HandleTick(tickAt(sec*1000+100, 85.0, 1))
	}

	agg.finalizeElapsed(context.Background())

	want := int64(1700000090)
	for i := 0; i < 5; i++ {
		select {
		case c := <-agg.Candles():
			if c.BucketSecond != want {
				t.Fatalf("candle %d: BucketSecond = %d, want %d", i, c.BucketSecond, want)
			}
			want++
		default:
			t.Fatalf("only %d of 5 backlogged candles emitted", i)
		}
	}
}

func TestLateTickCountedOnlyInTickDimension(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	agg := New(Options{Symbol: "TQQQ", Logger: quietLogger(), Now: clock.now})

	agg.HandleTick(tickAt(999_100, 85.0, 10))
	agg.finalizeElapsed(context.Background())
	<-agg.Candles()

	// A tick for the already-processed second 999.
	agg.HandleTick(tickAt(999_800, 90.0, 5))

	total, late := agg.Stats()
	if total != 2 {
		t.Errorf("total ticks = %d, want 2", total)
	}
	if late != 1 {
		t.Errorf("late ticks = %d, want 1", late)
	}

	// The late tick must not create a new 1-second bucket.
	agg.finalizeElapsed(context.Background())
	select {
	case c := <-agg.Candles():
		t.Fatalf("late tick produced candle for second %d", c.BucketSecond)
	default:
	}

	// It still counts toward the rolling 100-tick buffer.
	agg.mu.Lock()
	bufLen := len(agg.tickBuf)
	agg.mu.Unlock()
	if bufLen != 2 {
		t.Errorf("tick buffer length = %d, want 2", bufLen)
	}
}

func TestHundredTickCandleEmission(t *testing.T) {
	store := memory.NewTickCandleStore()
	clock := &fixedClock{t: time.Unix(2000, 0)}
	agg := New(Options{Symbol: "TQQQ", CandleStore: store, Logger: quietLogger(), Now: clock.now})

	for i := 0; i < 100; i++ {
		agg.HandleTick(tickAt(1_999_000+int64(i)*10, 85.0+float64(i)*0.01, 1))
	}

	ctx := context.Background()
	max, err := store.MaxSequence(ctx, "TQQQ")
	if err != nil {
		t.Fatalf("MaxSequence: %v", err)
	}
	if max != 1 {
		t.Fatalf("MaxSequence = %d, want 1", max)
	}

	candles, err := store.GetByTimeRange(ctx, "TQQQ", 0, 3_000_000)
	if err != nil {
		t.Fatalf("GetByTimeRange: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("got %d candles, want 1", len(candles))
	}
	c := candles[0]
	if c.TickCount != 100 {
		t.Errorf("TickCount = %d, want 100", c.TickCount)
	}
	if c.Open != 85.0 || c.Close != 85.99 {
		t.Errorf("open/close = %v/%v, want 85.0/85.99", c.Open, c.Close)
	}
	if c.FirstTickMs != 1_999_000 || c.LastTickMs != 1_999_990 {
		t.Errorf("first/last = %d/%d", c.FirstTickMs, c.LastTickMs)
	}

	// The buffer restarts: the next 99 ticks emit nothing.
	for i := 0; i < 99; i++ {
		agg.HandleTick(tickAt(2_000_000+int64(i)*10, 86.0, 1))
	}
	max, _ = store.MaxSequence(ctx, "TQQQ")
	if max != 1 {
		t.Errorf("MaxSequence after 99 more ticks = %d, want 1", max)
	}

	// The 100th emits sequence 2.
	agg.HandleTick(tickAt(2_001_000, 86.5, 1))
	max, _ = store.MaxSequence(ctx, "TQQQ")
	if max != 2 {
		t.Errorf("MaxSequence = %d, want 2", max)
	}
}

func TestInitSequenceResumesFromStore(t *testing.T) {
	store := memory.NewTickCandleStore()
	ctx := context.Background()

	if err := store.Insert(ctx, &domain.TickCandle100{
		Symbol: "TQQQ", Sequence: 41, FirstTickMs: 1, LastTickMs: 2, TickCount: 100,
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	clock := &fixedClock{t: time.Unix(2000, 0)}
	agg := New(Options{Symbol: "TQQQ", CandleStore: store, Logger: quietLogger(), Now: clock.now})
	if err := agg.InitSequence(ctx); err != nil {
		t.Fatalf("InitSequence: %v", err)
	}

	for i := 0; i < 100; i++ {
		agg.HandleTick(tickAt(1_999_000+int64(i), 85.0, 1))
	}

	max, err := store.MaxSequence(ctx, "TQQQ")
	if err != nil {
		t.Fatalf("MaxSequence: %v", err)
	}
	if max != 42 {
		t.Errorf("MaxSequence = %d, want 42", max)
	}
}

func TestPruneProcessedKeepsRecentSeconds(t *testing.T) {
	clock := &fixedClock{t: time.Unix(10_000, 0)}
	agg := New(Options{Symbol: "TQQQ", Logger: quietLogger(), Now: clock.now})

	agg.mu.Lock()
	agg.processed[9_000] = clock.t.Add(-10 * time.Minute)
	agg.processed[9_990] = clock.t.Add(-10 * time.Second)
	agg.mu.Unlock()

	agg.pruneProcessed()

	agg.mu.Lock()
	defer agg.mu.Unlock()
	if _, ok := agg.processed[9_000]; ok {
		t.Error("stale processed second survived prune")
	}
	if _, ok := agg.processed[9_990]; !ok {
		t.Error("recent processed second was pruned")
	}
}

func TestRunFlushesOnShutdown(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	agg := New(Options{Symbol: "TQQQ", Logger: quietLogger(), Now: clock.now})

	agg.HandleTick(tickAt(1000_100, 86.0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}

	// The in-flight current second was flushed and the channel closed.
	c, ok := <-agg.Candles()
	if !ok {
		t.Fatal("candle channel closed without flushing in-flight second")
	}
	if c.BucketSecond != 1000 {
		t.Errorf("BucketSecond = %d, want 1000", c.BucketSecond)
	}
	if _, ok := <-agg.Candles(); ok {
		t.Error("expected channel closed after flush")
	}
}
