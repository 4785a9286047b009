package persist

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/storage"
	"sentiment-engine/internal/storage/memory"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestAdapter(snaps storage.SnapshotStore, minutes storage.MinuteRowStore, now time.Time) *Adapter {
	return New(Options{
		Symbol:      "TQQQ",
		Snapshots:   snaps,
		Minutes:     minutes,
		FreshWindow: 70 * time.Second,
		Logger:      quietLogger(),
		Now:         func() time.Time { return now },
	})
}

func TestWriteSnapshotDuplicateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	snaps := memory.NewSnapshotStore()
	a := newTestAdapter(snaps, memory.NewMinuteRowStore(), time.Unix(1000, 0))

	snap := &domain.SecondSnapshot{Symbol: "TQQQ", BucketSecond: 1000, Composite: 10}
	if err := a.WriteSnapshot(ctx, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	// Same bucket again: swallowed, not an error.
	if err := a.WriteSnapshot(ctx, snap); err != nil {
		t.Errorf("duplicate WriteSnapshot: %v", err)
	}
}

// failingSnapshotStore fails the first n inserts.
type failingSnapshotStore struct {
	*memory.SnapshotStore
	failures int
	attempts int
}

func (s *failingSnapshotStore) Insert(ctx context.Context, snap *domain.SecondSnapshot) error {
	s.attempts++
	if s.attempts <= s.failures {
		return storage.ErrTransient
	}
	return s.SnapshotStore.Insert(ctx, snap)
}

func TestWriteSnapshotRetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	snaps := &failingSnapshotStore{SnapshotStore: memory.NewSnapshotStore(), failures: 2}
	a := newTestAdapter(snaps, memory.NewMinuteRowStore(), time.Unix(1000, 0))

	if err := a.WriteSnapshot(ctx, &domain.SecondSnapshot{Symbol: "TQQQ", BucketSecond: 1000}); err != nil {
		t.Fatalf("WriteSnapshot after retries: %v", err)
	}
	if snaps.attempts != 3 {
		t.Errorf("attempts = %d, want 3", snaps.attempts)
	}
}

func TestWriteSnapshotGivesUpAfterBudget(t *testing.T) {
	ctx := context.Background()
	snaps := &failingSnapshotStore{SnapshotStore: memory.NewSnapshotStore(), failures: 10}
	a := newTestAdapter(snaps, memory.NewMinuteRowStore(), time.Unix(1000, 0))

	if err := a.WriteSnapshot(ctx, &domain.SecondSnapshot{Symbol: "TQQQ", BucketSecond: 1000}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if snaps.attempts != 3 {
		t.Errorf("attempts = %d, want 3", snaps.attempts)
	}
}

func TestWriteMinuteRowMirrorsWhenPerSecondActive(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1010, 0)
	snaps := memory.NewSnapshotStore()
	minutes := memory.NewMinuteRowStore()
	a := newTestAdapter(snaps, minutes, now)

	// A snapshot 10 seconds old: the per-second loop is active.
	if err := snaps.Insert(ctx, &domain.SecondSnapshot{Symbol: "TQQQ", BucketSecond: 1000}); err != nil {
		t.Fatal(err)
	}

	row := &domain.MinuteRow{
		TimestampMs: now.UnixMilli(),
		Composite:   20, News: 30, Reddit: 10, Technical: 40, Analyst: 5,
		Price: 85.5,
	}
	if err := a.WriteMinuteRow(ctx, row); err != nil {
		t.Fatalf("WriteMinuteRow: %v", err)
	}

	latest, err := snaps.GetLatest(ctx, "TQQQ")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if latest.BucketSecond != 1010 {
		t.Errorf("mirror bucket = %d, want 1010", latest.BucketSecond)
	}
	if latest.NewsCached != 30 || latest.TechnicalCached != 40 {
		t.Errorf("mirror base = news %v technical %v, want 30/40", latest.NewsCached, latest.TechnicalCached)
	}
	if latest.Close != 85.5 {
		t.Errorf("mirror close = %v, want 85.5", latest.Close)
	}
}

func TestWriteMinuteRowSkipsMirrorWhenStale(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(2000, 0)
	snaps := memory.NewSnapshotStore()
	minutes := memory.NewMinuteRowStore()
	a := newTestAdapter(snaps, minutes, now)

	// Latest snapshot is 1000 seconds old.
	if err := snaps.Insert(ctx, &domain.SecondSnapshot{Symbol: "TQQQ", BucketSecond: 1000}); err != nil {
		t.Fatal(err)
	}

	if err := a.WriteMinuteRow(ctx, &domain.MinuteRow{TimestampMs: now.UnixMilli()}); err != nil {
		t.Fatalf("WriteMinuteRow: %v", err)
	}

	latest, err := snaps.GetLatest(ctx, "TQQQ")
	if err != nil {
		t.Fatal(err)
	}
	if latest.BucketSecond != 1000 {
		t.Errorf("unexpected mirror snapshot at bucket %d", latest.BucketSecond)
	}
}

func TestWriteMinuteRowNoSnapshotsNoMirror(t *testing.T) {
	ctx := context.Background()
	snaps := memory.NewSnapshotStore()
	a := newTestAdapter(snaps, memory.NewMinuteRowStore(), time.Unix(1000, 0))

	if err := a.WriteMinuteRow(ctx, &domain.MinuteRow{TimestampMs: 1_000_000}); err != nil {
		t.Fatalf("WriteMinuteRow: %v", err)
	}
	if _, err := snaps.GetLatest(ctx, "TQQQ"); err == nil {
		t.Error("mirror snapshot written with no per-second activity")
	}
}
