// Package persist is the dual-table write path: best-effort per-second
// snapshots and always-written minute rows, with the mirror-snapshot
// handoff between the two cadences.
package persist

import (
	"context"
	"errors"
	"log"
	"time"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/observability"
	"sentiment-engine/internal/storage"
)

// snapshotRetries is the per-write attempt budget for snapshot inserts.
var snapshotRetries = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

// Adapter writes to the snapshot and minute-row tables.
type Adapter struct {
	symbol      string
	snapshots   storage.SnapshotStore
	minutes     storage.MinuteRowStore
	freshWindow time.Duration
	logger      *log.Logger
	now         func() time.Time
}

// Options configures an Adapter.
type Options struct {
	Symbol    string
	Snapshots storage.SnapshotStore
	Minutes   storage.MinuteRowStore
	// FreshWindow is the snapshot age below which the per-second loop is
	// considered active.
	FreshWindow time.Duration
	Logger      *log.Logger
	// Now overrides the time source for tests.
	Now func() time.Time
}

// New creates a persistence adapter.
func New(opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[persist] ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	freshWindow := opts.FreshWindow
	if freshWindow <= 0 {
		freshWindow = 70 * time.Second
	}

	return &Adapter{
		symbol:      opts.Symbol,
		snapshots:   opts.Snapshots,
		minutes:     opts.Minutes,
		freshWindow: freshWindow,
		logger:      logger,
		now:         now,
	}
}

// WriteSnapshot inserts a per-second snapshot with a bounded retry budget.
// A duplicate bucket is idempotent success. Never blocks the caller past
// the cumulative backoff.
func (a *Adapter) WriteSnapshot(ctx context.Context, snap *domain.SecondSnapshot) error {
	var lastErr error
	for attempt := 0; attempt < len(snapshotRetries); attempt++ {
		err := a.snapshots.Insert(ctx, snap)
		if err == nil {
			observability.RecordSnapshotWritten(snap.Composite)
			return nil
		}
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		lastErr = err
		if attempt == len(snapshotRetries)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(snapshotRetries[attempt]):
		}
	}
	a.logger.Printf("Snapshot write failed for bucket %d: %v", snap.BucketSecond, lastErr)
	return lastErr
}

// WriteMinuteRow inserts a minute row. When the per-second loop is active
// (latest snapshot younger than the fresh window), it additionally writes a
// snapshot mirroring the new base so the composer picks it up seamlessly.
func (a *Adapter) WriteMinuteRow(ctx context.Context, row *domain.MinuteRow) error {
	if err := a.minutes.Insert(ctx, row); err != nil {
		return err
	}
	observability.RecordMinuteRowWritten()

	if a.perSecondActive(ctx) {
		if err := a.mirrorSnapshot(ctx, row); err != nil {
			a.logger.Printf("Mirror snapshot failed: %v", err)
		}
	}
	return nil
}

// perSecondActive reports whether a snapshot exists within the fresh window.
func (a *Adapter) perSecondActive(ctx context.Context) bool {
	latest, err := a.snapshots.GetLatest(ctx, a.symbol)
	if err != nil {
		return false
	}
	age := a.now().Unix() - latest.BucketSecond
	return age >= 0 && time.Duration(age)*time.Second < a.freshWindow
}

// mirrorSnapshot writes the minute row's base as a snapshot at the current
// second.
func (a *Adapter) mirrorSnapshot(ctx context.Context, row *domain.MinuteRow) error {
	snap := &domain.SecondSnapshot{
		Symbol:          a.symbol,
		BucketSecond:    a.now().Unix(),
		Composite:       row.Composite,
		NewsCached:      row.News,
		TechnicalCached: row.Technical,
		Open:            row.Price,
		High:            row.Price,
		Low:             row.Price,
		Close:           row.Price,
	}
	return a.WriteSnapshot(ctx, snap)
}
