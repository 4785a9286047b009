package clickhouse

import (
	"context"
	"fmt"

	"sentiment-engine/internal/domain"
)

// ArchiveStore mirrors per-second snapshots and 100-tick candles into the
// ClickHouse analytics archive. Inserts are best-effort; the canonical data
// lives in PostgreSQL.
type ArchiveStore struct {
	conn *Conn
}

// NewArchiveStore creates a new ArchiveStore.
func NewArchiveStore(conn *Conn) *ArchiveStore {
	return &ArchiveStore{conn: conn}
}

// InsertSnapshot archives one per-second snapshot.
func (s *ArchiveStore) InsertSnapshot(ctx context.Context, snap *domain.SecondSnapshot) error {
	query := `
		INSERT INTO second_snapshots_archive (
			symbol, bucket_second, composite, news_cached, technical_cached,
			open, high, low, close, volume, tick_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		snap.Symbol, snap.BucketSecond, snap.Composite,
		snap.NewsCached, snap.TechnicalCached,
		snap.Open, snap.High, snap.Low, snap.Close,
		snap.Volume, int32(snap.TickCount),
	)
	if err != nil {
		return fmt.Errorf("archive snapshot: %w", err)
	}
	return nil
}

// InsertTickCandle archives one 100-tick candle.
func (s *ArchiveStore) InsertTickCandle(ctx context.Context, c *domain.TickCandle100) error {
	query := `
		INSERT INTO tick_candles_100_archive (
			symbol, sequence, first_tick_ms, last_tick_ms, duration_seconds,
			open, high, low, close, volume, tick_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		c.Symbol, c.Sequence, c.FirstTickMs, c.LastTickMs, c.DurationSeconds,
		c.Open, c.High, c.Low, c.Close, c.Volume, int32(c.TickCount),
	)
	if err != nil {
		return fmt.Errorf("archive tick candle: %w", err)
	}
	return nil
}
