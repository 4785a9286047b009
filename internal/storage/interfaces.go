package storage

import (
	"context"

	"sentiment-engine/internal/domain"
)

// ArticleStore provides access to articles storage.
type ArticleStore interface {
	// Upsert inserts or updates an article keyed on hash. Returns true when
	// a new row was created. created_at is set only on first insert.
	Upsert(ctx context.Context, a *domain.Article) (created bool, err error)

	// GetByHash retrieves an article by its hash. Returns ErrNotFound if not exists.
	GetByHash(ctx context.Context, hash string) (*domain.Article, error)

	// GetUnanalyzed retrieves articles not yet consumed by the minute
	// analyzer, ordered by fetched_at ASC, up to limit.
	GetUnanalyzed(ctx context.Context, limit int) ([]*domain.Article, error)

	// MarkAnalyzed flags articles as consumed by the minute analyzer.
	MarkAnalyzed(ctx context.Context, hashes []string) error
}

// MinuteRowStore provides access to minute_rows storage.
type MinuteRowStore interface {
	// Insert adds a new minute row.
	Insert(ctx context.Context, r *domain.MinuteRow) error

	// GetLatest retrieves the most recent minute row. Returns ErrNotFound
	// when the table is empty.
	GetLatest(ctx context.Context) (*domain.MinuteRow, error)

	// GetByTimeRange retrieves rows within [start, end] ms (inclusive),
	// ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.MinuteRow, error)
}

// SnapshotStore provides access to second_snapshots storage.
type SnapshotStore interface {
	// Insert adds a new snapshot. Returns ErrDuplicateKey if
	// (symbol, bucket_second) exists.
	Insert(ctx context.Context, s *domain.SecondSnapshot) error

	// GetLatest retrieves the most recent snapshot for a symbol. Returns
	// ErrNotFound when none exists.
	GetLatest(ctx context.Context, symbol string) (*domain.SecondSnapshot, error)

	// GetRecent retrieves the most recent snapshots for a symbol, newest
	// first, up to limit.
	GetRecent(ctx context.Context, symbol string, limit int) ([]*domain.SecondSnapshot, error)

	// GetByTimeRange retrieves snapshots within [start, end] bucket-seconds
	// (inclusive), ordered by bucket_second ASC.
	GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*domain.SecondSnapshot, error)
}

// TickCandleStore provides access to tick_candles_100 storage.
type TickCandleStore interface {
	// Insert adds a new 100-tick candle. Returns ErrDuplicateKey if
	// (symbol, sequence) exists.
	Insert(ctx context.Context, c *domain.TickCandle100) error

	// MaxSequence returns the highest stored sequence for a symbol, or 0
	// when none exists.
	MaxSequence(ctx context.Context, symbol string) (int64, error)

	// GetByTimeRange retrieves candles whose first tick falls within
	// [start, end] ms (inclusive), ordered by sequence ASC.
	GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*domain.TickCandle100, error)
}
