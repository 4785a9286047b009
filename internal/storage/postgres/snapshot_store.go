package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds a new snapshot. Returns ErrDuplicateKey if
// (symbol, bucket_second) exists.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.SecondSnapshot) error {
	if snap == nil || snap.Symbol == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO second_snapshots (
			symbol, bucket_second, composite, news_cached, technical_cached,
			open, high, low, close, volume, tick_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err := withRetry(ctx, func() error {
		row := s.pool.QueryRow(ctx, query,
			snap.Symbol,
			snap.BucketSecond,
			snap.Composite,
			snap.NewsCached,
			snap.TechnicalCached,
			snap.Open,
			snap.High,
			snap.Low,
			snap.Close,
			snap.Volume,
			snap.TickCount,
		)
		return row.Scan(&snap.ID)
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isTransientError(err) {
			return fmt.Errorf("insert snapshot: %w: %w", storage.ErrTransient, err)
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent snapshot for a symbol.
func (s *SnapshotStore) GetLatest(ctx context.Context, symbol string) (*domain.SecondSnapshot, error) {
	query := `
		SELECT id, symbol, bucket_second, composite, news_cached, technical_cached,
		       open, high, low, close, volume, tick_count
		FROM second_snapshots
		WHERE symbol = $1
		ORDER BY bucket_second DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, symbol)
	snap, err := scanSnapshot(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return snap, nil
}

// GetRecent retrieves the most recent snapshots for a symbol, newest first.
func (s *SnapshotStore) GetRecent(ctx context.Context, symbol string, limit int) ([]*domain.SecondSnapshot, error) {
	query := `
		SELECT id, symbol, bucket_second, composite, news_cached, technical_cached,
		       open, high, low, close, volume, tick_count
		FROM second_snapshots
		WHERE symbol = $1
		ORDER BY bucket_second DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// GetByTimeRange retrieves snapshots within [start, end] bucket-seconds (inclusive).
func (s *SnapshotStore) GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*domain.SecondSnapshot, error) {
	query := `
		SELECT id, symbol, bucket_second, composite, news_cached, technical_cached,
		       open, high, low, close, volume, tick_count
		FROM second_snapshots
		WHERE symbol = $1 AND bucket_second >= $2 AND bucket_second <= $3
		ORDER BY bucket_second ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("get snapshots by time range: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// scanSnapshot scans a single row into a SecondSnapshot.
func scanSnapshot(row pgx.Row) (*domain.SecondSnapshot, error) {
	var snap domain.SecondSnapshot

	err := row.Scan(
		&snap.ID,
		&snap.Symbol,
		&snap.BucketSecond,
		&snap.Composite,
		&snap.NewsCached,
		&snap.TechnicalCached,
		&snap.Open,
		&snap.High,
		&snap.Low,
		&snap.Close,
		&snap.Volume,
		&snap.TickCount,
	)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// scanSnapshots scans multiple rows into a slice of SecondSnapshot.
func scanSnapshots(rows pgx.Rows) ([]*domain.SecondSnapshot, error) {
	var snaps []*domain.SecondSnapshot

	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snaps = append(snaps, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snaps, nil
}
