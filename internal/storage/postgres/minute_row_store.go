package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/storage"
)

// MinuteRowStore implements storage.MinuteRowStore using PostgreSQL.
type MinuteRowStore struct {
	pool *Pool
}

// NewMinuteRowStore creates a new MinuteRowStore.
func NewMinuteRowStore(pool *Pool) *MinuteRowStore {
	return &MinuteRowStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MinuteRowStore = (*MinuteRowStore)(nil)

// Insert adds a new minute row and fills in its generated ID.
func (s *MinuteRowStore) Insert(ctx context.Context, r *domain.MinuteRow) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO minute_rows (
			timestamp_ms, composite, news, reddit, technical, analyst, label,
			article_count, cached_count, new_count, price, price_change_pct, rsi, vix
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	err := withRetry(ctx, func() error {
		row := s.pool.QueryRow(ctx, query,
			r.TimestampMs,
			r.Composite,
			r.News,
			r.Reddit,
			r.Technical,
			r.Analyst,
			r.Label,
			r.ArticleCount,
			r.CachedCount,
			r.NewCount,
			r.Price,
			r.PriceChangePct,
			r.RSI,
			r.VIX,
		)
		return row.Scan(&r.ID)
	})
	if err != nil {
		return fmt.Errorf("insert minute row: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent minute row.
func (s *MinuteRowStore) GetLatest(ctx context.Context) (*domain.MinuteRow, error) {
	query := `
		SELECT id, timestamp_ms, composite, news, reddit, technical, analyst, label,
		       article_count, cached_count, new_count, price, price_change_pct, rsi, vix
		FROM minute_rows
		ORDER BY timestamp_ms DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query)
	r, err := scanMinuteRow(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest minute row: %w", err)
	}
	return r, nil
}

// GetByTimeRange retrieves rows within [start, end] ms (inclusive).
func (s *MinuteRowStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.MinuteRow, error) {
	query := `
		SELECT id, timestamp_ms, composite, news, reddit, technical, analyst, label,
		       article_count, cached_count, new_count, price, price_change_pct, rsi, vix
		FROM minute_rows
		WHERE timestamp_ms >= $1 AND timestamp_ms <= $2
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get minute rows by time range: %w", err)
	}
	defer rows.Close()

	var result []*domain.MinuteRow
	for rows.Next() {
		r, err := scanMinuteRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan minute row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate minute rows: %w", err)
	}
	return result, nil
}

// scanMinuteRow scans a single row into a MinuteRow.
func scanMinuteRow(row pgx.Row) (*domain.MinuteRow, error) {
	var r domain.MinuteRow

	err := row.Scan(
		&r.ID,
		&r.TimestampMs,
		&r.Composite,
		&r.News,
		&r.Reddit,
		&r.Technical,
		&r.Analyst,
		&r.Label,
		&r.ArticleCount,
		&r.CachedCount,
		&r.NewCount,
		&r.Price,
		&r.PriceChangePct,
		&r.RSI,
		&r.VIX,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
