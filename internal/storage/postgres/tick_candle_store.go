package postgres

import (
	"context"
	"fmt"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/storage"
)

// TickCandleStore implements storage.TickCandleStore using PostgreSQL.
type TickCandleStore struct {
	pool *Pool
}

// NewTickCandleStore creates a new TickCandleStore.
func NewTickCandleStore(pool *Pool) *TickCandleStore {
	return &TickCandleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TickCandleStore = (*TickCandleStore)(nil)

// Insert adds a new 100-tick candle. Returns ErrDuplicateKey if
// (symbol, sequence) exists.
func (s *TickCandleStore) Insert(ctx context.Context, c *domain.TickCandle100) error {
	if c == nil || c.Symbol == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tick_candles_100 (
			symbol, sequence, first_tick_ms, last_tick_ms, duration_seconds,
			open, high, low, close, volume, tick_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	err := withRetry(ctx, func() error {
		_, err := s.pool.Exec(ctx, query,
			c.Symbol,
			c.Sequence,
			c.FirstTickMs,
			c.LastTickMs,
			c.DurationSeconds,
			c.Open,
			c.High,
			c.Low,
			c.Close,
			c.Volume,
			c.TickCount,
			c.CreatedAtMs,
		)
		return err
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert tick candle: %w", err)
	}
	return nil
}

// MaxSequence returns the highest stored sequence for a symbol, or 0 when
// none exists.
func (s *TickCandleStore) MaxSequence(ctx context.Context, symbol string) (int64, error) {
	query := `SELECT COALESCE(MAX(sequence), 0) FROM tick_candles_100 WHERE symbol = $1`

	var max int64
	if err := s.pool.QueryRow(ctx, query, symbol).Scan(&max); err != nil {
		return 0, fmt.Errorf("get max tick candle sequence: %w", err)
	}
	return max, nil
}

// GetByTimeRange retrieves candles whose first tick falls within
// [start, end] ms (inclusive), ordered by sequence ASC.
func (s *TickCandleStore) GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*domain.TickCandle100, error) {
	query := `
		SELECT symbol, sequence, first_tick_ms, last_tick_ms, duration_seconds,
		       open, high, low, close, volume, tick_count, created_at
		FROM tick_candles_100
		WHERE symbol = $1 AND first_tick_ms >= $2 AND first_tick_ms <= $3
		ORDER BY sequence ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("get tick candles by time range: %w", err)
	}
	defer rows.Close()

	var candles []*domain.TickCandle100
	for rows.Next() {
		var c domain.TickCandle100
		err := rows.Scan(
			&c.Symbol,
			&c.Sequence,
			&c.FirstTickMs,
			&c.LastTickMs,
			&c.DurationSeconds,
			&c.Open,
			&c.High,
			&c.Low,
			&c.Close,
			&c.Volume,
			&c.TickCount,
			&c.CreatedAtMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tick candle row: %w", err)
		}
		candles = append(candles, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tick candle rows: %w", err)
	}
	return candles, nil
}
