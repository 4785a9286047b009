package memory

import (
	"context"
	"sort"
	"sync"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/storage"
)

type candleKey struct {
	symbol   string
	sequence int64
}

// TickCandleStore is an in-memory implementation of storage.TickCandleStore.
type TickCandleStore struct {
	mu   sync.RWMutex
	data map[candleKey]*domain.TickCandle100
}

// NewTickCandleStore creates a new in-memory tick candle store.
func NewTickCandleStore() *TickCandleStore {
	return &TickCandleStore{
		data: make(map[candleKey]*domain.TickCandle100),
	}
}

// Insert adds a new 100-tick candle. Returns ErrDuplicateKey if (symbol, sequence) exists.
func (s *TickCandleStore) Insert(_ context.Context, c *domain.TickCandle100) error {
	if c == nil || c.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := candleKey{symbol: c.Symbol, sequence: c.Sequence}
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	candleCopy := *c
	s.data[key] = &candleCopy
	return nil
}

// MaxSequence returns the highest stored sequence for a symbol, or 0 when none exists.
func (s *TickCandleStore) MaxSequence(_ context.Context, symbol string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max int64
	for key := range s.data {
		if key.symbol == symbol && key.sequence > max {
			max = key.sequence
		}
	}
	return max, nil
}

// GetByTimeRange retrieves candles whose first tick falls within [start, end] ms (inclusive).
func (s *TickCandleStore) GetByTimeRange(_ context.Context, symbol string, start, end int64) ([]*domain.TickCandle100, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TickCandle100
	for key, c := range s.data {
		if key.symbol != symbol {
			continue
		}
		if c.FirstTickMs >= start && c.FirstTickMs <= end {
			candleCopy := *c
			result = append(result, &candleCopy)
		}
	}

	// Sort by sequence ASC
	sort.Slice(result, func(i, j int) bool {
		return result[i].Sequence < result[j].Sequence
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.TickCandleStore = (*TickCandleStore)(nil)
