package memory

import (
	"context"
	"sync"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/storage"
)

// MinuteRowStore is an in-memory implementation of storage.MinuteRowStore.
type MinuteRowStore struct {
	mu     sync.RWMutex
	rows   []*domain.MinuteRow // append order = timestamp order
	nextID int64
}

// NewMinuteRowStore creates a new in-memory minute row store.
func NewMinuteRowStore() *MinuteRowStore {
	return &MinuteRowStore{nextID: 1}
}

// Insert adds a new minute row.
func (s *MinuteRowStore) Insert(_ context.Context, r *domain.MinuteRow) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rowCopy := *r
	rowCopy.ID = s.nextID
	s.nextID++
	r.ID = rowCopy.ID
	s.rows = append(s.rows, &rowCopy)
	return nil
}

// GetLatest retrieves the most recent minute row.
func (s *MinuteRowStore) GetLatest(_ context.Context) (*domain.MinuteRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rows) == 0 {
		return nil, storage.ErrNotFound
	}

	latest := s.rows[0]
	for _, r := range s.rows[1:] {
		if r.TimestampMs >= latest.TimestampMs {
			latest = r
		}
	}

	rowCopy := *latest
	return &rowCopy, nil
}

// GetByTimeRange retrieves rows within [start, end] ms (inclusive).
func (s *MinuteRowStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.MinuteRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MinuteRow
	for _, r := range s.rows {
		if r.TimestampMs >= start && r.TimestampMs <= end {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.MinuteRowStore = (*MinuteRowStore)(nil)
