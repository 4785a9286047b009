package memory

import (
	"context"
	"sort"
	"sync"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/storage"
)

type snapshotKey struct {
	symbol       string
	bucketSecond int64
}

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu     sync.RWMutex
	data   map[snapshotKey]*domain.SecondSnapshot
	nextID int64
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data:   make(map[snapshotKey]*domain.SecondSnapshot),
		nextID: 1,
	}
}

// Insert adds a new snapshot. Returns ErrDuplicateKey if (symbol, bucket_second) exists.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.SecondSnapshot) error {
	if snap == nil || snap.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := snapshotKey{symbol: snap.Symbol, bucketSecond: snap.BucketSecond}
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	snapCopy := *snap
	snapCopy.ID = s.nextID
	s.nextID++
	snap.ID = snapCopy.ID
	s.data[key] = &snapCopy
	return nil
}

// GetLatest retrieves the most recent snapshot for a symbol.
func (s *SnapshotStore) GetLatest(_ context.Context, symbol string) (*domain.SecondSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.SecondSnapshot
	for key, snap := range s.data {
		if key.symbol != symbol {
			continue
		}
		if latest == nil || snap.BucketSecond > latest.BucketSecond {
			latest = snap
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	snapCopy := *latest
	return &snapCopy, nil
}

// GetRecent retrieves the most recent snapshots for a symbol, newest first.
func (s *SnapshotStore) GetRecent(_ context.Context, symbol string, limit int) ([]*domain.SecondSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SecondSnapshot
	for key, snap := range s.data {
		if key.symbol != symbol {
			continue
		}
		snapCopy := *snap
		result = append(result, &snapCopy)
	}

	// Sort by bucket_second DESC
	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketSecond > result[j].BucketSecond
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetByTimeRange retrieves snapshots within [start, end] bucket-seconds (inclusive).
func (s *SnapshotStore) GetByTimeRange(_ context.Context, symbol string, start, end int64) ([]*domain.SecondSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SecondSnapshot
	for key, snap := range s.data {
		if key.symbol != symbol {
			continue
		}
		if snap.BucketSecond >= start && snap.BucketSecond <= end {
			snapCopy := *snap
			result = append(result, &snapCopy)
		}
	}

	// Sort by bucket_second ASC
	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketSecond < result[j].BucketSecond
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)
