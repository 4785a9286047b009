package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/storage"
)

// ArticleStore is an in-memory implementation of storage.ArticleStore.
type ArticleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Article // keyed by hash
}

// NewArticleStore creates a new in-memory article store.
func NewArticleStore() *ArticleStore {
	return &ArticleStore{
		data: make(map[string]*domain.Article),
	}
}

// Upsert inserts or updates an article keyed on hash.
func (s *ArticleStore) Upsert(_ context.Context, a *domain.Article) (bool, error) {
	if a == nil || a.Hash == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[a.Hash]

	articleCopy := *a
	if exists {
		// created_at is set only on first insert
		articleCopy.CreatedAtMs = existing.CreatedAtMs
	} else if articleCopy.CreatedAtMs == 0 {
		articleCopy.CreatedAtMs = time.Now().UnixMilli()
	}
	s.data[a.Hash] = &articleCopy

	return !exists, nil
}

// GetByHash retrieves an article by its hash. Returns ErrNotFound if not exists.
func (s *ArticleStore) GetByHash(_ context.Context, hash string) (*domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[hash]
	if !exists {
		return nil, storage.ErrNotFound
	}

	articleCopy := *a
	return &articleCopy, nil
}

// GetUnanalyzed retrieves articles not yet consumed by the minute analyzer.
func (s *ArticleStore) GetUnanalyzed(_ context.Context, limit int) ([]*domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Article
	for _, a := range s.data {
		if !a.Analyzed {
			articleCopy := *a
			result = append(result, &articleCopy)
		}
	}

	// Sort by fetched_at ASC
	sort.Slice(result, func(i, j int) bool {
		return result[i].FetchedAtMs < result[j].FetchedAtMs
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkAnalyzed flags articles as consumed by the minute analyzer.
func (s *ArticleStore) MarkAnalyzed(_ context.Context, hashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range hashes {
		if a, exists := s.data[h]; exists {
			a.Analyzed = true
		}
	}
	return nil
}

// Verify interface compliance at compile time.
var _ storage.ArticleStore = (*ArticleStore)(nil)
