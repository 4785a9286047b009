package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/storage"
)

// ArticleStore implements storage.ArticleStore using PostgreSQL.
type ArticleStore struct {
	pool *Pool
}

// NewArticleStore creates a new ArticleStore.
func NewArticleStore(pool *Pool) *ArticleStore {
	return &ArticleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ArticleStore = (*ArticleStore)(nil)

// Upsert inserts or updates an article keyed on hash. created_at is set
// only on first insert. Retries transient errors with backoff; a concurrent
// insert of the same hash resolves through the ON CONFLICT clause.
func (s *ArticleStore) Upsert(ctx context.Context, a *domain.Article) (bool, error) {
	if a == nil || a.Hash == "" {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO articles (
			hash, source, symbol, headline, summary, url,
			published_at, fetched_at, sentiment, impact, weighted_contribution,
			analyzed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (hash) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			headline = EXCLUDED.headline,
			summary = EXCLUDED.summary,
			url = EXCLUDED.url,
			published_at = EXCLUDED.published_at,
			fetched_at = EXCLUDED.fetched_at,
			sentiment = EXCLUDED.sentiment,
			impact = EXCLUDED.impact,
			weighted_contribution = EXCLUDED.weighted_contribution,
			analyzed = EXCLUDED.analyzed
		RETURNING (xmax = 0)
	`

	var created bool
	err := withRetry(ctx, func() error {
		row := s.pool.QueryRow(ctx, query,
			a.Hash,
			a.Source,
			a.Symbol,
			a.Headline,
			a.Summary,
			a.URL,
			a.PublishedAtMs,
			a.FetchedAtMs,
			a.Sentiment,
			a.Impact,
			a.WeightedContribution,
			a.Analyzed,
			a.CreatedAtMs,
		)
		return row.Scan(&created)
	})
	if err != nil {
		if isTransientError(err) {
			return false, fmt.Errorf("upsert article: %w: %w", storage.ErrTransient, err)
		}
		return false, fmt.Errorf("upsert article: %w", err)
	}
	return created, nil
}

// GetByHash retrieves an article by its hash. Returns ErrNotFound if not exists.
func (s *ArticleStore) GetByHash(ctx context.Context, hash string) (*domain.Article, error) {
	query := `
		SELECT hash, source, symbol, headline, summary, url,
		       published_at, fetched_at, sentiment, impact, weighted_contribution,
		       analyzed, created_at
		FROM articles
		WHERE hash = $1
	`

	row := s.pool.QueryRow(ctx, query, hash)
	a, err := scanArticle(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get article by hash: %w", err)
	}
	return a, nil
}

// GetUnanalyzed retrieves articles not yet consumed by the minute analyzer,
// ordered by fetched_at ASC.
func (s *ArticleStore) GetUnanalyzed(ctx context.Context, limit int) ([]*domain.Article, error) {
	query := `
		SELECT hash, source, symbol, headline, summary, url,
		       published_at, fetched_at, sentiment, impact, weighted_contribution,
		       analyzed, created_at
		FROM articles
		WHERE analyzed = FALSE
		ORDER BY fetched_at ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get unanalyzed articles: %w", err)
	}
	defer rows.Close()

	return scanArticles(rows)
}

// MarkAnalyzed flags articles as consumed by the minute analyzer.
func (s *ArticleStore) MarkAnalyzed(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}

	query := `UPDATE articles SET analyzed = TRUE WHERE hash = ANY($1)`

	if _, err := s.pool.Exec(ctx, query, hashes); err != nil {
		return fmt.Errorf("mark articles analyzed: %w", err)
	}
	return nil
}

// scanArticle scans a single row into an Article.
func scanArticle(row pgx.Row) (*domain.Article, error) {
	var a domain.Article

	err := row.Scan(
		&a.Hash,
		&a.Source,
		&a.Symbol,
		&a.Headline,
		&a.Summary,
		&a.URL,
		&a.PublishedAtMs,
		&a.FetchedAtMs,
		&a.Sentiment,
		&a.Impact,
		&a.WeightedContribution,
		&a.Analyzed,
		&a.CreatedAtMs,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// scanArticles scans multiple rows into a slice of Article.
func scanArticles(rows pgx.Rows) ([]*domain.Article, error) {
	var articles []*domain.Article

	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article row: %w", err)
		}
		articles = append(articles, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article rows: %w", err)
	}

	return articles, nil
}
