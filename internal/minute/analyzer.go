// Package minute implements the minute-cadence analyzer: it folds newly
// scored articles into a new base row and hands it to the persistence
// adapter.
package minute

import (
	"context"
	"log"
	"math"
	"time"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/storage"
)

const (
	// decayPerMinute is the minute-level news decay, applied only when the
	// per-second loop has not already decayed via snapshots.
	decayPerMinute = 0.0383
	// contributionClip bounds the per-minute new-article contribution.
	contributionClip = 25.0
	// articleBatchLimit bounds one analysis pass.
	articleBatchLimit = 200
)

// RowWriter persists one minute row (and the mirror snapshot when the
// per-second loop is active).
type RowWriter interface {
	WriteMinuteRow(ctx context.Context, row *domain.MinuteRow) error
}

// Analyzer computes one minute row per run.
type Analyzer struct {
	symbol      string
	articles    storage.ArticleStore
	minutes     storage.MinuteRowStore
	snapshots   storage.SnapshotStore
	writer      RowWriter
	freshWindow time.Duration
	logger      *log.Logger
	now         func() time.Time
}

// Options configures an Analyzer.
type Options struct {
	Symbol    string
	Articles  storage.ArticleStore
	Minutes   storage.MinuteRowStore
	Snapshots storage.SnapshotStore
	Writer    RowWriter
	// FreshWindow is the snapshot age below which the per-second loop is
	// considered active and the minute-level decay step is skipped.
	FreshWindow time.Duration
	Logger      *log.Logger
	// Now overrides the time source for tests.
	Now func() time.Time
}

// New creates a minute analyzer.
func New(opts Options) *Analyzer {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[analyzer] ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	freshWindow := opts.FreshWindow
	if freshWindow <= 0 {
		freshWindow = 70 * time.Second
	}

	return &Analyzer{
		symbol:      opts.Symbol,
		articles:    opts.Articles,
		minutes:     opts.Minutes,
		snapshots:   opts.Snapshots,
		writer:      opts.Writer,
		freshWindow: freshWindow,
		logger:      logger,
		now:         now,
	}
}

// RunOnce performs one analysis pass and returns the written row.
func (a *Analyzer) RunOnce(ctx context.Context) (*domain.MinuteRow, error) {
	now := a.now()

	pending, err := a.articles.GetUnanalyzed(ctx, articleBatchLimit)
	if err != nil {
		return nil, err
	}

	news, technical, reddit, analyst, fromSnapshot := a.baseScores(ctx)
	if !fromSnapshot {
		// The per-second loop is idle; apply the minute-level decay here.
		news *= 1 - decayPerMinute
	}

	contribution, newCount, cachedCount := a.newContribution(pending, now)
	news = domain.ClipScore(news + contribution)
	if math.Abs(news) < domain.NewsZeroEpsilon {
		news = 0
	}

	composite := domain.Composite(news, reddit, technical, analyst)

	price, priceChangePct := a.priceFields(ctx)

	row := &domain.MinuteRow{
		TimestampMs:    now.UnixMilli(),
		Composite:      composite,
		News:           news,
		Reddit:         reddit,
		Technical:      technical,
		Analyst:        analyst,
		Label:          domain.LabelFor(composite),
		ArticleCount:   newCount + cachedCount,
		CachedCount:    cachedCount,
		NewCount:       newCount,
		Price:          price,
		PriceChangePct: priceChangePct,
	}

	if err := a.writer.WriteMinuteRow(ctx, row); err != nil {
		return nil, err
	}

	if len(pending) > 0 {
		hashes := make([]string, len(pending))
		for i, article := range pending {
			hashes[i] = article.Hash
		}
		if err := a.articles.MarkAnalyzed(ctx, hashes); err != nil {
			a.logger.Printf("WARNING: mark analyzed failed for %d articles: %v", len(hashes), err)
		}
	}

	a.logger.Printf("Minute row written: composite=%.2f news=%.2f label=%s articles=%d (new=%d cached=%d)",
		composite, news, row.Label, row.ArticleCount, newCount, cachedCount)
	return row, nil
}

// RunInterval runs an analysis pass every interval until ctx is cancelled.
func (a *Analyzer) RunInterval(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.RunOnce(ctx); err != nil {
				a.logger.Printf("WARNING: analysis pass failed: %v", err)
			}
		}
	}
}

// baseScores picks the base: a fresh snapshot's cached news/technical
// (already decayed by the per-second loop), else the previous minute row.
// Reddit and analyst always carry over from the previous row.
func (a *Analyzer) baseScores(ctx context.Context) (news, technical, reddit, analyst float64, fromSnapshot bool) {
	if prev, err := a.minutes.GetLatest(ctx); err == nil {
		news = prev.News
		technical = prev.Technical
		reddit = prev.Reddit
		analyst = prev.Analyst
	}

	if a.snapshots == nil {
		return news, technical, reddit, analyst, false
	}
	snap, err := a.snapshots.GetLatest(ctx, a.symbol)
	if err != nil {
		return news, technical, reddit, analyst, false
	}
	age := a.now().Unix() - snap.BucketSecond
	if age >= 0 && time.Duration(age)*time.Second < a.freshWindow {
		return snap.NewsCached, snap.TechnicalCached, reddit, analyst, true
	}
	return news, technical, reddit, analyst, false
}

// newContribution averages the weighted contributions of this minute's
// pending articles, clipped to the per-minute bound. Articles scored in an
// earlier minute but not yet analyzed count as cached.
func (a *Analyzer) newContribution(pending []*domain.Article, now time.Time) (contribution float64, newCount, cachedCount int) {
	if len(pending) == 0 {
		return 0, 0, 0
	}

	cutoff := now.Add(-time.Minute).UnixMilli()
	var sum float64
	for _, article := range pending {
		sum += article.WeightedContribution
		if article.FetchedAtMs >= cutoff {
			newCount++
		} else {
			cachedCount++
		}
	}
	mean := sum / float64(len(pending))
	return domain.Clip(mean, -contributionClip, contributionClip), newCount, cachedCount
}

// priceFields derives the current price from the latest snapshot and the
// change against the previous minute row.
func (a *Analyzer) priceFields(ctx context.Context) (price, changePct float64) {
	if a.snapshots != nil {
		if snap, err := a.snapshots.GetLatest(ctx, a.symbol); err == nil {
			price = snap.Close
		}
	}
	if price <= 0 {
		return 0, 0
	}
	if prev, err := a.minutes.GetLatest(ctx); err == nil && prev.Price > 0 {
		changePct = (price - prev.Price) / prev.Price * 100
	}
	return price, changePct
}
