package scoring

import (
	"context"
	"errors"
	"log"
	"time"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/observability"
	"sentiment-engine/internal/pipeline"
)

const (
	// scoreGetTimeout bounds one queue poll so the worker observes shutdown.
	scoreGetTimeout = time.Second
	// maxBatch bounds how many queued articles are scored in one provider
	// call.
	maxBatch = 10
	// impactScale converts sentiment x weight into score points.
	impactScale = 100.0
)

// Worker is one source's scoring loop: dequeue articles, score them,
// push impacts, then hand the articles to the save queue.
type Worker struct {
	source  string
	in      *pipeline.ScoreQueue
	impacts *pipeline.ImpactQueue
	saves   *pipeline.SaveQueue
	scorer  SentimentScorer
	weights domain.Weights
	unmark  func(hash string)
	logger  *log.Logger
	now     func() time.Time
}

// WorkerOptions configures a scoring Worker.
type WorkerOptions struct {
	Source  string
	In      *pipeline.ScoreQueue
	Impacts *pipeline.ImpactQueue
	Saves   *pipeline.SaveQueue
	Scorer  SentimentScorer
	Weights domain.Weights
	// Unmark releases an article's dedup hold when its batch is dropped
	// with an undefined score, so the collector re-fetches it.
	Unmark func(hash string)
	Logger *log.Logger
	// Now overrides the time source for tests.
	Now func() time.Time
}

// NewWorker creates a scoring worker.
func NewWorker(opts WorkerOptions) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[score-"+opts.Source+"] ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Worker{
		source:  opts.Source,
		in:      opts.In,
		impacts: opts.Impacts,
		saves:   opts.Saves,
		scorer:  opts.Scorer,
		weights: opts.Weights,
		unmark:  opts.Unmark,
		logger:  logger,
		now:     now,
	}
}

// Run scores queued articles until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch := w.takeBatch()
		if len(batch) == 0 {
			continue
		}
		w.scoreBatch(ctx, batch)
	}
}

// takeBatch blocks briefly for the first article, then greedily drains up
// to maxBatch without waiting.
func (w *Worker) takeBatch() []*domain.Article {
	first := w.in.Get(scoreGetTimeout)
	if first == nil {
		return nil
	}
	batch := []*domain.Article{first}
	for len(batch) < maxBatch && w.in.Len() > 0 {
		next := w.in.Get(time.Millisecond)
		if next == nil {
			break
		}
		batch = append(batch, next)
	}
	return batch
}

// scoreBatch runs the provider over the batch and processes each result.
// An undefined batch drops every article and releases its dedup hold; the
// collector re-fetches them on a later poll.
func (w *Worker) scoreBatch(ctx context.Context, batch []*domain.Article) {
	texts := make([]string, len(batch))
	for i, a := range batch {
		texts[i] = scoreText(a)
	}

	sentiments, err := w.scorer.Score(ctx, texts)
	if err != nil {
		if errors.Is(err, ErrUndefined) {
			observability.RecordArticleScored("undefined")
			w.releaseBatch(batch)
			w.logger.Printf("WARNING: sentiment undefined for %d articles, dropping batch: %v",
				len(batch), err)
			return
		}
		observability.RecordArticleScored("error")
		w.releaseBatch(batch)
		w.logger.Printf("WARNING: scoring failed: %v", err)
		return
	}

	for i, article := range batch {
		w.applyScore(article, sentiments[i])
	}
}

// releaseBatch removes the dropped articles' dedup marks.
func (w *Worker) releaseBatch(batch []*domain.Article) {
	if w.unmark == nil {
		return
	}
	for _, a := range batch {
		w.unmark(a.Hash)
	}
}

// applyScore stamps the article, pushes its impact, then enqueues the save.
// The impact always precedes the save so a slow or failed save never
// suppresses the signal.
func (w *Worker) applyScore(article *domain.Article, sentiment float64) {
	weight := w.weights.For(article.Symbol)
	impact := domain.ClipImpact(sentiment * weight * impactScale)

	article.Sentiment = sentiment
	article.Impact = impact
	article.WeightedContribution = sentiment * weight * impactScale
	article.Analyzed = false

	w.impacts.Put(domain.ScoredImpact{
		Hash:       article.Hash,
		Source:     article.Source,
		Symbol:     article.Symbol,
		Impact:     impact,
		ScoredAtMs: w.now().UnixMilli(),
	})
	observability.RecordArticleScored("scored")

	job := pipeline.SaveJob{Article: article, Impact: impact, EnqueuedAt: w.now()}
	if !w.saves.TryPut(job) {
		observability.RecordQueueRejection("to_save")
		w.logger.Printf("SAVEQUEUE QUEUE_FULL: rejecting save for article %s (impact already applied)",
			article.Hash)
	}
}

// scoreText builds the provider input for one article.
func scoreText(a *domain.Article) string {
	if a.Summary == "" {
		return a.Headline
	}
	return a.Headline + ". " + a.Summary
}
