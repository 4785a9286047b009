package news

import (
	"context"
	"log"
	"time"

	"sentiment-engine/internal/observability"
	"sentiment-engine/internal/pipeline"
	"sentiment-engine/internal/sanitize"
	"sentiment-engine/internal/storage"
)

const (
	// saveDeadline is the hard limit from enqueue to persisted; jobs past it
	// are dropped since their impact is already applied.
	saveDeadline = 60 * time.Second
	// saveGetTimeout bounds one queue poll so the worker observes shutdown.
	saveGetTimeout = time.Second
)

// saveRetries is the per-job attempt backoff schedule.
var saveRetries = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

// Saver is one source's durable save worker: a single goroutine pulling
// scored articles off the save queue and upserting them.
type Saver struct {
	source string
	queue  *pipeline.SaveQueue
	store  storage.ArticleStore
	logger *log.Logger
	now    func() time.Time

	succeeded int64
	failed    int64
	deadline  int64
}

// SaverOptions configures a Saver.
type SaverOptions struct {
	Source string
	Queue  *pipeline.SaveQueue
	Store  storage.ArticleStore
	Logger *log.Logger
	// Now overrides the time source for tests.
	Now func() time.Time
}

// NewSaver creates a save worker.
func NewSaver(opts SaverOptions) *Saver {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[save-"+opts.Source+"] ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Saver{
		source: opts.Source,
		queue:  opts.Queue,
		store:  opts.Store,
		logger: logger,
		now:    now,
	}
}

// Run pulls jobs until ctx is cancelled, then drains the queue within the
// per-job deadline budget and logs the final summary.
func (s *Saver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			s.logSummary()
			return
		default:
		}

		job, ok := s.queue.Get(saveGetTimeout)
		if !ok {
			continue
		}
		s.processJob(job)
	}
}

// drain empties the queue after shutdown started. Jobs past their deadline
// are dropped as usual.
func (s *Saver) drain() {
	for {
		job, ok := s.queue.Get(10 * time.Millisecond)
		if !ok {
			return
		}
		s.processJob(job)
	}
}

// processJob saves one article: deadline check, sanitize, upsert with
// bounded retries.
func (s *Saver) processJob(job pipeline.SaveJob) {
	age := s.now().Sub(job.EnqueuedAt)
	if age > saveDeadline {
		s.deadline++
		observability.RecordSave("deadline", 0)
		s.logger.Printf("SAVEQUEUE DEADLINE_EXCEEDED: article %s aged %s, dropping (impact already applied)",
			job.Article.Hash, age.Round(time.Second))
		return
	}

	s.sanitizeArticle(job)
	// Stamped on every save; the upsert keeps the first insert's created_at
	// on conflict.
	job.Article.CreatedAtMs = s.now().UnixMilli()

	// The store's Upsert may retry transient errors internally too; the
	// deadline check below bounds the combined attempts.
	var lastErr error
	for attempt := 0; attempt < len(saveRetries); attempt++ {
		remaining := saveDeadline - s.now().Sub(job.EnqueuedAt)
		if remaining <= 0 {
			s.deadline++
			observability.RecordSave("deadline", 0)
			s.logger.Printf("SAVEQUEUE DEADLINE_EXCEEDED: article %s during retries, dropping", job.Article.Hash)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), remaining)
		created, err := s.store.Upsert(ctx, job.Article)
		cancel()
		if err == nil {
			s.succeeded++
			latency := s.now().Sub(job.EnqueuedAt)
			observability.RecordSave("success", latency.Seconds())
			if created {
				s.logger.Printf("NEWSSAVING saved article %s (impact %.2f)", job.Article.Hash, job.Impact)
			}
			return
		}

		lastErr = err
		if !storage.IsTransient(err) || attempt == len(saveRetries)-1 {
			break
		}
		time.Sleep(saveRetries[attempt])
	}

	s.failed++
	observability.RecordSave("failed", 0)
	s.logger.Printf("NEWSSAVING SAVE_FAILED_ALL_ATTEMPTS: article %s: %v", job.Article.Hash, lastErr)
}

// sanitizeArticle cleans text, URL, numeric and time fields in place.
func (s *Saver) sanitizeArticle(job pipeline.SaveJob) {
	a := job.Article
	a.Headline = sanitize.Text(a.Headline, sanitize.MaxHeadlineLen)
	a.Summary = sanitize.Text(a.Summary, sanitize.MaxSummaryLen)
	a.URL = sanitize.URL(a.URL)
	a.Sentiment = sanitize.Float(a.Sentiment)
	a.Impact = sanitize.Float(a.Impact)
	a.WeightedContribution = sanitize.Float(a.WeightedContribution)
	a.PublishedAtMs = sanitize.PublishTimeMs(a.PublishedAtMs, s.now())
}

// Summary returns the save counters.
func (s *Saver) Summary() (succeeded, failed, deadline int64) {
	return s.succeeded, s.failed, s.deadline
}

// logSummary emits the end-of-session line for this worker.
func (s *Saver) logSummary() {
	s.logger.Printf("NEWSSAVING summary: SUCCESS %d | FAILED %d | DEADLINE %d",
		s.succeeded, s.failed, s.deadline)
}
