// Package pipeline provides the bounded queues connecting collectors,
// scorers, save workers and the composer. Each queue is its own concurrency
// boundary; enqueue never blocks and never applies backpressure upstream.
package pipeline

import (
	"sync"
	"time"

	"sentiment-engine/internal/domain"
)

// Default queue capacities.
const (
	DefaultScoreQueueCap  = 100
	DefaultSaveQueueCap   = 500
	DefaultImpactQueueCap = 500
)

// ScoreQueue carries unscored articles from a collector to its scoring
// worker. Bounded; TryPut rejects when full so the collector can drop the
// newest article and log.
type ScoreQueue struct {
	ch chan *domain.Article
}

// NewScoreQueue creates a score queue with the given capacity
// (DefaultScoreQueueCap when cap <= 0).
func NewScoreQueue(capacity int) *ScoreQueue {
	if capacity <= 0 {
		capacity = DefaultScoreQueueCap
	}
	return &ScoreQueue{ch: make(chan *domain.Article, capacity)}
}

// TryPut enqueues an article without blocking. Returns false when full.
func (q *ScoreQueue) TryPut(a *domain.Article) bool {
	select {
	case q.ch <- a:
		return true
	default:
		return false
	}
}

// Get dequeues one article, waiting at most timeout so workers can observe
// the shutdown flag. Returns nil when nothing arrived.
func (q *ScoreQueue) Get(timeout time.Duration) *domain.Article {
	select {
	case a := <-q.ch:
		return a
	case <-time.After(timeout):
		return nil
	}
}

// Len returns the current queue depth.
func (q *ScoreQueue) Len() int {
	return len(q.ch)
}

// SaveJob is one unit of durable-save work.
type SaveJob struct {
	Article    *domain.Article
	Impact     float64
	EnqueuedAt time.Time
}

// SaveQueue carries scored articles to a source's save worker. Bounded;
// TryPut rejects the newest job when full (QUEUE_FULL at the caller) since
// the impact has already been applied.
type SaveQueue struct {
	ch chan SaveJob
}

// NewSaveQueue creates a save queue with the given capacity
// (DefaultSaveQueueCap when cap <= 0).
func NewSaveQueue(capacity int) *SaveQueue {
	if capacity <= 0 {
		capacity = DefaultSaveQueueCap
	}
	return &SaveQueue{ch: make(chan SaveJob, capacity)}
}

// TryPut enqueues a save job without blocking. Returns false when full.
func (q *SaveQueue) TryPut(job SaveJob) bool {
	select {
	case q.ch <- job:
		return true
	default:
		return false
	}
}

// Get dequeues one job, waiting at most timeout. The second return is false
// when nothing arrived.
func (q *SaveQueue) Get(timeout time.Duration) (SaveJob, bool) {
	select {
	case job := <-q.ch:
		return job, true
	case <-time.After(timeout):
		return SaveJob{}, false
	}
}

// Len returns the current queue depth.
func (q *SaveQueue) Len() int {
	return len(q.ch)
}

// ImpactQueue is the global scored-impacts queue drained by the composer
// once per second. Bounded; when full the oldest impact is dropped (loss is
// visible as news-score drift, not a failure).
type ImpactQueue struct {
	mu       sync.Mutex
	items    []domain.ScoredImpact
	capacity int
	dropped  int64
}

// NewImpactQueue creates an impact queue with the given capacity
// (DefaultImpactQueueCap when cap <= 0).
func NewImpactQueue(capacity int) *ImpactQueue {
	if capacity <= 0 {
		capacity = DefaultImpactQueueCap
	}
	return &ImpactQueue{capacity: capacity}
}

// Put enqueues an impact, dropping the oldest entry when full.
func (q *ImpactQueue) Put(imp domain.ScoredImpact) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, imp)
}

// Drain removes and returns all queued impacts in arrival order.
// Non-blocking; returns nil when empty.
func (q *ImpactQueue) Drain() []domain.ScoredImpact {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len returns the current queue depth.
func (q *ImpactQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many impacts were discarded due to overflow.
func (q *ImpactQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
