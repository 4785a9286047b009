package news

import (
	"context"
	"errors"
	"log"
	"time"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/observability"
	"sentiment-engine/internal/pipeline"
)

// Per-unit minimum poll intervals.
const (
	CompanyUnitInterval = 40 * time.Second
	MarketUnitInterval  = 30 * time.Second
	RSSUnitInterval     = 60 * time.Second
)

// Company collector duty cycle: poll for 50 s, rest for 10 s.
const (
	CompanyWorkDuration = 50 * time.Second
	CompanyRestDuration = 10 * time.Second
)

// pollTick is the collector loop interval; also the shutdown-observation
// bound.
const pollTick = time.Second

// rateLimitBackoffFactor stretches a unit's interval after a 429.
const rateLimitBackoffFactor = 2

// Collector is one source's poll loop. It rotates through its units,
// filters by calendar day and dedup, and enqueues new articles for scoring.
type Collector struct {
	source      string
	units       []string
	minInterval time.Duration
	work        time.Duration
	rest        time.Duration
	fetcher     Fetcher
	dedup       *DedupCache
	out         *pipeline.ScoreQueue
	loc         *time.Location
	logger      *log.Logger
	now         func() time.Time

	lastPolled   map[string]time.Time
	backoffUntil map[string]time.Time
	nextUnit     int
}

// CollectorOptions configures a Collector.
type CollectorOptions struct {
	Source  string
	Units   []string
	Fetcher Fetcher
	Out     *pipeline.ScoreQueue
	// Dedup is the shared dedup cache; the scoring worker unmarks hashes
	// whose scoring came back undefined. Nil creates a private cache.
	Dedup *DedupCache
	// MinInterval is the per-unit minimum poll interval.
	MinInterval time.Duration
	// WorkDuration and RestDuration define an optional duty cycle; zero
	// disables it.
	WorkDuration time.Duration
	RestDuration time.Duration
	// Location is the instrument timezone for the calendar-day filter.
	Location *time.Location
	Logger   *log.Logger
	// Now overrides the time source for tests.
	Now func() time.Time
}

// NewCollector creates a collector.
func NewCollector(opts CollectorOptions) *Collector {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[news-"+opts.Source+"] ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	dedup := opts.Dedup
	if dedup == nil {
		dedup = NewDedupCache()
	}

	return &Collector{
		source:       opts.Source,
		units:        opts.Units,
		minInterval:  opts.MinInterval,
		work:         opts.WorkDuration,
		rest:         opts.RestDuration,
		fetcher:      opts.Fetcher,
		dedup:        dedup,
		out:          opts.Out,
		loc:          loc,
		logger:       logger,
		now:          now,
		lastPolled:   make(map[string]time.Time),
		backoffUntil: make(map[string]time.Time),
	}
}

// Run drives the poll loop until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	if len(c.units) == 0 {
		c.logger.Println("No units configured, collector idle")
		<-ctx.Done()
		return
	}

	started := c.now()
	ticker := time.NewTicker(pollTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.inRestWindow(started) {
				continue
			}
			if unit, ok := c.pickUnit(); ok {
				c.pollUnit(ctx, unit)
			}
		}
	}
}

// inRestWindow reports whether the duty cycle is in its rest phase.
func (c *Collector) inRestWindow(started time.Time) bool {
	if c.work <= 0 || c.rest <= 0 {
		return false
	}
	pos := c.now().Sub(started) % (c.work + c.rest)
	return pos >= c.work
}

// pickUnit rotates to the next unit whose minimum interval elapsed and
// whose rate-limit backoff, if any, expired.
func (c *Collector) pickUnit() (string, bool) {
	now := c.now()
	for i := 0; i < len(c.units); i++ {
		unit := c.units[(c.nextUnit+i)%len(c.units)]
		if now.Sub(c.lastPolled[unit]) < c.minInterval {
			continue
		}
		if until, ok := c.backoffUntil[unit]; ok && now.Before(until) {
			continue
		}
		c.nextUnit = (c.nextUnit + i + 1) % len(c.units)
		return unit, true
	}
	return "", false
}

// pollUnit fetches one unit and enqueues its new articles.
func (c *Collector) pollUnit(ctx context.Context, unit string) {
	now := c.now()
	c.lastPolled[unit] = now
	delete(c.backoffUntil, unit)

	articles, err := c.fetcher.Fetch(ctx, unit)
	if err != nil {
		observability.RecordFetchError(c.source)
		if errors.Is(err, ErrRateLimited) {
			until := now.Add(rateLimitBackoffFactor * c.minInterval)
			c.backoffUntil[unit] = until
			c.logger.Printf("WARNING: rate limited on %s, backing off until %s",
				unit, until.Format(time.TimeOnly))
			return
		}
		c.logger.Printf("WARNING: fetch %s failed: %v", unit, err)
		return
	}

	for _, article := range c.filter(articles) {
		article.FetchedAtMs = c.now().UnixMilli()
		if !c.out.TryPut(article) {
			observability.RecordQueueRejection("to_score")
			c.logger.Printf("WARNING: score queue full, dropping article %s", article.Hash)
			continue
		}
		c.dedup.Mark(article.Hash)
		observability.RecordArticleFetched(c.source)
	}
}

// filter drops articles not published today (instrument timezone) and
// hashes already seen within the dedup TTL.
func (c *Collector) filter(articles []*domain.Article) []*domain.Article {
	kept := articles[:0]
	for _, article := range articles {
		if !c.isToday(article.PublishedAtMs) {
			continue
		}
		if c.dedup.Seen(article.Hash) {
			observability.RecordArticleDeduped(c.source)
			continue
		}
		kept = append(kept, article)
	}
	return kept
}

// isToday reports whether the publish time falls on the current calendar
// day in the instrument timezone.
func (c *Collector) isToday(publishedMs int64) bool {
	if publishedMs <= 0 {
		return false
	}
	now := c.now().In(c.loc)
	published := time.UnixMilli(publishedMs).In(c.loc)
	ny, nm, nd := now.Date()
	py, pm, pd := published.Date()
	return ny == py && nm == pm && nd == pd
}
