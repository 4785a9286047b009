// Package compose turns finalized 1-second candles into per-second
// sentiment snapshots.
package compose

import (
	"context"
	"log"
	"math"
	"time"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/pipeline"
	"sentiment-engine/internal/storage"
)

const (
	// momentumWindow is the lookback for micro-momentum, in candles.
	momentumWindow = 30
	// momentumScale amplifies the 30-second percent change.
	momentumScale = 15.0
	// recentCloseCap bounds the in-memory close history.
	recentCloseCap = 60
	// maxDecaySeconds caps the elapsed time applied in one decay step.
	maxDecaySeconds = 300
)

// SnapshotWriter persists one per-second snapshot.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, snap *domain.SecondSnapshot) error
}

// recentClose is one entry of the micro-momentum history.
type recentClose struct {
	bucketSecond int64
	close        float64
}

// Composer consumes the aggregator's candle channel and writes one
// SecondSnapshot per finalized second.
type Composer struct {
	symbol      string
	candles     <-chan domain.SecondCandle
	impacts     *pipeline.ImpactQueue
	writer      SnapshotWriter
	snapshots   storage.SnapshotStore
	minutes     storage.MinuteRowStore
	freshWindow time.Duration
	logger      *log.Logger
	now         func() time.Time

	recent []recentClose
}

// Options configures a Composer.
type Options struct {
	Symbol  string
	Candles <-chan domain.SecondCandle
	Impacts *pipeline.ImpactQueue
	Writer  SnapshotWriter
	// Snapshots is the read path for the base-selection and momentum seed.
	Snapshots storage.SnapshotStore
	Minutes   storage.MinuteRowStore
	// FreshWindow is the snapshot age below which cached scores are reused
	// as the base instead of the latest minute row.
	FreshWindow time.Duration
	Logger      *log.Logger
	// Now overrides the time source for tests.
	Now func() time.Time
}

// New creates a composer.
func New(opts Options) *Composer {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[composer] ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	freshWindow := opts.FreshWindow
	if freshWindow <= 0 {
		freshWindow = 70 * time.Second
	}

	return &Composer{
		symbol:      opts.Symbol,
		candles:     opts.Candles,
		impacts:     opts.Impacts,
		writer:      opts.Writer,
		snapshots:   opts.Snapshots,
		minutes:     opts.Minutes,
		freshWindow: freshWindow,
		logger:      logger,
		now:         now,
	}
}

// SeedMomentum preloads the close history from recent snapshots so
// micro-momentum survives a restart.
func (c *Composer) SeedMomentum(ctx context.Context) error {
	if c.snapshots == nil {
		return nil
	}
	snaps, err := c.snapshots.GetRecent(ctx, c.symbol, recentCloseCap)
	if err != nil {
		return err
	}
	// GetRecent returns newest first; the history is kept oldest first.
	for i := len(snaps) - 1; i >= 0; i-- {
		if snaps[i].Close > 0 {
			c.recent = append(c.recent, recentClose{snaps[i].BucketSecond, snaps[i].Close})
		}
	}
	return nil
}

// Run composes snapshots until the candle channel closes. The channel is
// closed by the aggregator on shutdown, after its in-flight seconds are
// flushed, so pending candles drain before Run returns.
func (c *Composer) Run(ctx context.Context) {
	for candle := range c.candles {
		c.composeSecond(ctx, candle)
	}
}

// composeSecond runs the per-second algorithm for one finalized candle.
func (c *Composer) composeSecond(ctx context.Context, candle domain.SecondCandle) {
	news, technical, reddit, analyst, elapsed := c.baseScores(ctx, candle.BucketSecond)

	// Decay the news base for every second since the reference point.
	news *= math.Pow(1-domain.DecayRatePerSecond, float64(elapsed))

	// Apply whatever impacts are ready; attribution to an exact second is
	// best-effort.
	if c.impacts != nil {
		for _, imp := range c.impacts.Drain() {
			news += imp.Impact
		}
	}
	news = domain.ClipScore(news)
	if math.Abs(news) < domain.NewsZeroEpsilon {
		news = 0
	}

	micro := c.microMomentum(candle.Close)
	technical = domain.TechnicalBlendBase*technical + (1-domain.TechnicalBlendBase)*micro

	composite := domain.Composite(news, reddit, technical, analyst)

	snap := &domain.SecondSnapshot{
		Symbol:          c.symbol,
		BucketSecond:    candle.BucketSecond,
		Composite:       composite,
		NewsCached:      news,
		TechnicalCached: technical,
		Open:            candle.Open,
		High:            candle.High,
		Low:             candle.Low,
		Close:           candle.Close,
		Volume:          candle.Volume,
		TickCount:       candle.TickCount,
	}

	if c.writer != nil {
		if err := c.writer.WriteSnapshot(ctx, snap); err != nil {
			c.logger.Printf("Snapshot write failed for second %d: %v", candle.BucketSecond, err)
		}
	}

	c.pushClose(candle.BucketSecond, candle.Close)
}

// baseScores picks the base components: the latest snapshot's cached scores
// when fresh, else the latest minute row. Reddit and analyst always come
// from the minute row. Returns the elapsed seconds for the decay step.
func (c *Composer) baseScores(ctx context.Context, bucket int64) (news, technical, reddit, analyst float64, elapsed int64) {
	var row *domain.MinuteRow
	if c.minutes != nil {
		if r, err := c.minutes.GetLatest(ctx); err == nil {
			row = r
		}
	}
	if row != nil {
		reddit = row.Reddit
		analyst = row.Analyst
	}

	if c.snapshots != nil {
		if snap, err := c.snapshots.GetLatest(ctx, c.symbol); err == nil {
			age := bucket - snap.BucketSecond
			if age >= 0 && time.Duration(age)*time.Second < c.freshWindow {
				return snap.NewsCached, snap.TechnicalCached, reddit, analyst, clampElapsed(age)
			}
		}
	}

	if row != nil {
		age := bucket - row.TimestampMs/1000
		return row.News, row.Technical, reddit, analyst, clampElapsed(age)
	}
	return 0, 0, 0, 0, 1
}

// clampElapsed bounds the decay step to a sane range.
func clampElapsed(age int64) int64 {
	if age < 1 {
		return 1
	}
	if age > maxDecaySeconds {
		return maxDecaySeconds
	}
	return age
}

// microMomentum derives the momentum component from the 30-candle-old close.
// Returns 0 until enough history exists.
func (c *Composer) microMomentum(closeNow float64) float64 {
	if len(c.recent) < momentumWindow || closeNow <= 0 {
		return 0
	}
	ref := c.recent[len(c.recent)-momentumWindow].close
	if ref <= 0 {
		return 0
	}
	pct := (closeNow - ref) / ref * 100
	return domain.ClipScore(pct * momentumScale)
}

// pushClose appends a close to the momentum history, bounded at the cap.
func (c *Composer) pushClose(bucket int64, close float64) {
	if close <= 0 {
		return
	}
	c.recent = append(c.recent, recentClose{bucket, close})
	if len(c.recent) > recentCloseCap {
		c.recent = c.recent[len(c.recent)-recentCloseCap:]
	}
}
