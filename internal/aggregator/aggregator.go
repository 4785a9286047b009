// Package aggregator folds the live tick stream into 1-second candles and
// 100-tick candles.
package aggregator

import (
	"context"
	"log"
	"sync"
	"time"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/observability"
	"sentiment-engine/internal/storage"
)

const (
	// loopInterval is the second-aggregation poll interval.
	loopInterval = 100 * time.Millisecond
	// pruneEvery prunes the processed-seconds set every N loop iterations.
	pruneEvery = 60
	// processedRetention keeps processed seconds for this long.
	processedRetention = 5 * time.Minute
	// ticksPerCandle is the volume-dimension candle size.
	ticksPerCandle = 100
	// candleQueueSize is the short queue between aggregator and composer.
	candleQueueSize = 16
	// persistTimeout bounds a single 100-tick candle insert.
	persistTimeout = 2 * time.Second
)

// Aggregator owns the in-flight tick buffer and the processed-seconds set.
// HandleTick is called synchronously from the stream read loop; Run drives
// the second-aggregation loop.
type Aggregator struct {
	symbol      string
	candleStore storage.TickCandleStore
	logger      *log.Logger
	verbose     bool
	now         func() time.Time

	mu        sync.Mutex
	perSecond map[int64][]domain.Tick
	processed map[int64]time.Time
	tickBuf   []domain.Tick
	sequence  int64

	totalTicks int64
	lateTicks  int64

	candles chan domain.SecondCandle
}

// Options configures an Aggregator.
type Options struct {
	Symbol      string
	CandleStore storage.TickCandleStore
	Logger      *log.Logger
	Verbose     bool
	// Now overrides the time source for tests.
	Now func() time.Time
}

// New creates an aggregator.
func New(opts Options) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[aggregator] ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Aggregator{
		symbol:      opts.Symbol,
		candleStore: opts.CandleStore,
		logger:      logger,
		verbose:     opts.Verbose,
		now:         now,
		perSecond:   make(map[int64][]domain.Tick),
		processed:   make(map[int64]time.Time),
		candles:     make(chan domain.SecondCandle, candleQueueSize),
	}
}

// Candles returns the channel of finalized 1-second candles. Closed when
// Run exits.
func (a *Aggregator) Candles() <-chan domain.SecondCandle {
	return a.candles
}

// InitSequence resumes the 100-tick candle sequence from the store's
// highest persisted value, so restarts keep sequences strictly increasing.
func (a *Aggregator) InitSequence(ctx context.Context) error {
	if a.candleStore == nil {
		return nil
	}
	max, err := a.candleStore.MaxSequence(ctx, a.symbol)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.sequence = max
	a.mu.Unlock()

	if max > 0 {
		a.logger.Printf("Resuming 100-tick sequence from %d", max)
	}
	return nil
}

// Stats returns total and late tick counts.
func (a *Aggregator) Stats() (total, late int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalTicks, a.lateTicks
}

// HandleTick folds one tick into both candle dimensions. A tick for an
// already-processed second is late: ignored for the 1-second dimension,
// still counted in the 100-tick dimension.
func (a *Aggregator) HandleTick(tick domain.Tick) {
	var full []domain.Tick

	a.mu.Lock()
	a.totalTicks++

	bucket := tick.BucketSecond()
	if _, done := a.processed[bucket]; done {
		a.lateTicks++
		observability.RecordLateTick()
		if a.verbose {
			a.logger.Printf("LATE TICK for processed second %d (price=%.4f)", bucket, tick.Price)
		}
	} else {
		a.perSecond[bucket] = append(a.perSecond[bucket], tick)
	}

	a.tickBuf = append(a.tickBuf, tick)
	if len(a.tickBuf) >= ticksPerCandle {
		full = a.tickBuf[:ticksPerCandle]
		a.tickBuf = append([]domain.Tick(nil), a.tickBuf[ticksPerCandle:]...)
		a.sequence++
	}
	seq := a.sequence
	a.mu.Unlock()

	observability.RecordTick()

	if full != nil {
		a.emitTickCandle(full, seq)
	}
}

// emitTickCandle builds and persists a 100-tick candle.
func (a *Aggregator) emitTickCandle(ticks []domain.Tick, seq int64) {
	open, high, low, close, volume := domain.BuildCandleFromTicks(ticks)
	first := ticks[0].TimestampMs
	last := ticks[len(ticks)-1].TimestampMs

	candle := &domain.TickCandle100{
		Symbol:          a.symbol,
		Sequence:        seq,
		FirstTickMs:     first,
		LastTickMs:      last,
		DurationSeconds: float64(last-first) / 1000.0,
		Open:            open,
		High:            high,
		Low:             low,
		Close:           close,
		Volume:          volume,
		TickCount:       len(ticks),
		CreatedAtMs:     a.now().UnixMilli(),
	}

	observability.RecordTickCandle()

	if a.candleStore == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := a.candleStore.Insert(ctx, candle); err != nil {
		a.logger.Printf("Failed to persist 100-tick candle seq=%d: %v", seq, err)
	}
}

// Run drives the second-aggregation loop until ctx is cancelled, then
// finalizes in-flight seconds and closes the candle channel.
func (a *Aggregator) Run(ctx context.Context) {
	defer close(a.candles)

	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	iteration := 0
	for {
		select {
		case <-ctx.Done():
			a.flushAll()
			return
		case <-ticker.C:
			a.finalizeElapsed(ctx)
			iteration++
			if iteration%pruneEvery == 0 {
				a.pruneProcessed()
			}
		}
	}
}

// finalizeElapsed finalizes every bucket-second strictly before the current
// wall-clock second that has at least one tick.
func (a *Aggregator) finalizeElapsed(ctx context.Context) {
	currentSecond := a.now().Unix()

	a.mu.Lock()
	var ready []int64
	for bucket := range a.perSecond {
		if bucket < currentSecond && len(a.perSecond[bucket]) > 0 {
			ready = append(ready, bucket)
		}
	}
	// Oldest first; a backlog must reach the composer in bucket order.
	for i := 0; i < len(ready); i++ {
		for j := i + 1; j < len(ready); j++ {
			if ready[j] < ready[i] {
				ready[i], ready[j] = ready[j], ready[i]
			}
		}
	}

	candles := make([]domain.SecondCandle, 0, len(ready))
	for _, bucket := range ready {
		candles = append(candles, a.buildSecondCandleLocked(bucket))
	}
	a.mu.Unlock()

	for _, c := range candles {
		select {
		case a.candles <- c:
			observability.RecordSecondCandle()
		case <-ctx.Done():
			return
		}
	}
}

// buildSecondCandleLocked finalizes one bucket and marks it processed.
// Caller holds the mutex.
func (a *Aggregator) buildSecondCandleLocked(bucket int64) domain.SecondCandle {
	ticks := a.perSecond[bucket]
	open, high, low, close, volume := domain.BuildCandleFromTicks(ticks)

	delete(a.perSecond, bucket)
	a.processed[bucket] = a.now()

	return domain.SecondCandle{
		Symbol:       a.symbol,
		BucketSecond: bucket,
		Open:         open,
		High:         high,
		Low:          low,
		Close:        close,
		Volume:       volume,
		TickCount:    len(ticks),
	}
}

// flushAll finalizes every remaining bucket on shutdown, newest last.
func (a *Aggregator) flushAll() {
	a.mu.Lock()
	var buckets []int64
	for bucket := range a.perSecond {
		if len(a.perSecond[bucket]) > 0 {
			buckets = append(buckets, bucket)
		}
	}
	// Oldest first
	for i := 0; i < len(buckets); i++ {
		for j := i + 1; j < len(buckets); j++ {
			if buckets[j] < buckets[i] {
				buckets[i], buckets[j] = buckets[j], buckets[i]
			}
		}
	}
	candles := make([]domain.SecondCandle, 0, len(buckets))
	for _, bucket := range buckets {
		candles = append(candles, a.buildSecondCandleLocked(bucket))
	}
	a.mu.Unlock()

	for _, c := range candles {
		select {
		case a.candles <- c:
		default:
			a.logger.Printf("Candle queue full at shutdown, dropping second %d", c.BucketSecond)
		}
	}
}

// pruneProcessed drops processed-second entries older than the retention
// window.
func (a *Aggregator) pruneProcessed() {
	cutoff := a.now().Add(-processedRetention)

	a.mu.Lock()
	defer a.mu.Unlock()
	for bucket, at := range a.processed {
		if at.Before(cutoff) {
			delete(a.processed, bucket)
		}
	}
}
