// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Stream metrics
	TicksProcessed    prometheus.Counter
	StreamReconnects  *prometheus.CounterVec
	StreamLastTick    prometheus.Gauge

	// Aggregation metrics
	SecondCandlesBuilt prometheus.Counter
	TickCandlesBuilt   prometheus.Counter
	LateTicks          prometheus.Counter

	// News metrics
	ArticlesFetched *prometheus.CounterVec
	ArticlesDeduped *prometheus.CounterVec
	ArticlesScored  *prometheus.CounterVec
	FetchErrors     *prometheus.CounterVec

	// Queue metrics
	ScoreQueueDepth  prometheus.Gauge
	SaveQueueDepth   prometheus.Gauge
	ImpactQueueDepth prometheus.Gauge
	QueueRejections  *prometheus.CounterVec

	// Save metrics
	SavesTotal       *prometheus.CounterVec
	SaveLatency      prometheus.Histogram
	DeadlineExceeded prometheus.Counter

	// Sentiment metrics
	SnapshotsWritten  prometheus.Counter
	MinuteRowsWritten prometheus.Counter
	CompositeScore    prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulSnapshot prometheus.Gauge
	MarketOpen             prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sentiment_engine"
	}

	return &Metrics{
		// Stream metrics
		TicksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "ticks_processed_total",
			Help:      "Total number of ticks processed",
		}),
		StreamReconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of stream reconnects by lane",
		}, []string{"lane"}),
		StreamLastTick: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "last_tick_timestamp",
			Help:      "Unix timestamp of the last tick received",
		}),

		// Aggregation metrics
		SecondCandlesBuilt: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "second_candles_built_total",
			Help:      "Total number of 1-second candles finalized",
		}),
		TickCandlesBuilt: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "tick_candles_built_total",
			Help:      "Total number of 100-tick candles built",
		}),
		LateTicks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "late_ticks_total",
			Help:      "Total number of ticks arriving for already-processed seconds",
		}),

		// News metrics
		ArticlesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "news",
			Name:      "articles_fetched_total",
			Help:      "Total number of articles fetched by source",
		}, []string{"source"}),
		ArticlesDeduped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "news",
			Name:      "articles_deduped_total",
			Help:      "Total number of articles dropped as duplicates by source",
		}, []string{"source"}),
		ArticlesScored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "news",
			Name:      "articles_scored_total",
			Help:      "Total number of articles scored by outcome",
		}, []string{"outcome"}),
		FetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "news",
			Name:      "fetch_errors_total",
			Help:      "Total number of fetch errors by source",
		}, []string{"source"}),

		// Queue metrics
		ScoreQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queues",
			Name:      "score_queue_depth",
			Help:      "Current number of articles waiting to be scored",
		}),
		SaveQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queues",
			Name:      "save_queue_depth",
			Help:      "Current number of articles waiting to be saved",
		}),
		ImpactQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queues",
			Name:      "impact_queue_depth",
			Help:      "Current number of scored impacts waiting to be drained",
		}),
		QueueRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queues",
			Name:      "rejections_total",
			Help:      "Total number of queue rejections by queue",
		}, []string{"queue"}),

		// Save metrics
		SavesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saving",
			Name:      "saves_total",
			Help:      "Total number of article save attempts by result",
		}, []string{"result"}),
		SaveLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "saving",
			Name:      "save_latency_seconds",
			Help:      "Time from enqueue to successful save in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60},
		}),
		DeadlineExceeded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saving",
			Name:      "deadline_exceeded_total",
			Help:      "Total number of articles dropped past the save deadline",
		}),

		// Sentiment metrics
		SnapshotsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sentiment",
			Name:      "snapshots_written_total",
			Help:      "Total number of per-second snapshots written",
		}),
		MinuteRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sentiment",
			Name:      "minute_rows_written_total",
			Help:      "Total number of minute rows written",
		}),
		CompositeScore: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sentiment",
			Name:      "composite_score",
			Help:      "Most recent composite sentiment score",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulSnapshot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_snapshot_timestamp",
			Help:      "Unix timestamp of last successful snapshot write",
		}),
		MarketOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "market_open",
			Help:      "1 when the market-hours gate considers the market open",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTick increments the ticks processed counter.
func RecordTick() {
	DefaultMetrics.TicksProcessed.Inc()
	DefaultMetrics.StreamLastTick.SetToCurrentTime()
}

// RecordReconnect records a stream reconnect on the given lane.
func RecordReconnect(lane string) {
	DefaultMetrics.StreamReconnects.WithLabelValues(lane).Inc()
}

// RecordSecondCandle increments the 1-second candle counter.
func RecordSecondCandle() {
	DefaultMetrics.SecondCandlesBuilt.Inc()
}

// RecordTickCandle increments the 100-tick candle counter.
func RecordTickCandle() {
	DefaultMetrics.TickCandlesBuilt.Inc()
}

// RecordLateTick increments the late tick counter.
func RecordLateTick() {
	DefaultMetrics.LateTicks.Inc()
}

// RecordArticleFetched increments the fetched counter for a source.
func RecordArticleFetched(source string) {
	DefaultMetrics.ArticlesFetched.WithLabelValues(source).Inc()
}

// RecordArticleDeduped increments the dedup counter for a source.
func RecordArticleDeduped(source string) {
	DefaultMetrics.ArticlesDeduped.WithLabelValues(source).Inc()
}

// RecordArticleScored records a scoring outcome ("scored", "cached",
// "undefined" or "error").
func RecordArticleScored(outcome string) {
	DefaultMetrics.ArticlesScored.WithLabelValues(outcome).Inc()
}

// RecordFetchError increments the fetch error counter for a source.
func RecordFetchError(source string) {
	DefaultMetrics.FetchErrors.WithLabelValues(source).Inc()
}

// UpdateQueueDepths updates the queue depth gauges.
func UpdateQueueDepths(score, save, impact int) {
	DefaultMetrics.ScoreQueueDepth.Set(float64(score))
	DefaultMetrics.SaveQueueDepth.Set(float64(save))
	DefaultMetrics.ImpactQueueDepth.Set(float64(impact))
}

// RecordQueueRejection increments the rejection counter for a queue.
func RecordQueueRejection(queue string) {
	DefaultMetrics.QueueRejections.WithLabelValues(queue).Inc()
}

// RecordSave records an article save result ("success", "failed" or
// "deadline").
func RecordSave(result string, latencySeconds float64) {
	DefaultMetrics.SavesTotal.WithLabelValues(result).Inc()
	if result == "success" {
		DefaultMetrics.SaveLatency.Observe(latencySeconds)
	}
	if result == "deadline" {
		DefaultMetrics.DeadlineExceeded.Inc()
	}
}

// RecordSnapshotWritten records a successful per-second snapshot write.
func RecordSnapshotWritten(composite float64) {
	DefaultMetrics.SnapshotsWritten.Inc()
	DefaultMetrics.CompositeScore.Set(composite)
	DefaultMetrics.LastSuccessfulSnapshot.SetToCurrentTime()
}

// RecordMinuteRowWritten records a minute row write.
func RecordMinuteRowWritten() {
	DefaultMetrics.MinuteRowsWritten.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// SetMarketOpen updates the market-hours gauge.
func SetMarketOpen(open bool) {
	if open {
		DefaultMetrics.MarketOpen.Set(1)
	} else {
		DefaultMetrics.MarketOpen.Set(0)
	}
}
