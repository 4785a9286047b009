package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sentiment-engine/internal/aggregator"
	"sentiment-engine/internal/compose"
	"sentiment-engine/internal/config"
	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/markethours"
	"sentiment-engine/internal/news"
	"sentiment-engine/internal/observability"
	"sentiment-engine/internal/persist"
	"sentiment-engine/internal/pipeline"
	"sentiment-engine/internal/scoring"
	"sentiment-engine/internal/storage"
	chstore "sentiment-engine/internal/storage/clickhouse"
	"sentiment-engine/internal/storage/memory"
	"sentiment-engine/internal/storage/migrations"
	pgstore "sentiment-engine/internal/storage/postgres"
	"sentiment-engine/internal/stream"
)

func main() {
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides METRICS_ADDR)")
	flag.Parse()

	logger := log.New(os.Stdout, "[collector] ", log.LstdFlags)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("Configuration error: %v", err)
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, cfg, logger, *useMemory)

	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// sourceRuntime bundles one news source's collector, scoring worker and
// save worker.
type sourceRuntime struct {
	name      string
	collector *news.Collector
	worker    *scoring.Worker
	saver     *news.Saver
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger, useMemory bool) error {
	// Startup order: clock, stores, scorers, save workers, composer,
	// aggregator, tick stream.
	clock := markethours.NewClock(markethours.Options{
		Skip:   cfg.SkipMarketHoursCheck,
		Logger: log.New(os.Stdout, "[markethours] ", log.LstdFlags),
	})
	observability.SetMarketOpen(clock.IsOpen(time.Now()))

	var articleStore storage.ArticleStore = memory.NewArticleStore()
	var minuteStore storage.MinuteRowStore = memory.NewMinuteRowStore()
	var snapshotStore storage.SnapshotStore = memory.NewSnapshotStore()
	var candleStore storage.TickCandleStore = memory.NewTickCandleStore()

	if !useMemory {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required (use --use-memory for in-memory storage)")
		}
		pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}

		articleStore = pgstore.NewArticleStore(pool)
		minuteStore = pgstore.NewMinuteRowStore(pool)
		snapshotStore = pgstore.NewSnapshotStore(pool)
		candleStore = pgstore.NewTickCandleStore(pool)
	}

	// The analytics archive is non-essential: failure disables it only.
	var archive *chstore.ArchiveStore
	if cfg.ClickhouseURL != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseURL)
		if err != nil {
			logger.Printf("ClickHouse archive disabled: %v", err)
		} else {
			defer conn.Close()
			archive = chstore.NewArchiveStore(conn)
			logger.Println("ClickHouse archive enabled")
		}
	}

	weights := domain.DefaultWeights()
	if cfg.WeightsConfigPath != "" {
		loaded, err := config.LoadWeights(cfg.WeightsConfigPath)
		if err != nil {
			return fmt.Errorf("load weights config: %w", err)
		}
		weights = loaded
	}

	adapter := persist.New(persist.Options{
		Symbol:      cfg.InstrumentSymbol,
		Snapshots:   snapshotStore,
		Minutes:     minuteStore,
		FreshWindow: cfg.SnapshotFreshWindow,
		Logger:      log.New(os.Stdout, "[persist] ", log.LstdFlags),
	})

	scorer, err := buildScorer(cfg)
	if err != nil {
		return err
	}

	impacts := pipeline.NewImpactQueue(0)

	sources, err := buildSources(cfg, clock, scorer, weights, impacts, articleStore)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		logger.Println("No news sources enabled; running tick pipeline only")
	}

	aggCandleStore := candleStore
	if archive != nil {
		aggCandleStore = &archivingCandleStore{
			TickCandleStore: candleStore,
			archive:         archive,
			logger:          logger,
		}
	}
	agg := aggregator.New(aggregator.Options{
		Symbol:      cfg.InstrumentSymbol,
		CandleStore: aggCandleStore,
		Logger:      log.New(os.Stdout, "[aggregator] ", log.LstdFlags),
		Verbose:     cfg.Verbose,
	})
	if err := agg.InitSequence(ctx); err != nil {
		return fmt.Errorf("init candle sequence: %w", err)
	}

	writer := compose.SnapshotWriter(adapter)
	if archive != nil {
		writer = &archivingWriter{primary: adapter, archive: archive, logger: logger}
	}
	composer := compose.New(compose.Options{
		Symbol:      cfg.InstrumentSymbol,
		Candles:     agg.Candles(),
		Impacts:     impacts,
		Writer:      writer,
		Snapshots:   snapshotStore,
		Minutes:     minuteStore,
		FreshWindow: cfg.SnapshotFreshWindow,
		Logger:      log.New(os.Stdout, "[composer] ", log.LstdFlags),
	})
	if err := composer.SeedMomentum(ctx); err != nil {
		logger.Printf("Momentum seed unavailable: %v", err)
	}

	client := stream.NewClient(stream.ClientOptions{
		URL:     cfg.TickStreamURL,
		APIKey:  cfg.TickStreamAPIKey,
		Symbol:  cfg.InstrumentSymbol,
		Handler: agg.HandleTick,
		Logger:  log.New(os.Stdout, "[stream] ", log.LstdFlags),
	})
	supervisor := stream.NewSupervisor(client, clock, log.New(os.Stdout, "[supervisor] ", log.LstdFlags))

	// Shutdown order is the reverse of startup: stream and collectors stop
	// on ctx, then the aggregator flushes, the composer drains, and finally
	// the save workers empty their queues.
	aggCtx, aggCancel := context.WithCancel(context.Background())
	defer aggCancel()
	saveCtx, saveCancel := context.WithCancel(context.Background())
	defer saveCancel()

	var front sync.WaitGroup

	for _, src := range sources {
		front.Add(2)
		go func(src sourceRuntime) {
			defer front.Done()
			src.collector.Run(ctx)
		}(src)
		go func(src sourceRuntime) {
			defer front.Done()
			src.worker.Run(ctx)
		}(src)
	}

	var savers sync.WaitGroup
	for _, src := range sources {
		savers.Add(1)
		go func(src sourceRuntime) {
			defer savers.Done()
			src.saver.Run(saveCtx)
		}(src)
	}

	var composerDone sync.WaitGroup
	composerDone.Add(2)
	go func() {
		defer composerDone.Done()
		agg.Run(aggCtx)
	}()
	go func() {
		defer composerDone.Done()
		composer.Run(aggCtx)
	}()

	front.Add(1)
	go func() {
		defer front.Done()
		if err := supervisor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("Tick stream stopped: %v", err)
		}
	}()

	logger.Printf("Pipeline running for %s (sources: %d, verbose: %v)",
		cfg.InstrumentSymbol, len(sources), cfg.Verbose)

	<-ctx.Done()
	logger.Println("Stopping: waiting for collectors and stream...")
	front.Wait()

	aggCancel()
	composerDone.Wait()

	if leftover := impacts.Len(); leftover > 0 {
		logger.Printf("Discarding %d undelivered impacts", leftover)
	}

	saveCancel()
	savers.Wait()

	total, late := agg.Stats()
	logger.Printf("Session summary: ticks=%d late=%d impacts_dropped=%d",
		total, late, impacts.Dropped())
	return ctx.Err()
}

// buildScorer selects the sentiment backend from configuration.
func buildScorer(cfg *config.Config) (scoring.SentimentScorer, error) {
	switch cfg.SentimentProvider {
	case config.ProviderFast:
		return scoring.NewFastScorer(scoring.FastScorerOptions{
			URL:    cfg.SentimentURLFast,
			APIKey: cfg.SentimentAPIKeyFast,
		}), nil
	case config.ProviderAccurate:
		inner := scoring.NewFastScorer(scoring.FastScorerOptions{
			URL:    cfg.SentimentURLAccurate,
			APIKey: cfg.SentimentAPIKeyAccurate,
		})
		return scoring.NewAccurateScorer(inner, 4), nil
	default:
		return nil, fmt.Errorf("unknown sentiment provider %q", cfg.SentimentProvider)
	}
}

// buildSources wires the enabled collectors with their scoring and save
// workers.
func buildSources(cfg *config.Config, clock *markethours.Clock, scorer scoring.SentimentScorer,
	weights domain.Weights, impacts *pipeline.ImpactQueue, articles storage.ArticleStore) ([]sourceRuntime, error) {

	var sources []sourceRuntime

	add := func(name string, dedup *news.DedupCache, collector *news.Collector, scoreQueue *pipeline.ScoreQueue, saveQueue *pipeline.SaveQueue) {
		sources = append(sources, sourceRuntime{
			name:      name,
			collector: collector,
			worker: scoring.NewWorker(scoring.WorkerOptions{
				Source:  name,
				In:      scoreQueue,
				Impacts: impacts,
				Saves:   saveQueue,
				Scorer:  scorer,
				Weights: weights,
				Unmark:  dedup.Unmark,
			}),
			saver: news.NewSaver(news.SaverOptions{
				Source: name,
				Queue:  saveQueue,
				Store:  articles,
			}),
		})
	}

	if cfg.EnableCompanyNews {
		scoreQueue := pipeline.NewScoreQueue(0)
		dedup := news.NewDedupCache()
		add(domain.SourceCompanyNews, dedup, news.NewCollector(news.CollectorOptions{
			Source:       domain.SourceCompanyNews,
			Units:        weights.Constituents(),
			Fetcher:      news.NewCompanyFetcher(cfg.CompanyNewsURL, cfg.CompanyNewsAPIKey),
			Out:          scoreQueue,
			Dedup:        dedup,
			MinInterval:  news.CompanyUnitInterval,
			WorkDuration: news.CompanyWorkDuration,
			RestDuration: news.CompanyRestDuration,
			Location:     clock.Location(),
		}), scoreQueue, pipeline.NewSaveQueue(0))
	}

	if cfg.EnableMarketNews {
		scoreQueue := pipeline.NewScoreQueue(0)
		dedup := news.NewDedupCache()
		add(domain.SourceMarketNews, dedup, news.NewCollector(news.CollectorOptions{
			Source:      domain.SourceMarketNews,
			Units:       []string{"general"},
			Fetcher:     news.NewMarketFetcher(cfg.MarketNewsURL, cfg.MarketNewsAPIKey),
			Out:         scoreQueue,
			Dedup:       dedup,
			MinInterval: news.MarketUnitInterval,
			Location:    clock.Location(),
		}), scoreQueue, pipeline.NewSaveQueue(0))
	}

	if cfg.EnableRSSNews {
		feeds, err := config.LoadRSSFeeds(cfg.RSSFeedsConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load RSS feeds config: %w", err)
		}
		urls := make([]string, 0, len(feeds))
		sourceByURL := make(map[string]string, len(feeds))
		for _, feed := range feeds {
			urls = append(urls, feed.URL)
			sourceByURL[feed.URL] = feed.Source
		}
		scoreQueue := pipeline.NewScoreQueue(0)
		dedup := news.NewDedupCache()
		add(domain.SourceRSS, dedup, news.NewCollector(news.CollectorOptions{
			Source:      domain.SourceRSS,
			Units:       urls,
			Fetcher:     news.NewRSSFetcher(sourceByURL),
			Out:         scoreQueue,
			Dedup:       dedup,
			MinInterval: news.RSSUnitInterval,
			Location:    clock.Location(),
		}), scoreQueue, pipeline.NewSaveQueue(0))
	}

	return sources, nil
}

// archivingWriter tees snapshots into the ClickHouse archive after the
// primary write. Archive failures only log.
type archivingWriter struct {
	primary compose.SnapshotWriter
	archive *chstore.ArchiveStore
	logger  *log.Logger
}

func (w *archivingWriter) WriteSnapshot(ctx context.Context, snap *domain.SecondSnapshot) error {
	if err := w.primary.WriteSnapshot(ctx, snap); err != nil {
		return err
	}
	if err := w.archive.InsertSnapshot(ctx, snap); err != nil {
		w.logger.Printf("Archive snapshot write failed: %v", err)
	}
	return nil
}

// archivingCandleStore tees 100-tick candle inserts into the ClickHouse
// archive after the primary write. Archive failures only log.
type archivingCandleStore struct {
	storage.TickCandleStore
	archive *chstore.ArchiveStore
	logger  *log.Logger
}

func (s *archivingCandleStore) Insert(ctx context.Context, c *domain.TickCandle100) error {
	if err := s.TickCandleStore.Insert(ctx, c); err != nil {
		return err
	}
	if err := s.archive.InsertTickCandle(ctx, c); err != nil {
		s.logger.Printf("Archive candle write failed: %v", err)
	}
	return nil
}
