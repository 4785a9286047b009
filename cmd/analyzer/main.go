package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentiment-engine/internal/config"
	"sentiment-engine/internal/minute"
	"sentiment-engine/internal/persist"
	"sentiment-engine/internal/storage"
	"sentiment-engine/internal/storage/memory"
	"sentiment-engine/internal/storage/migrations"
	pgstore "sentiment-engine/internal/storage/postgres"
)

func main() {
	once := flag.Bool("once", false, "Run a single analysis pass and exit")
	interval := flag.Duration("interval", time.Minute, "Interval between analysis passes")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.Parse()

	logger := log.New(os.Stdout, "[analyzer] ", log.LstdFlags)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("Configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, stopping...", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger, *once, *interval, *useMemory); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger, once bool, interval time.Duration, useMemory bool) error {
	var articleStore storage.ArticleStore = memory.NewArticleStore()
	var minuteStore storage.MinuteRowStore = memory.NewMinuteRowStore()
	var snapshotStore storage.SnapshotStore = memory.NewSnapshotStore()

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
	}

	adapter := persist.New(persist.Options{
		Symbol:      cfg.InstrumentSymbol,
		Snapshots:   snapshotStore,
		Minutes:     minuteStore,
		FreshWindow: cfg.SnapshotFreshWindow,
		Logger:      logger,
	})

	analyzer := minute.New(minute.Options{
		Symbol:      cfg.InstrumentSymbol,
		Articles:    articleStore,
		Minutes:     minuteStore,
		Snapshots:   snapshotStore,
		Writer:      adapter,
		FreshWindow: cfg.SnapshotFreshWindow,
		Logger:      logger,
	})

	if once {
		_, err := analyzer.RunOnce(ctx)
		return err
	}

	logger.Printf("Running every %s for %s", interval, cfg.InstrumentSymbol)
	return analyzer.RunInterval(ctx, interval)
}
