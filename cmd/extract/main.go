package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"sentiment-engine/internal/config"
	pgstore "sentiment-engine/internal/storage/postgres"
)

func main() {
	kind := flag.String("kind", "snapshots", "What to export: snapshots or candles")
	day := flag.String("day", "", "Calendar day to export (YYYY-MM-DD, default today)")
	out := flag.String("out", "", "Output CSV path (default stdout)")
	flag.Parse()

	logger := log.New(os.Stderr, "[extract] ", log.LstdFlags)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("Configuration error: %v", err)
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()

	start, end, err := dayRange(*day)
	if err != nil {
		logger.Fatalf("Invalid --day: %v", err)
	}

	pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Connect to postgres: %v", err)
	}
	defer pool.Close()

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			logger.Fatalf("Create output file: %v", err)
		}
		defer f.Close()
		w = f
	}
	writer := csv.NewWriter(w)
	defer writer.Flush()

	var count int
	switch *kind {
	case "snapshots":
		count, err = exportSnapshots(ctx, pool, writer, cfg.InstrumentSymbol, start, end)
	case "candles":
		count, err = exportCandles(ctx, pool, writer, cfg.InstrumentSymbol, start, end)
	default:
		logger.Fatalf("Unknown --kind %q: must be snapshots or candles", *kind)
	}
	if err != nil {
		logger.Fatalf("Export failed: %v", err)
	}
	logger.Printf("Exported %d %s rows", count, *kind)
}

// dayRange resolves the day flag to a [start, end) window in the exchange
// timezone.
func dayRange(day string) (start, end time.Time, err error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	var base time.Time
	if day == "" {
		base = time.Now().In(loc)
	} else {
		base, err = time.ParseInLocation("2006-01-02", day, loc)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	start = time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}

func exportSnapshots(ctx context.Context, pool *pgstore.Pool, w *csv.Writer, symbol string, start, end time.Time) (int, error) {
	store := pgstore.NewSnapshotStore(pool)
	snaps, err := store.GetByTimeRange(ctx, symbol, start.Unix(), end.Unix()-1)
	if err != nil {
		return 0, err
	}

	header := []string{"bucket_second", "time", "composite", "news_cached", "technical_cached",
		"open", "high", "low", "close", "volume", "tick_count"}
	if err := w.Write(header); err != nil {
		return 0, err
	}

	for _, s := range snaps {
		record := []string{
			strconv.FormatInt(s.BucketSecond, 10),
			time.Unix(s.BucketSecond, 0).UTC().Format(time.RFC3339),
			formatFloat(s.Composite),
			formatFloat(s.NewsCached),
			formatFloat(s.TechnicalCached),
			formatFloat(s.Open),
			formatFloat(s.High),
			formatFloat(s.Low),
			formatFloat(s.Close),
			formatFloat(s.Volume),
			strconv.Itoa(s.TickCount),
		}
		if err := w.Write(record); err != nil {
			return 0, err
		}
	}
	return len(snaps), nil
}

func exportCandles(ctx context.Context, pool *pgstore.Pool, w *csv.Writer, symbol string, start, end time.Time) (int, error) {
	store := pgstore.NewTickCandleStore(pool)
	candles, err := store.GetByTimeRange(ctx, symbol, start.UnixMilli(), end.UnixMilli()-1)
	if err != nil {
		return 0, err
	}

	header := []string{"sequence", "first_tick_ms", "last_tick_ms", "duration_seconds",
		"open", "high", "low", "close", "volume", "tick_count"}
	if err := w.Write(header); err != nil {
		return 0, err
	}

	for _, c := range candles {
		record := []string{
			strconv.FormatInt(c.Sequence, 10),
			strconv.FormatInt(c.FirstTickMs, 10),
			strconv.FormatInt(c.LastTickMs, 10),
			formatFloat(c.DurationSeconds),
			formatFloat(c.Open),
			formatFloat(c.High),
			formatFloat(c.Low),
			formatFloat(c.Close),
			formatFloat(c.Volume),
			strconv.Itoa(c.TickCount),
		}
		if err := w.Write(record); err != nil {
			return 0, err
		}
	}
	return len(candles), nil
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
