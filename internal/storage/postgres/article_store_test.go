package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/storage"
)

func TestArticleStoreUpsert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewArticleStore(pool)

	a := &domain.Article{
		Hash:          "0123456789abcdef0123456789abcdef",
		Source:        domain.SourceCompanyNews,
		Symbol:        "AAPL",
		Headline:      "Apple beats estimates",
		Summary:       "Quarterly results above consensus.",
		URL:           "https://example.com/apple",
		PublishedAtMs: time.Now().Add(-time.Hour).UnixMilli(),
		FetchedAtMs:   time.Now().UnixMilli(),
		Sentiment:     0.9,
		Impact:        12.6,
		CreatedAtMs:   time.Now().UnixMilli(),
	}

	created, err := store.Upsert(ctx, a)
	require.NoError(t, err)
	require.True(t, created, "first upsert should create")

	// Same hash again with updated sentiment: updates in place, created_at
	// preserved.
	update := *a
	update.Sentiment = 0.5
	update.CreatedAtMs = 0

	created, err = store.Upsert(ctx, &update)
	require.NoError(t, err)
	require.False(t, created, "second upsert should update")

	got, err := store.GetByHash(ctx, a.Hash)
	require.NoError(t, err)
	require.InDelta(t, 0.5, got.Sentiment, 1e-9)
	require.NotZero(t, got.CreatedAtMs, "created_at must be set on first insert")
	require.Equal(t, a.CreatedAtMs, got.CreatedAtMs, "created_at must survive updates")
}

func TestArticleStoreUnanalyzedFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewArticleStore(pool)

	hashes := []string{
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}
	for i, h := range hashes {
		_, err := store.Upsert(ctx, &domain.Article{
			Hash:        h,
			Source:      domain.SourceRSS,
			Symbol:      domain.SymbolMarket,
			FetchedAtMs: int64(1000 * (i + 1)),
		})
		require.NoError(t, err)
	}

	pending, err := store.GetUnanalyzed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, hashes[0], pending[0].Hash, "ordered by fetched_at")

	require.NoError(t, store.MarkAnalyzed(ctx, hashes[:1]))

	pending, err = store.GetUnanalyzed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, hashes[1], pending[0].Hash)
}

func TestSnapshotStoreUniqueBucket(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSnapshotStore(pool)

	snap := &domain.SecondSnapshot{
		Symbol:       "TQQQ",
		BucketSecond: 1700000000,
		Composite:    42.75,
		NewsCached:   40.0,
	}
	require.NoError(t, store.Insert(ctx, snap))
	require.NotZero(t, snap.ID)

	dup := *snap
	dup.ID = 0
	err := store.Insert(ctx, &dup)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	latest, err := store.GetLatest(ctx, "TQQQ")
	require.NoError(t, err)
	require.Equal(t, int64(1700000000), latest.BucketSecond)
}

func TestMinuteRowStoreLatest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewMinuteRowStore(pool)

	for _, ts := range []int64{1000, 3000, 2000} {
		row := &domain.MinuteRow{
			TimestampMs: ts,
			Composite:   42.75,
			News:        40,
			Reddit:      25,
			Technical:   55,
			Analyst:     30,
			Label:       domain.LabelBullish,
			RSI:         ptr(55.2),
		}
		require.NoError(t, store.Insert(ctx, row))
		require.NotZero(t, row.ID)
	}

	latest, err := store.GetLatest(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3000), latest.TimestampMs)
	require.NotNil(t, latest.RSI)
	require.InDelta(t, 55.2, *latest.RSI, 1e-9)
}

func TestTickCandleStoreMaxSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTickCandleStore(pool)

	max, err := store.MaxSequence(ctx, "TQQQ")
	require.NoError(t, err)
	require.Zero(t, max, "empty table should report 0")

	for seq := int64(1); seq <= 3; seq++ {
		require.NoError(t, store.Insert(ctx, &domain.TickCandle100{
			Symbol:      "TQQQ",
			Sequence:    seq,
			FirstTickMs: seq * 1000,
			LastTickMs:  seq*1000 + 900,
			TickCount:   100,
		}))
	}

	max, err = store.MaxSequence(ctx, "TQQQ")
	require.NoError(t, err)
	require.Equal(t, int64(3), max)

	err = store.Insert(ctx, &domain.TickCandle100{Symbol: "TQQQ", Sequence: 2, TickCount: 100})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
}
