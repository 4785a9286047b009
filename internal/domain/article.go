package domain

// News source tags.
const (
	SourceCompanyNews = "company"
	SourceMarketNews  = "market"
	SourceRSS         = "rss"
)

// SymbolMarket is the pseudo-symbol for market-wide news with no
// recognized constituent.
const SymbolMarket = "market"

// Article represents a news article flowing through the scoring and save
// pipeline. Corresponds to articles table in PostgreSQL.
type Article struct {
	Hash     string // PRIMARY KEY, 32-hex digest of source|url|headline prefix
	Source   string // company | market | rss feed tag
	Symbol   string // constituent symbol or "market"
	Headline string
	Summary  string
	URL      string

	PublishedAtMs int64 // publisher-reported publish time (ms)
	FetchedAtMs   int64 // set at enqueue time; created_at is not a fetch time

	Sentiment            float64 // [-1, +1], set by scorer
	Impact               float64 // [-25, +25], set by scorer
	WeightedContribution float64 // sentiment * weight * 100 before clipping

	Analyzed    bool  // consumed by the minute analyzer
	CreatedAtMs int64 // DB insert time, set on first insert only
}

// ScoredImpact is a single article's contribution to the live news score,
// queued for immediate application by the composer.
type ScoredImpact struct {
	Hash       string
	Source     string
	Symbol     string
	Impact     float64 // [-25, +25]
	ScoredAtMs int64
}
