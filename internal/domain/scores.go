package domain

// DecayRatePerSecond is the multiplicative news decay applied each second.
// Compounds to 3.83% per minute over 60 seconds.
const DecayRatePerSecond = 0.0383 / 60

// NewsZeroEpsilon snaps tiny residual news scores to zero.
const NewsZeroEpsilon = 0.01

// Composite sub-component weights.
const (
	WeightNews      = 0.35
	WeightReddit    = 0.20
	WeightTechnical = 0.25
	WeightAnalyst   = 0.20
)

// TechnicalBlendBase is the share of the minute-level technical score in the
// per-second technical blend; the remainder comes from micro-momentum.
const TechnicalBlendBase = 0.8

// Sentiment labels derived from the composite score.
const (
	LabelStrongBullish = "strong_bullish"
	LabelBullish       = "bullish"
	LabelNeutral       = "neutral"
	LabelBearish       = "bearish"
	LabelStrongBearish = "strong_bearish"
)

// MinuteRow is a minute-cadence analysis record containing base component
// scores. Corresponds to minute_rows table in PostgreSQL.
type MinuteRow struct {
	ID          int64
	TimestampMs int64

	Composite float64 // [-100, +100]
	News      float64
	Reddit    float64
	Technical float64
	Analyst   float64
	Label     string

	ArticleCount int // articles considered this minute
	CachedCount  int // previously scored articles reused
	NewCount     int // newly scored articles

	Price          float64
	PriceChangePct float64
	RSI            *float64 // nullable macro indicators
	VIX            *float64
}

// SecondSnapshot is the per-second composite record produced by the
// composer. Unique on (instrument, bucket_second); append-only.
type SecondSnapshot struct {
	ID           int64
	Symbol       string
	BucketSecond int64

	Composite       float64 // [-100, +100]
	NewsCached      float64
	TechnicalCached float64

	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	TickCount int
}

// Clip bounds v to [lo, hi].
func Clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClipScore bounds a component or composite score to [-100, +100].
func ClipScore(v float64) float64 {
	return Clip(v, -100, 100)
}

// ClipImpact bounds an article impact to [-25, +25].
func ClipImpact(v float64) float64 {
	return Clip(v, -25, 25)
}

// Composite blends the four sub-components and clips to [-100, +100].
func Composite(news, reddit, technical, analyst float64) float64 {
	c := WeightNews*news + WeightReddit*reddit + WeightTechnical*technical + WeightAnalyst*analyst
	return ClipScore(c)
}

// LabelFor maps a composite score to its sentiment label.
func LabelFor(composite float64) string {
	switch {
	case composite >= 50:
		return LabelStrongBullish
	case composite >= 15:
		return LabelBullish
	case composite > -15:
		return LabelNeutral
	case composite > -50:
		return LabelBearish
	default:
		return LabelStrongBearish
	}
}
