package domain

// SecondCandle is a 1-second OHLCV candle built from ticks.
// Exactly one candle exists per bucket-second that received at least one tick.
type SecondCandle struct {
	Symbol       string
	BucketSecond int64 // Unix seconds, UTC floor
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	TickCount    int
}

// TickCandle100 is a volume-dimension candle emitted every 100 ticks.
// Corresponds to tick_candles_100 table in PostgreSQL.
type TickCandle100 struct {
	Symbol          string
	Sequence        int64 // strictly increasing per instrument
	FirstTickMs     int64
	LastTickMs      int64
	DurationSeconds float64
	Open            float64
	High            float64
	Low             float64
	Close           float64
	Volume          float64
	TickCount       int // always 100
	CreatedAtMs     int64
}

// BuildCandleFromTicks folds ordered ticks into OHLCV fields.
// Ticks must be in arrival order; returns zero values for an empty slice.
func BuildCandleFromTicks(ticks []Tick) (open, high, low, close float64, volume float64) {
	if len(ticks) == 0 {
		return 0, 0, 0, 0, 0
	}

	open = ticks[0].Price
	close = ticks[len(ticks)-1].Price
	high = open
	low = open

	for _, t := range ticks {
		if t.Price > high {
			high = t.Price
		}
		if t.Price < low {
			low = t.Price
		}
		volume += t.Volume
	}

	return open, high, low, close, volume
}
