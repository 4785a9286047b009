package domain

// Tick represents a single trade event from the upstream stream.
// Ticks live in memory only; they are discarded once folded into both
// candle dimensions.
type Tick struct {
	Symbol      string
	Price       float64 // positive
	Volume      float64 // non-negative
	TimestampMs int64   // Unix timestamp in milliseconds
}

// BucketSecond returns the UTC floor of the tick timestamp to 1 second.
func (t Tick) BucketSecond() int64 {
	return t.TimestampMs / 1000
}
