package domain

// MarketBucketWeight is the weight applied to market-wide news and to
// articles whose symbol is not a recognized constituent.
const MarketBucketWeight = 0.30

// Weights maps constituent symbols to their market-cap share of the
// composite. The ticker weights plus the market bucket sum to 1.0.
type Weights map[string]float64

// For returns the weight for a symbol, falling back to the market bucket
// for unrecognized symbols.
func (w Weights) For(symbol string) float64 {
	if v, ok := w[symbol]; ok {
		return v
	}
	return MarketBucketWeight
}

// Constituents returns the watchlist symbols. Order is not stable;
// callers sort when rotation order matters.
func (w Weights) Constituents() []string {
	out := make([]string, 0, len(w))
	for s := range w {
		out = append(out, s)
	}
	return out
}

// Instrument is the single traded product the pipeline runs on.
// Weights are immutable within a process run.
type Instrument struct {
	Symbol      string
	DisplayName string
	Weights     Weights
}

// DefaultWeights is the built-in constituent table for the default
// leveraged index ETF. Ticker weights sum to 0.70; the market bucket
// carries the remaining 0.30.
func DefaultWeights() Weights {
	return Weights{
		"AAPL":  0.14,
		"MSFT":  0.13,
		"GOOGL": 0.08,
		"AMZN":  0.07,
		"NVDA":  0.06,
		"META":  0.04,
		"TSLA":  0.03,
		"AVGO":  0.03,
		"COST":  0.02,
		"NFLX":  0.02,
		"AMD":   0.02,
		"PEP":   0.01,
		"ADBE":  0.01,
		"CSCO":  0.01,
		"QCOM":  0.01,
		"INTC":  0.01,
		"TXN":   0.01,
	}
}

// NewInstrument builds an instrument with the default weight table when
// none is supplied.
func NewInstrument(symbol, displayName string, weights Weights) Instrument {
	if weights == nil {
		weights = DefaultWeights()
	}
	return Instrument{
		Symbol:      symbol,
		DisplayName: displayName,
		Weights:     weights,
	}
}
