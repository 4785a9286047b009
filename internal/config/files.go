package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"sentiment-engine/internal/domain"
)

// RSSFeed is one entry of the RSS feeds config file.
type RSSFeed struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// rssFeedsFile matches the feeds config file shape:
// { "feeds": [ { "url": ..., "source": ... } ] }
type rssFeedsFile struct {
	Feeds []RSSFeed `json:"feeds"`
}

// LoadRSSFeeds reads the RSS feeds config file. Entries without a URL are
// dropped; entries without a source tag default to "rss".
func LoadRSSFeeds(path string) ([]RSSFeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rss feeds config: %w", err)
	}

	var file rssFeedsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rss feeds config: %w", err)
	}

	feeds := make([]RSSFeed, 0, len(file.Feeds))
	for _, f := range file.Feeds {
		if f.URL == "" {
			continue
		}
		if f.Source == "" {
			f.Source = domain.SourceRSS
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

// weightsFile matches the weights config file shape:
// { "weights": { "AAPL": 0.14, ... } }
type weightsFile struct {
	Weights map[string]float64 `json:"weights"`
}

// LoadWeights reads a constituent-weight override file and validates that
// ticker weights plus the market bucket sum to 1.0.
func LoadWeights(path string) (domain.Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights config: %w", err)
	}

	var file weightsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse weights config: %w", err)
	}
	if len(file.Weights) == 0 {
		return nil, fmt.Errorf("weights config %s has no weights", path)
	}

	sum := domain.MarketBucketWeight
	for symbol, w := range file.Weights {
		if w < 0 || w > 1 {
			return nil, fmt.Errorf("weight for %s out of range: %v", symbol, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 0.01 {
		return nil, fmt.Errorf("ticker weights plus market bucket sum to %.4f, want 1.0", sum)
	}

	return domain.Weights(file.Weights), nil
}
