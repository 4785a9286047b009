package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"

	"sentiment-engine/internal/domain"
	"sentiment-engine/internal/idhash"
)

// fetchTimeout bounds one news HTTP request.
const fetchTimeout = 3 * time.Second

// ErrRateLimited signals an HTTP 429; the collector backs off the unit.
var ErrRateLimited = errors.New("news: rate limited")

// Fetcher retrieves the current articles for one unit (a ticker, the market
// target, or a feed URL).
type Fetcher interface {
	Fetch(ctx context.Context, unit string) ([]*domain.Article, error)
}

// apiArticle is the wire shape shared by the company and market news APIs.
type apiArticle struct {
	Headline string  `json:"headline"`
	Summary  string  `json:"summary"`
	URL      string  `json:"url"`
	Datetime float64 `json:"datetime"` // epoch seconds
	Symbol   string  `json:"symbol"`
}

// APIFetcher pulls articles from an HTTP JSON news API. One instance per
// source; the unit is interpolated into the query.
type APIFetcher struct {
	baseURL string
	apiKey  string
	source  string
	client  *http.Client
}

// NewCompanyFetcher creates a fetcher for per-ticker company news. The unit
// is a constituent symbol.
func NewCompanyFetcher(baseURL, apiKey string) *APIFetcher {
	return newAPIFetcher(baseURL, apiKey, domain.SourceCompanyNews)
}

// NewMarketFetcher creates a fetcher for broad market news. The unit is the
// news category.
func NewMarketFetcher(baseURL, apiKey string) *APIFetcher {
	return newAPIFetcher(baseURL, apiKey, domain.SourceMarketNews)
}

func newAPIFetcher(baseURL, apiKey, source string) *APIFetcher {
	return &APIFetcher{
		baseURL: baseURL,
		apiKey:  apiKey,
		source:  source,
		client:  &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch requests the unit's articles and maps them to the domain shape.
func (f *APIFetcher) Fetch(ctx context.Context, unit string) ([]*domain.Article, error) {
	reqURL, err := f.buildURL(unit)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: unit %s", ErrRateLimited, unit)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news api status %d for unit %s", resp.StatusCode, unit)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	var raw []apiArticle
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode news response: %w", err)
	}

	articles := make([]*domain.Article, 0, len(raw))
	for _, r := range raw {
		if r.Headline == "" || r.URL == "" {
			continue
		}
		symbol := r.Symbol
		if symbol == "" {
			if f.source == domain.SourceCompanyNews {
				symbol = unit
			} else {
				symbol = domain.SymbolMarket
			}
		}
		articles = append(articles, &domain.Article{
			Hash:          idhash.ComputeArticleHash(f.source, r.URL, r.Headline),
			Source:        f.source,
			Symbol:        symbol,
			Headline:      r.Headline,
			Summary:       r.Summary,
			URL:           r.URL,
			PublishedAtMs: int64(r.Datetime * 1000),
		})
	}
	return articles, nil
}

func (f *APIFetcher) buildURL(unit string) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	switch f.source {
	case domain.SourceCompanyNews:
		q.Set("symbol", unit)
	default:
		q.Set("category", unit)
	}
	if f.apiKey != "" {
		q.Set("token", f.apiKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RSSFetcher pulls articles from RSS feeds. The unit is the feed URL.
type RSSFetcher struct {
	parser *gofeed.Parser
	// sourceByURL labels articles with the feed's configured source name.
	sourceByURL map[string]string
}

// NewRSSFetcher creates an RSS fetcher. sourceByURL maps feed URL to the
// source label stored on its articles.
func NewRSSFetcher(sourceByURL map[string]string) *RSSFetcher {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: fetchTimeout}
	return &RSSFetcher{parser: parser, sourceByURL: sourceByURL}
}

// Fetch parses one feed. Items without a parseable publish date are dropped.
func (f *RSSFetcher) Fetch(ctx context.Context, feedURL string) ([]*domain.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	source := f.sourceByURL[feedURL]
	if source == "" {
		source = domain.SourceRSS
	}

	articles := make([]*domain.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || item.Title == "" || item.Link == "" {
			continue
		}
		if item.PublishedParsed == nil {
			continue
		}
		summary := item.Description
		if summary == "" {
			summary = item.Content
		}
		articles = append(articles, &domain.Article{
			Hash:          idhash.ComputeArticleHash(source, item.Link, item.Title),
			Source:        source,
			Symbol:        domain.SymbolMarket,
			Headline:      item.Title,
			Summary:       summary,
			URL:           item.Link,
			PublishedAtMs: item.PublishedParsed.UnixMilli(),
		})
	}
	return articles, nil
}
