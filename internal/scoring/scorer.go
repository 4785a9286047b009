// Package scoring turns article text into sentiment values and impacts.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUndefined means the provider could not produce a sentiment within the
// retry budget. Callers drop the article; an undefined result is never
// cached as zero.
var ErrUndefined = errors.New("scoring: sentiment undefined")

// SentimentScorer scores texts into [-1, +1].
type SentimentScorer interface {
	// Score returns one sentiment per input text, in order. On failure every
	// text is undefined.
	Score(ctx context.Context, texts []string) ([]float64, error)
}

// Escalating per-attempt timeouts and the backoffs between attempts.
var (
	defaultAttemptTimeouts = []time.Duration{30 * time.Second, 45 * time.Second, 60 * time.Second}
	defaultAttemptBackoffs = []time.Duration{5 * time.Second, 10 * time.Second}
)

// scoreRequest is the provider wire request.
type scoreRequest struct {
	Texts []string `json:"texts"`
}

// scoreResponse is the provider wire response.
type scoreResponse struct {
	Sentiments []float64 `json:"sentiments"`
}

// FastScorer scores a whole batch in one HTTP call. Three attempts with
// escalating timeouts; all failures collapse to ErrUndefined.
type FastScorer struct {
	url      string
	apiKey   string
	client   *http.Client
	timeouts []time.Duration
	backoffs []time.Duration
}

// FastScorerOptions configures a FastScorer.
type FastScorerOptions struct {
	URL    string
	APIKey string
	// AttemptTimeouts and AttemptBackoffs override the escalation schedule
	// for tests.
	AttemptTimeouts []time.Duration
	AttemptBackoffs []time.Duration
}

// NewFastScorer creates the batch scoring backend.
func NewFastScorer(opts FastScorerOptions) *FastScorer {
	timeouts := opts.AttemptTimeouts
	if len(timeouts) == 0 {
		timeouts = defaultAttemptTimeouts
	}
	backoffs := opts.AttemptBackoffs
	if len(backoffs) == 0 {
		backoffs = defaultAttemptBackoffs
	}
	return &FastScorer{
		url:      opts.URL,
		apiKey:   opts.APIKey,
		client:   &http.Client{},
		timeouts: timeouts,
		backoffs: backoffs,
	}
}

// Score runs the retry schedule. Returns ErrUndefined after the last
// attempt fails.
func (s *FastScorer) Score(ctx context.Context, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt < len(s.timeouts); attempt++ {
		sentiments, err := s.scoreOnce(ctx, texts, s.timeouts[attempt])
		if err == nil {
			return sentiments, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < len(s.backoffs) {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUndefined, ctx.Err())
			case <-time.After(s.backoffs[attempt]):
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUndefined, lastErr)
}

// scoreOnce performs one provider call bounded by timeout.
func (s *FastScorer) scoreOnce(ctx context.Context, texts []string, timeout time.Duration) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(scoreRequest{Texts: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var decoded scoreResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	if len(decoded.Sentiments) != len(texts) {
		return nil, fmt.Errorf("provider returned %d sentiments for %d texts",
			len(decoded.Sentiments), len(texts))
	}
	for i, v := range decoded.Sentiments {
		if v < -1 || v > 1 {
			return nil, fmt.Errorf("sentiment %d out of range: %v", i, v)
		}
	}
	return decoded.Sentiments, nil
}

// AccurateScorer scores one text per call with bounded parallel fan-out.
type AccurateScorer struct {
	inner       SentimentScorer
	maxParallel int
}

// NewAccurateScorer wraps a per-text backend with a fan-out bound.
func NewAccurateScorer(inner SentimentScorer, maxParallel int) *AccurateScorer {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &AccurateScorer{inner: inner, maxParallel: maxParallel}
}

// Score fans out one call per text, at most maxParallel in flight. Any
// failed text fails the whole batch as undefined.
func (s *AccurateScorer) Score(ctx context.Context, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	sentiments := make([]float64, len(texts))
	errs := make([]error, len(texts))
	sem := make(chan struct{}, s.maxParallel)
	done := make(chan int, len(texts))

	for i := range texts {
		go func(i int) {
			defer func() { done <- i }()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			out, err := s.inner.Score(ctx, texts[i:i+1])
			if err != nil {
				errs[i] = err
				return
			}
			sentiments[i] = out[0]
		}(i)
	}

	for range texts {
		<-done
	}
	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUndefined, err)
		}
	}
	return sentiments, nil
}
