package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newFastScorer(url string) *FastScorer {
	return NewFastScorer(FastScorerOptions{
		URL:             url,
		AttemptTimeouts: []time.Duration{50 * time.Millisecond, 75 * time.Millisecond, 100 * time.Millisecond},
		AttemptBackoffs: []time.Duration{time.Millisecond, time.Millisecond},
	})
}

func TestFastScorerSucceedsOnThirdAttempt(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n < 3 {
			// Stall past the attempt timeout.
			time.Sleep(200 * time.Millisecond)
			return
		}
		var req scoreRequest
		json.NewDecoder(r.Body).Decode(&req)
		out := make([]float64, len(req.Texts))
		for i := range out {
			out[i] = 0.75
		}
		json.NewEncoder(w).Encode(scoreResponse{Sentiments: out})
	}))
	defer server.Close()

	s := newFastScorer(server.URL)
	sentiments, err := s.Score(context.Background(), []string{"headline one"})
	if err != nil {
		t.Fatalf("Score after two timeouts: %v", err)
	}
	if len(sentiments) != 1 || sentiments[0] != 0.75 {
		t.Errorf("sentiments = %v, want [0.75]", sentiments)
	}
	if calls.Load() != 3 {
		t.Errorf("provider calls = %d, want 3", calls.Load())
	}
}

func TestFastScorerAllTimeoutsReturnUndefined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	s := newFastScorer(server.URL)
	_, err := s.Score(context.Background(), []string{"headline"})
	if !errors.Is(err, ErrUndefined) {
		t.Errorf("err = %v, want ErrUndefined", err)
	}
}

func TestFastScorerRejectsOutOfRangeSentiment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(scoreResponse{Sentiments: []float64{1.5}})
	}))
	defer server.Close()

	s := newFastScorer(server.URL)
	if _, err := s.Score(context.Background(), []string{"headline"}); !errors.Is(err, ErrUndefined) {
		t.Errorf("err = %v, want ErrUndefined for out-of-range value", err)
	}
}

func TestFastScorerRejectsCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(scoreResponse{Sentiments: []float64{0.1}})
	}))
	defer server.Close()

	s := newFastScorer(server.URL)
	if _, err := s.Score(context.Background(), []string{"a", "b"}); !errors.Is(err, ErrUndefined) {
		t.Errorf("err = %v, want ErrUndefined for count mismatch", err)
	}
}

// stubScorer scores every text with a fixed value.
type stubScorer struct {
	value float64
	err   error
	calls atomic.Int64
}

func (s *stubScorer) Score(_ context.Context, texts []string) ([]float64, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(texts))
	for i := range out {
		out[i] = s.value
	}
	return out, nil
}

func TestAccurateScorerFansOutPerText(t *testing.T) {
	inner := &stubScorer{value: 0.5}
	s := NewAccurateScorer(inner, 2)

	sentiments, err := s.Score(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(sentiments) != 3 {
		t.Fatalf("got %d sentiments, want 3", len(sentiments))
	}
	for i, v := range sentiments {
		if v != 0.5 {
			t.Errorf("sentiment[%d] = %v, want 0.5", i, v)
		}
	}
	if inner.calls.Load() != 3 {
		t.Errorf("inner calls = %d, want 3 (one per text)", inner.calls.Load())
	}
}

func TestAccurateScorerFailsWholeBatch(t *testing.T) {
	inner := &stubScorer{err: errors.New("boom")}
	s := NewAccurateScorer(inner, 2)

	if _, err := s.Score(context.Background(), []string{"a", "b"}); !errors.Is(err, ErrUndefined) {
		t.Errorf("err = %v, want ErrUndefined", err)
	}
}
