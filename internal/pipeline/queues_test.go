package pipeline

import (
	"testing"
	"time"

	"sentiment-engine/internal/domain"
)

func TestScoreQueueRejectsWhenFull(t *testing.T) {
	q := NewScoreQueue(2)

	if !q.TryPut(&domain.Article{Hash: "a"}) || !q.TryPut(&domain.Article{Hash: "b"}) {
		t.Fatal("puts under capacity should succeed")
	}
	if q.TryPut(&domain.Article{Hash: "c"}) {
		t.Error("put on full queue should fail")
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}

	// FIFO order preserved.
	if got := q.Get(10 * time.Millisecond); got == nil || got.Hash != "a" {
		t.Errorf("first Get = %v, want hash a", got)
	}
}

func TestScoreQueueGetTimeout(t *testing.T) {
	q := NewScoreQueue(1)

	start := time.Now()
	if got := q.Get(20 * time.Millisecond); got != nil {
		t.Errorf("Get on empty queue = %v, want nil", got)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Get returned before timeout elapsed")
	}
}

func TestSaveQueueRejectsNewestWhenFull(t *testing.T) {
	q := NewSaveQueue(1)

	first := SaveJob{Article: &domain.Article{Hash: "first"}, EnqueuedAt: time.Now()}
	if !q.TryPut(first) {
		t.Fatal("put under capacity should succeed")
	}
	if q.TryPut(SaveJob{Article: &domain.Article{Hash: "second"}}) {
		t.Error("put on full queue should be rejected")
	}

	// The earlier job survives; the newest was rejected.
	job, ok := q.Get(10 * time.Millisecond)
	if !ok || job.Article.Hash != "first" {
		t.Errorf("Get = %v ok=%v, want the first job", job, ok)
	}
}

func TestImpactQueueDropsOldestWhenFull(t *testing.T) {
	q := NewImpactQueue(3)

	for i, h := range []string{"a", "b", "c", "d"} {
		q.Put(domain.ScoredImpact{Hash: h, Impact: float64(i)})
	}

	if q.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", q.Dropped())
	}

	got := q.Drain()
	if len(got) != 3 {
		t.Fatalf("drained %d impacts, want 3", len(got))
	}
	if got[0].Hash != "b" || got[2].Hash != "d" {
		t.Errorf("drain order = %v, want oldest 'a' dropped", got)
	}
}

func TestImpactQueueDrainEmpties(t *testing.T) {
	q := NewImpactQueue(10)
	q.Put(domain.ScoredImpact{Hash: "a", Impact: 12.6})

	if got := q.Drain(); len(got) != 1 {
		t.Fatalf("first drain = %d impacts, want 1", len(got))
	}
	if got := q.Drain(); got != nil {
		t.Errorf("second drain = %v, want nil", got)
	}
	if q.Len() != 0 {
		t.Errorf("Len after drain = %d, want 0", q.Len())
	}
}
