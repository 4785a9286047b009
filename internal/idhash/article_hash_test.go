package idhash

import (
	"strings"
	"testing"
)

func TestComputeArticleHash(t *testing.T) {
	h := ComputeArticleHash("company", "https://example.com/a", "Apple beats estimates")

	if len(h) != 32 {
		t.Errorf("hash length = %d, want 32", len(h))
	}
	if h != strings.ToLower(h) {
		t.Error("hash should be lowercase hex")
	}
}

func TestComputeArticleHashDeterministic(t *testing.T) {
	h1 := ComputeArticleHash("rss", "https://example.com/b", "Markets rally")
	h2 := ComputeArticleHash("rss", "https://example.com/b", "Markets rally")

	if h1 != h2 {
		t.Errorf("same inputs produced different hashes: %s vs %s", h1, h2)
	}
}

func TestComputeArticleHashDiffersBySource(t *testing.T) {
	// Cross-source duplicates are permitted and counted independently.
	h1 := ComputeArticleHash("company", "https://example.com/c", "Fed holds rates")
	h2 := ComputeArticleHash("market", "https://example.com/c", "Fed holds rates")

	if h1 == h2 {
		t.Error("different sources should produce different hashes")
	}
}

func TestComputeArticleHashHeadlinePrefix(t *testing.T) {
	long := strings.Repeat("x", 64)

	// Edits past the 64-char prefix do not change the hash.
	h1 := ComputeArticleHash("rss", "https://example.com/d", long+"tail one")
	h2 := ComputeArticleHash("rss", "https://example.com/d", long+"tail two")
	if h1 != h2 {
		t.Error("headline tail beyond prefix should not affect hash")
	}

	// Edits inside the prefix do.
	h3 := ComputeArticleHash("rss", "https://example.com/d", "y"+long[1:])
	if h1 == h3 {
		t.Error("headline prefix change should affect hash")
	}
}
