// Package sanitize cleans article fields before they reach the save path.
// Sanitization never fails; invalid input is coerced to a safe value and the
// caller logs at warning.
package sanitize

import (
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxHeadlineLen bounds stored headline length.
	MaxHeadlineLen = 500
	// MaxSummaryLen bounds stored summary length.
	MaxSummaryLen = 2000
	// MaxURLLen bounds stored URL length.
	MaxURLLen = 500

	// floatLimit clips absurd magnitudes that would otherwise poison
	// downstream aggregation.
	floatLimit = 1e10
)

// Text strips null bytes and control characters (keeping tab, newline and
// carriage return), normalizes whitespace runs to single spaces, trims, and
// caps the result at maxLen.
func Text(s string, maxLen int) string {
	if s == "" {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == 0:
			// drop null bytes
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(' ')
		case unicode.IsControl(r):
			// drop other control characters
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.Join(strings.Fields(b.String()), " ")
	if maxLen > 0 && len(cleaned) > maxLen {
		// Back off to a rune boundary so the cut never leaves invalid UTF-8.
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut]
	}
	return cleaned
}

// Float coerces NaN and +/-Inf to 0.0 and clips values outside +/-1e10.
func Float(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	if v > floatLimit {
		return floatLimit
	}
	if v < -floatLimit {
		return -floatLimit
	}
	return v
}

// URL validates that a URL is printable and short enough; anything else
// collapses to the empty string.
func URL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || len(u) > MaxURLLen {
		return ""
	}
	for _, r := range u {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return ""
		}
	}
	return u
}

// PublishTimeMs validates a publish timestamp (ms) against the year range
// [1900, 2100]; out-of-range values collapse to now.
func PublishTimeMs(tsMs int64, now time.Time) int64 {
	t := time.UnixMilli(tsMs).UTC()
	if t.Year() < 1900 || t.Year() > 2100 {
		return now.UnixMilli()
	}
	return tsMs
}
