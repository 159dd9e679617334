// Package dates normalizes the heterogeneous timestamp renderings produced by the
// backend and its market-data providers into time.Time.
package dates

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// millisThreshold separates Unix seconds from Unix milliseconds.
const millisThreshold = 10_000_000_000

var (
	fractionalLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999", // Python isoformat() without offset
	}

	wholeSecondLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
	}

	legacyLayouts = []string{
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

// now is swapped in tests.
var now = time.Now

// Parse converts text to a timestamp. It never fails: input nothing understands
// yields the current time.
func Parse(text string) time.Time {
	if t, ok := ParseStrict(text); ok {
		return t
	}
	return now()
}

// ParseStrict runs the same ordered attempts as Parse but reports whether any matched.
func ParseStrict(text string) (time.Time, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, false
	}

	if strings.Contains(s, ".") {
		if t, ok := tryLayouts(s, fractionalLayouts); ok {
			return t, true
		}
	}
	if t, ok := tryLayouts(s, wholeSecondLayouts); ok {
		return t, true
	}
	if t, ok := parseEpoch(s); ok {
		return t, true
	}
	if t, ok := tryLayouts(s, legacyLayouts); ok {
		return t, true
	}

	t, err := dateparse.ParseStrict(s)
	if err == nil {
		return t, true
	}
	return time.Time{}, false
}

func tryLayouts(s string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseEpoch interprets a bare number as Unix seconds, or milliseconds when its
// magnitude is above millisThreshold.
func parseEpoch(s string) (time.Time, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, false
	}
	if math.Abs(v) > millisThreshold {
		v /= 1000
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), true
}
