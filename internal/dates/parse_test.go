package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParse_OrderedFormats(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected time.Time
	}{
		{
			name:     "iso8601 with fractional seconds",
			input:    "2024-03-01T14:30:15.250Z",
			expected: time.Date(2024, 3, 1, 14, 30, 15, 250_000_000, time.UTC),
		},
		{
			name:     "python isoformat without offset",
			input:    "2024-03-01T14:30:15.123456",
			expected: time.Date(2024, 3, 1, 14, 30, 15, 123_456_000, time.UTC),
		},
		{
			name:     "iso8601 without fractional seconds",
			input:    "2024-03-01T14:30:15+02:00",
			expected: time.Date(2024, 3, 1, 12, 30, 15, 0, time.UTC),
		},
		{
			name:     "unix seconds",
			input:    "1709303415",
			expected: time.Date(2024, 3, 1, 14, 30, 15, 0, time.UTC),
		},
		{
			name:     "unix milliseconds",
			input:    "1709303415000",
			expected: time.Date(2024, 3, 1, 14, 30, 15, 0, time.UTC),
		},
		{
			name:     "legacy date time with offset",
			input:    "2024-03-01 14:30:15+00:00",
			expected: time.Date(2024, 3, 1, 14, 30, 15, 0, time.UTC),
		},
		{
			name:     "legacy date time",
			input:    "2024-03-01 14:30:15",
			expected: time.Date(2024, 3, 1, 14, 30, 15, 0, time.UTC),
		},
		{
			name:     "date only",
			input:    "2024-03-01",
			expected: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseStrict(tc.input)
			assert.True(t, ok)
			assert.True(t, tc.expected.Equal(got), "expected %s, got %s", tc.expected, got)
		})
	}
}

func TestParse_TenDigitNumberIsSeconds(t *testing.T) {
	got := Parse("9999999999")
	assert.Equal(t, int64(9999999999), got.Unix())
}

func TestParse_GarbageFallsBackToNow(t *testing.T) {
	fixed := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	for _, input := range []string{"", "   ", "not a date", "{}", "!!!"} {
		assert.Equal(t, fixed, Parse(input), "input %q", input)
	}
}

func TestParseStrict_ReportsFailure(t *testing.T) {
	_, ok := ParseStrict("definitely not a timestamp")
	assert.False(t, ok)
}
