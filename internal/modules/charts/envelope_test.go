package charts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	testCases := []struct {
		name  string
		frame string
		check func(t *testing.T, msg Message)
	}{
		{
			name:  "init",
			frame: `{"type": "chart_init", "data": [{"timestamp": "2024-01-01T00:00:00", "close": 1}, {"timestamp": "2024-01-02T00:00:00", "close": 2}]}`,
			check: func(t *testing.T, msg Message) {
				m, ok := msg.(InitMessage)
				require.True(t, ok)
				assert.Len(t, m.Points, 2)
				assert.Equal(t, TypeInit, m.Type())
			},
		},
		{
			name:  "update is an init alias",
			frame: `{"type": "chart_update", "symbol": "AAPL", "data": [{"timestamp": 1700000000, "close": 3}], "metadata": {}, "timestamp": 12.5}`,
			check: func(t *testing.T, msg Message) {
				m, ok := msg.(InitMessage)
				require.True(t, ok)
				assert.Equal(t, "AAPL", m.Symbol)
				assert.Equal(t, TypeUpdate, m.Type())
				require.Len(t, m.Points, 1)
				assert.Equal(t, "1700000000", m.Points[0].Timestamp)
			},
		},
		{
			name:  "tick under data",
			frame: `{"type": "chart_tick", "data": {"timestamp": "2024-01-03T00:00:00", "close": 5}}`,
			check: func(t *testing.T, msg Message) {
				m, ok := msg.(TickMessage)
				require.True(t, ok)
				assert.Equal(t, 5.0, m.Point.Close)
			},
		},
		{
			name:  "tick under point",
			frame: `{"type": "chart_tick", "point": {"time": "2024-01-03T00:00:00", "close": 6}}`,
			check: func(t *testing.T, msg Message) {
				m, ok := msg.(TickMessage)
				require.True(t, ok)
				assert.Equal(t, "2024-01-03T00:00:00", m.Point.Timestamp)
			},
		},
		{
			name:  "quote",
			frame: `{"type": "realtime_quote", "price": 101.5, "change": -1.5, "changePercent": -1.46}`,
			check: func(t *testing.T, msg Message) {
				m, ok := msg.(QuoteMessage)
				require.True(t, ok)
				assert.Equal(t, 101.5, *m.Price)
				assert.Equal(t, -1.5, *m.Change)
				assert.Equal(t, -1.46, *m.ChangePercent)
			},
		},
		{
			name:  "error",
			frame: `{"type": "error", "message": "Chart data temporarily unavailable", "fallback": true}`,
			check: func(t *testing.T, msg Message) {
				assert.Equal(t, ErrorMessage{Message: "Chart data temporarily unavailable"}, msg)
			},
		},
		{
			name:  "unknown",
			frame: `{"type": "news_flash", "headline": "x"}`,
			check: func(t *testing.T, msg Message) {
				assert.Equal(t, UnknownMessage{Kind: "news_flash"}, msg)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tc.frame))
			require.NoError(t, err)
			tc.check(t, msg)
		})
	}
}

func TestDecodeMessage_Malformed(t *testing.T) {
	for name, frame := range map[string]string{
		"not json":       `{"type": "chart_tick"`,
		"array":          `[1, 2]`,
		"missing type":   `{"data": []}`,
		"tick no point":  `{"type": "chart_tick"}`,
		"tick bad point": `{"type": "chart_tick", "data": {"timestamp": {}}}`,
		"bad init":       `{"type": "chart_init", "data": "nope"}`,
		"tick no close":  `{"type": "chart_tick", "data": {"timestamp": "2024-01-02T00:00:00Z"}}`,
		"init no close":  `{"type": "chart_init", "data": [{"timestamp": "2024-01-02T00:00:00Z"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(frame))
			assert.Error(t, err)
		})
	}
}
