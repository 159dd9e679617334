package charts

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "AAPL", NormalizeSymbol("  aapl "))
	assert.Equal(t, "VUSA.L", NormalizeSymbol("vusa.l"))
	assert.Empty(t, NormalizeSymbol("   "))
}

func TestRegistry_GetCreatesOneStreamPerSymbol(t *testing.T) {
	var connections atomic.Int32
	server := chartServer(t, []string{
		`{"type": "chart_init", "data": [{"timestamp": "1700000000", "close": 5}]}`,
	}, &connections)

	var requested []string
	registry := NewRegistry(context.Background(), RegistryConfig{
		URLFor: func(symbol string) string {
			requested = append(requested, symbol)
			return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/chart/" + symbol
		},
		ReconnectDelay: time.Hour,
	}, zerolog.Nop())
	defer registry.StopAll()

	first := registry.Get("aapl")
	second := registry.Get(" AAPL ")
	require.Same(t, first, second)
	assert.Equal(t, []string{"AAPL"}, requested)

	require.Eventually(t, func() bool {
		return len(first.Merger().Snapshot().Points) == 1
	}, 2*time.Second, 10*time.Millisecond)

	registry.Get("tsla")
	assert.Equal(t, []string{"AAPL", "TSLA"}, registry.Symbols())

	found, ok := registry.Lookup("Aapl")
	assert.True(t, ok)
	assert.Same(t, first, found)

	_, ok = registry.Lookup("MSFT")
	assert.False(t, ok)
}

func TestRegistry_StopAllForgetsStreams(t *testing.T) {
	registry := NewRegistry(context.Background(), RegistryConfig{
		URLFor:         func(symbol string) string { return "ws://127.0.0.1:1/ws/chart/" + symbol },
		ReconnectDelay: time.Hour,
	}, zerolog.Nop())

	stream := registry.Get("AAPL")
	registry.StopAll()

	assert.Empty(t, registry.Symbols())
	assert.False(t, stream.IsConnected())
	assert.NotSame(t, stream, registry.Get("AAPL"))
	registry.StopAll()
}
