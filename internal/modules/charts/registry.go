package charts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/growin/growin/internal/events"
	"github.com/growin/growin/internal/metrics"
	"github.com/rs/zerolog"
)

// RegistryConfig configures the streams a Registry creates.
type RegistryConfig struct {
	// URLFor maps a symbol to its socket URL.
	URLFor         func(symbol string) string
	ReconnectDelay time.Duration
	Events         *events.Manager
	Metrics        *metrics.Metrics
}

// Registry lazily creates one running stream per symbol.
type Registry struct {
	ctx context.Context
	cfg RegistryConfig
	log zerolog.Logger

	mu      sync.Mutex
	streams map[string]*Stream
}

// NewRegistry creates a registry whose streams live until ctx is done or StopAll.
func NewRegistry(ctx context.Context, cfg RegistryConfig, log zerolog.Logger) *Registry {
	return &Registry{
		ctx:     ctx,
		cfg:     cfg,
		log:     log,
		streams: make(map[string]*Stream),
	}
}

// NormalizeSymbol upper-cases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Get returns the stream for symbol, starting one on first use.
func (r *Registry) Get(symbol string) *Stream {
	symbol = NormalizeSymbol(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.streams[symbol]; ok {
		return s
	}

	merger := NewMerger(symbol, r.cfg.Events, r.log)
	s := NewStream(StreamConfig{
		URL:            r.cfg.URLFor(symbol),
		Symbol:         symbol,
		ReconnectDelay: r.cfg.ReconnectDelay,
		Events:         r.cfg.Events,
		Metrics:        r.cfg.Metrics,
	}, merger, r.log)
	s.Start(r.ctx)

	r.streams[symbol] = s
	return s
}

// Lookup returns the stream for symbol without creating one.
func (r *Registry) Lookup(symbol string) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[NormalizeSymbol(symbol)]
	return s, ok
}

// Symbols lists the symbols with a stream, sorted.
func (r *Registry) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.streams))
	for symbol := range r.streams {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// StopAll stops and forgets every stream.
func (r *Registry) StopAll() {
	r.mu.Lock()
	streams := r.streams
	r.streams = make(map[string]*Stream)
	r.mu.Unlock()

	for _, s := range streams {
		s.Stop()
	}
}
