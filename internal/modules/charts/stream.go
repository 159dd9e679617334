package charts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/growin/growin/internal/events"
	"github.com/growin/growin/internal/metrics"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	// DefaultReconnectDelay is the fixed wait between a socket failure and the next dial.
	DefaultReconnectDelay = 5 * time.Second

	dialTimeout = 30 * time.Second

	// chart_update frames carry the full series, well above the library's 32KiB default.
	readLimit = 8 << 20

	messageBuffer = 64
)

// StreamConfig configures a Stream.
type StreamConfig struct {
	URL            string
	Symbol         string
	ReconnectDelay time.Duration
	Events         *events.Manager
	Metrics        *metrics.Metrics
}

// Stream keeps a socket to the backend's chart endpoint open and feeds decoded
// messages to a Merger. Reconnects after a fixed delay, without limit, until stopped.
type Stream struct {
	url            string
	symbol         string
	reconnectDelay time.Duration
	merger         *Merger
	events         *events.Manager
	metrics        *metrics.Metrics
	log            zerolog.Logger

	mu        sync.RWMutex
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewStream creates a stream feeding merger.
func NewStream(cfg StreamConfig, merger *Merger, log zerolog.Logger) *Stream {
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &Stream{
		url:            cfg.URL,
		symbol:         cfg.Symbol,
		reconnectDelay: delay,
		merger:         merger,
		events:         cfg.Events,
		metrics:        cfg.Metrics,
		log:            log.With().Str("component", "chart_stream").Str("symbol", cfg.Symbol).Logger(),
	}
}

// Merger returns the merger this stream feeds.
func (s *Stream) Merger() *Merger {
	return s.merger
}

// Start runs the connect/read/reconnect loop in the background. Calling Start on
// a running stream is a no-op.
func (s *Stream) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx, s.done)
	s.log.Info().Str("url", s.url).Msg("Chart stream started")
}

// Stop cancels the loop and waits for the reader and merger to exit.
func (s *Stream) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info().Msg("Chart stream stopped")
}

// IsConnected reports whether a socket is currently open.
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Stream) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	msgs := make(chan Message, messageBuffer)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.merger.Run(ctx, msgs)
	}()
	defer wg.Wait()

	for {
		err := s.session(ctx, msgs)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn().Err(err).Dur("delay", s.reconnectDelay).Msg("Chart stream disconnected, reconnecting")

		timer := time.NewTimer(s.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.metrics.StreamReconnect()
	}
}

// session dials once and reads until the socket fails or ctx is done.
func (s *Stream) session(ctx context.Context, msgs chan<- Message) error {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to dial chart socket: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(readLimit)

	s.setConnected(true)
	defer s.setConnected(false)

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return fmt.Errorf("socket closed with status %d", status)
			}
			return fmt.Errorf("failed to read chart socket: %w", err)
		}

		if msgType != websocket.MessageText {
			s.log.Debug().Int("type", int(msgType)).Msg("Ignoring non-text message")
			continue
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			s.log.Warn().Err(err).Int("bytes", len(data)).Msg("Dropping undecodable chart message")
			s.metrics.StreamMessage("invalid")
			continue
		}
		s.metrics.StreamMessage(msg.Type())

		select {
		case msgs <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Stream) setConnected(connected bool) {
	s.mu.Lock()
	changed := s.connected != connected
	s.connected = connected
	s.mu.Unlock()

	if !changed {
		return
	}
	if connected {
		s.log.Info().Msg("Chart stream connected")
	}
	if s.events != nil {
		s.events.EmitTyped("charts", &events.StreamStatusChangedData{Symbol: s.symbol, Connected: connected})
	}
}

