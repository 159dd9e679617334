package charts

import (
	"context"
	"sync"
	"time"

	"github.com/growin/growin/internal/events"
	"github.com/rs/zerolog"
)

// ChartState is a copy of a merger's published state.
type ChartState struct {
	Symbol        string    `json:"symbol"`
	Points        []Point   `json:"points"`
	LastPrice     *float64  `json:"last_price,omitempty"`
	Change        *float64  `json:"change,omitempty"`
	ChangePercent *float64  `json:"change_percent,omitempty"`
	Error         string    `json:"error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Merger applies socket messages to a bounded series in receive order.
// Apply is the only writer; Snapshot may be called from any goroutine.
type Merger struct {
	symbol string
	events *events.Manager
	log    zerolog.Logger
	now    func() time.Time

	mu            sync.RWMutex
	series        *Series
	lastPrice     *float64
	change        *float64
	changePercent *float64
	lastErr       string
	updatedAt     time.Time
}

// NewMerger creates a merger for symbol. eventManager is optional.
func NewMerger(symbol string, eventManager *events.Manager, log zerolog.Logger) *Merger {
	return &Merger{
		symbol: symbol,
		events: eventManager,
		log:    log.With().Str("component", "chart_merger").Str("symbol", symbol).Logger(),
		now:    time.Now,
		series: NewSeries(MaxSeriesPoints),
	}
}

// Run applies messages from in until ctx is done or in is closed.
func (m *Merger) Run(ctx context.Context, in <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			m.Apply(msg)
		}
	}
}

// Apply applies one message and reports whether the state changed.
func (m *Merger) Apply(msg Message) bool {
	var changed bool

	m.mu.Lock()
	switch msg := msg.(type) {
	case InitMessage:
		m.series.Replace(msg.Points)
		m.lastErr = ""
		changed = true
	case TickMessage:
		changed = m.series.AppendTick(msg.Point)
	case QuoteMessage:
		if msg.Price != nil {
			m.lastPrice = copyFloat(msg.Price)
			changed = true
		}
		if msg.Change != nil {
			m.change = copyFloat(msg.Change)
			changed = true
		}
		if msg.ChangePercent != nil {
			m.changePercent = copyFloat(msg.ChangePercent)
			changed = true
		}
	case ErrorMessage:
		m.lastErr = msg.Message
		changed = true
	default:
		// unrecognized types are ignored
	}
	if changed {
		m.updatedAt = m.now()
	}
	points := m.series.Len()
	last, hasLast := m.series.Last()
	price := copyFloat(m.lastPrice)
	m.mu.Unlock()

	if !changed {
		return false
	}

	m.log.Debug().Str("type", msg.Type()).Int("points", points).Msg("Applied chart message")
	m.emit(msg, points, last, hasLast, price)
	return true
}

func (m *Merger) emit(msg Message, points int, last Point, hasLast bool, price *float64) {
	if m.events == nil {
		return
	}

	if errMsg, ok := msg.(ErrorMessage); ok {
		m.events.EmitTyped("charts", &events.ChartErrorData{Symbol: m.symbol, Message: errMsg.Message})
		return
	}

	data := &events.ChartUpdatedData{
		Symbol:    m.symbol,
		Kind:      msg.Type(),
		Points:    points,
		LastPrice: price,
	}
	if hasLast {
		lastClose := last.Close
		data.LastClose = &lastClose
	}
	m.events.EmitTyped("charts", data)
}

// Snapshot returns a copy of the current state.
func (m *Merger) Snapshot() ChartState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return ChartState{
		Symbol:        m.symbol,
		Points:        m.series.Points(),
		LastPrice:     copyFloat(m.lastPrice),
		Change:        copyFloat(m.change),
		ChangePercent: copyFloat(m.changePercent),
		Error:         m.lastErr,
		UpdatedAt:     m.updatedAt,
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
