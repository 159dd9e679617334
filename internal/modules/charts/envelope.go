package charts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Socket message types
const (
	TypeInit   = "chart_init"
	TypeUpdate = "chart_update"
	TypeTick   = "chart_tick"
	TypeQuote  = "realtime_quote"
	TypeError  = "error"
)

// ErrMissingType is returned for frames without a type discriminator.
var ErrMissingType = errors.New("message has no type")

// Message is one decoded socket frame.
type Message interface {
	Type() string
}

// InitMessage replaces the whole series. chart_update frames decode to it too.
type InitMessage struct {
	Kind   string
	Symbol string
	Points []Point
}

// TickMessage appends one point.
type TickMessage struct {
	Point Point
}

// QuoteMessage updates the quote fields; absent fields are left as they were.
type QuoteMessage struct {
	Price         *float64
	Change        *float64
	ChangePercent *float64
}

// ErrorMessage carries a user-visible error.
type ErrorMessage struct {
	Message string
}

// UnknownMessage is any frame with an unrecognized type. Applying it is a no-op.
type UnknownMessage struct {
	Kind string
}

func (m InitMessage) Type() string {
	if m.Kind == "" {
		return TypeInit
	}
	return m.Kind
}
func (TickMessage) Type() string      { return TypeTick }
func (QuoteMessage) Type() string     { return TypeQuote }
func (ErrorMessage) Type() string     { return TypeError }
func (m UnknownMessage) Type() string { return m.Kind }

type envelope struct {
	Type string `json:"type"`
}

type seriesPayload struct {
	Symbol string  `json:"symbol"`
	Data   []Point `json:"data"`
	Points []Point `json:"points"`
}

type tickPayload struct {
	Data  json.RawMessage `json:"data"`
	Point json.RawMessage `json:"point"`
}

type quotePayload struct {
	Price            *float64 `json:"price"`
	LastPrice        *float64 `json:"last_price"`
	Change           *float64 `json:"change"`
	ChangePercent    *float64 `json:"change_percent"`
	ChangePercentAlt *float64 `json:"changePercent"`
}

type errorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Detail  string `json:"detail"`
}

// DecodeMessage decodes a frame in two passes: the type discriminator first, then
// the payload for that type. Unknown types decode to UnknownMessage without error.
func DecodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}

	switch env.Type {
	case TypeInit, TypeUpdate:
		var p seriesPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		points := p.Data
		if points == nil {
			points = p.Points
		}
		if points == nil {
			points = []Point{}
		}
		return InitMessage{Kind: env.Type, Symbol: p.Symbol, Points: points}, nil

	case TypeTick:
		var p tickPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		raw := p.Data
		if isNull(raw) {
			raw = p.Point
		}
		if isNull(raw) {
			return nil, fmt.Errorf("%s has no point", env.Type)
		}
		var point Point
		if err := json.Unmarshal(raw, &point); err != nil {
			return nil, fmt.Errorf("failed to decode %s point: %w", env.Type, err)
		}
		return TickMessage{Point: point}, nil

	case TypeQuote:
		var p quotePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		msg := QuoteMessage{Price: p.Price, Change: p.Change, ChangePercent: p.ChangePercent}
		if msg.Price == nil {
			msg.Price = p.LastPrice
		}
		if msg.ChangePercent == nil {
			msg.ChangePercent = p.ChangePercentAlt
		}
		return msg, nil

	case TypeError:
		var p errorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		text := firstNonEmpty(p.Message, p.Error, p.Detail)
		if text == "" {
			text = "chart stream error"
		}
		return ErrorMessage{Message: text}, nil

	default:
		return UnknownMessage{Kind: env.Type}, nil
	}
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
