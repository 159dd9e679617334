// Package charts merges live chart socket messages into a bounded series and
// derives display helpers (downsampling, indicators) from it.
package charts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/growin/growin/internal/dates"
)

// Point is one OHLCV bar. Timestamp keeps the backend's rendering, which may be an
// ISO string or a Unix number.
type Point struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// ErrMissingClose is returned when a point has no close price.
var ErrMissingClose = errors.New("chart point has no close")

// UnmarshalJSON accepts the timestamp as a string or a number, and "time" as an
// alias of "timestamp". Close is required; the other prices default to zero.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp json.RawMessage `json:"timestamp"`
		Time      json.RawMessage `json:"time"`
		Open      *float64        `json:"open"`
		High      *float64        `json:"high"`
		Low       *float64        `json:"low"`
		Close     *float64        `json:"close"`
		Volume    *float64        `json:"volume"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Close == nil {
		return ErrMissingClose
	}

	ts := raw.Timestamp
	if len(ts) == 0 || bytes.Equal(ts, []byte("null")) {
		ts = raw.Time
	}
	stamp, err := timestampText(ts)
	if err != nil {
		return err
	}

	*p = Point{
		Timestamp: stamp,
		Open:      deref(raw.Open),
		High:      deref(raw.High),
		Low:       deref(raw.Low),
		Close:     *raw.Close,
		Volume:    deref(raw.Volume),
	}
	return nil
}

func timestampText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("timestamp is neither string nor number: %s", raw)
	}
	return n.String(), nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Time parses the timestamp. ok is false when it is not understood.
func (p Point) Time() (time.Time, bool) {
	return dates.ParseStrict(p.Timestamp)
}

// SameTime reports whether two points carry the same timestamp. Parsed instants are
// compared when both parse, so "1700000000" and its millisecond form are equal.
func (p Point) SameTime(other Point) bool {
	a, okA := p.Time()
	b, okB := other.Time()
	if okA && okB {
		return a.Equal(b)
	}
	return p.Timestamp == other.Timestamp
}

// Closes extracts the close prices in order.
func Closes(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Close
	}
	return out
}

