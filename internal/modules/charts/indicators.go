package charts

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Indicator periods
const (
	SMAPeriod = 20
	EMAPeriod = 20
	RSIPeriod = 14
)

// IndicatorSet holds one value per input point. Entries inside an indicator's
// warm-up window, or for too-short input, are nil.
type IndicatorSet struct {
	SMA []*float64 `json:"sma"`
	EMA []*float64 `json:"ema"`
	RSI []*float64 `json:"rsi"`
}

// Indicators computes SMA, EMA and RSI over the close prices.
func Indicators(points []Point) IndicatorSet {
	closes := Closes(points)
	set := IndicatorSet{
		SMA: make([]*float64, len(closes)),
		EMA: make([]*float64, len(closes)),
		RSI: make([]*float64, len(closes)),
	}

	if len(closes) >= SMAPeriod {
		fill(set.SMA, talib.Sma(closes, SMAPeriod), SMAPeriod-1)
	}
	if len(closes) >= EMAPeriod {
		fill(set.EMA, talib.Ema(closes, EMAPeriod), EMAPeriod-1)
	}
	if len(closes) >= RSIPeriod+1 {
		fill(set.RSI, talib.Rsi(closes, RSIPeriod), RSIPeriod)
	}
	return set
}

// fill copies values from index lookback on, skipping non-finite results.
func fill(dst []*float64, values []float64, lookback int) {
	for i := lookback; i < len(dst) && i < len(values); i++ {
		v := values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		dst[i] = &v
	}
}

// SeriesStats summarizes the close prices of a series.
type SeriesStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Last   float64 `json:"last"`
	Change float64 `json:"change_percent"`
}

// Stats computes close-price statistics. Empty input yields the zero value.
func Stats(points []Point) SeriesStats {
	closes := Closes(points)
	if len(closes) == 0 {
		return SeriesStats{}
	}

	s := SeriesStats{
		Count: len(closes),
		Min:   floats.Min(closes),
		Max:   floats.Max(closes),
		Mean:  stat.Mean(closes, nil),
		Last:  closes[len(closes)-1],
	}
	if len(closes) > 1 {
		s.StdDev = stat.StdDev(closes, nil)
	}
	if first := closes[0]; first != 0 {
		s.Change = (s.Last - first) / first * 100
	}
	return s
}
