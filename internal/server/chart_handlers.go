package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/growin/growin/internal/modules/charts"
)

// ChartResponse is a chart stream's merged state.
type ChartResponse struct {
	charts.ChartState
	Connected bool `json:"connected"`
	Total     int  `json:"total_points"`
}

// IndicatorsResponse holds indicators and stats for a chart's series.
type IndicatorsResponse struct {
	Symbol string `json:"symbol"`
	charts.IndicatorSet
	Stats charts.SeriesStats `json:"stats"`
}

// handleChart returns the merged chart state, optionally downsampled with ?points=.
// The symbol's stream is started on first request.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	stream, ok := s.chartStream(w, r)
	if !ok {
		return
	}

	target, hasTarget, err := queryInt(r, "points")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state := stream.Merger().Snapshot()
	total := len(state.Points)
	if hasTarget {
		state.Points = charts.Downsample(state.Points, target)
	}

	s.writeJSON(w, http.StatusOK, ChartResponse{
		ChartState: state,
		Connected:  stream.IsConnected(),
		Total:      total,
	})
}

// handleChartIndicators returns SMA, EMA and RSI over the merged series.
func (s *Server) handleChartIndicators(w http.ResponseWriter, r *http.Request) {
	stream, ok := s.chartStream(w, r)
	if !ok {
		return
	}

	state := stream.Merger().Snapshot()
	s.writeJSON(w, http.StatusOK, IndicatorsResponse{
		Symbol:       state.Symbol,
		IndicatorSet: charts.Indicators(state.Points),
		Stats:        charts.Stats(state.Points),
	})
}

func (s *Server) chartStream(w http.ResponseWriter, r *http.Request) (*charts.Stream, bool) {
	if s.charts == nil {
		s.writeError(w, http.StatusServiceUnavailable, "chart streaming disabled")
		return nil, false
	}

	symbol := charts.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return nil, false
	}
	return s.charts.Get(symbol), true
}
