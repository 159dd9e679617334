// Package events provides the in-process event bus used to hand published state
// from producers (poller, chart streams) to consumers (SSE, logging).
package events

import "time"

// EventType represents different event types
type EventType string

const (
	PortfolioUpdated     EventType = "PORTFOLIO_UPDATED"
	PortfolioFetchFailed EventType = "PORTFOLIO_FETCH_FAILED"
	ChartUpdated         EventType = "CHART_UPDATED"
	ChartError           EventType = "CHART_ERROR"
	StreamStatusChanged  EventType = "STREAM_STATUS_CHANGED"
	AccountChanged       EventType = "ACCOUNT_CHANGED"
	ErrorOccurred        EventType = "ERROR_OCCURRED"
)

// AllTypes lists every event type, in a stable order, for subscribers that want everything.
var AllTypes = []EventType{
	PortfolioUpdated,
	PortfolioFetchFailed,
	ChartUpdated,
	ChartError,
	StreamStatusChanged,
	AccountChanged,
	ErrorOccurred,
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
