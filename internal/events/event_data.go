package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// PortfolioUpdatedData contains data for PortfolioUpdated events
type PortfolioUpdatedData struct {
	Account      string  `json:"account"`
	Positions    int     `json:"positions"`
	CurrentValue float64 `json:"current_value"`
	TotalPnL     float64 `json:"total_pnl"`
	Cycle        int     `json:"cycle"`
}

// EventType returns the event type for PortfolioUpdatedData
func (d *PortfolioUpdatedData) EventType() EventType {
	return PortfolioUpdated
}

// PortfolioFetchFailedData contains data for PortfolioFetchFailed events
type PortfolioFetchFailedData struct {
	Account string `json:"account"`
	Error   string `json:"error"`
	Cycle   int    `json:"cycle"`
}

// EventType returns the event type for PortfolioFetchFailedData
func (d *PortfolioFetchFailedData) EventType() EventType {
	return PortfolioFetchFailed
}

// ChartUpdatedData contains data for ChartUpdated events
type ChartUpdatedData struct {
	Symbol    string   `json:"symbol"`
	Kind      string   `json:"kind"`
	Points    int      `json:"points"`
	LastClose *float64 `json:"last_close,omitempty"`
	LastPrice *float64 `json:"last_price,omitempty"`
}

// EventType returns the event type for ChartUpdatedData
func (d *ChartUpdatedData) EventType() EventType {
	return ChartUpdated
}

// ChartErrorData contains data for ChartError events
type ChartErrorData struct {
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
}

// EventType returns the event type for ChartErrorData
func (d *ChartErrorData) EventType() EventType {
	return ChartError
}

// StreamStatusChangedData contains data for StreamStatusChanged events
type StreamStatusChangedData struct {
	Symbol    string `json:"symbol"`
	Connected bool   `json:"connected"`
}

// EventType returns the event type for StreamStatusChangedData
func (d *StreamStatusChangedData) EventType() EventType {
	return StreamStatusChanged
}

// AccountChangedData contains data for AccountChanged events
type AccountChangedData struct {
	Account string `json:"account"`
}

// EventType returns the event type for AccountChangedData
func (d *AccountChangedData) EventType() EventType {
	return AccountChanged
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
