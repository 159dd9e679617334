// Package portfolio aggregates backend portfolio snapshots into per-account views
// and allocation buckets.
package portfolio

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// AccountFilter selects which brokerage account(s) the backend reports on.
type AccountFilter string

const (
	AccountAll    AccountFilter = "all"
	AccountInvest AccountFilter = "invest"
	AccountISA    AccountFilter = "isa"
)

// ParseAccountFilter normalizes and validates an account filter string.
func ParseAccountFilter(s string) (AccountFilter, error) {
	switch f := AccountFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case AccountAll, AccountInvest, AccountISA:
		return f, nil
	case "":
		return AccountAll, nil
	default:
		return "", fmt.Errorf("unknown account type %q (must be all, invest or isa)", s)
	}
}

// NormalizeAccountTag lower-cases and trims an account tag for bucketing.
func NormalizeAccountTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// CashBalance is the total and free (uninvested) cash of an account.
type CashBalance struct {
	Total float64 `json:"total"`
	Free  float64 `json:"free"`
}

// UnmarshalJSON accepts both the object form and a bare number (older backends).
func (c *CashBalance) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		c.Total, c.Free = n, n
		return nil
	}
	type plain CashBalance
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = CashBalance(p)
	return nil
}

// AccountSummary holds the totals of one account.
type AccountSummary struct {
	TotalInvested   float64     `json:"total_invested"`
	CurrentValue    float64     `json:"current_value"`
	TotalPnL        float64     `json:"total_pnl"`
	TotalPnLPercent float64     `json:"total_pnl_percent"`
	CashBalance     CashBalance `json:"cash_balance"`
	Status          string      `json:"status,omitempty"`
	Error           string      `json:"error,omitempty"`

	// Derived is true when the summary was synthesized from positions rather than
	// reported by the backend.
	Derived bool `json:"-"`
}

// SummaryField is a bit set of the top-level totals a summary carries.
type SummaryField uint8

const (
	FieldTotalPositions SummaryField = 1 << iota
	FieldTotalInvested
	FieldCurrentValue
	FieldTotalPnL
	FieldTotalPnLPercent
	FieldNetDeposits

	AllSummaryFields = FieldTotalPositions | FieldTotalInvested | FieldCurrentValue |
		FieldTotalPnL | FieldTotalPnLPercent | FieldNetDeposits
)

var summaryFieldKeys = map[string]SummaryField{
	"total_positions":   FieldTotalPositions,
	"total_invested":    FieldTotalInvested,
	"current_value":     FieldCurrentValue,
	"total_pnl":         FieldTotalPnL,
	"total_pnl_percent": FieldTotalPnLPercent,
	"net_deposits":      FieldNetDeposits,
}

// Summary holds the aggregate totals of a snapshot.
type Summary struct {
	TotalPositions  int                       `json:"total_positions"`
	TotalInvested   float64                   `json:"total_invested"`
	CurrentValue    float64                   `json:"current_value"`
	TotalPnL        float64                   `json:"total_pnl"`
	TotalPnLPercent float64                   `json:"total_pnl_percent"`
	NetDeposits     float64                   `json:"net_deposits"`
	CashBalance     *CashBalance              `json:"cash_balance,omitempty"`
	Accounts        map[string]AccountSummary `json:"accounts,omitempty"`

	// Reported marks the totals the backend actually sent. Unset totals are
	// derived from positions during aggregation.
	Reported SummaryField `json:"-"`
}

// Has reports whether every field in f was reported.
func (s Summary) Has(f SummaryField) bool {
	return s.Reported&f == f
}

// UnmarshalJSON records which totals are present and non-null.
func (s *Summary) UnmarshalJSON(data []byte) error {
	type plain Summary
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}

	*s = Summary(p)
	s.Reported = 0
	for key, field := range summaryFieldKeys {
		if raw, ok := keys[key]; ok && string(raw) != "null" {
			s.Reported |= field
		}
	}
	return nil
}

// Position is one holding. The same ticker may appear once per account.
// Numeric fields are pointers so that absent values are distinguishable from zero.
type Position struct {
	Ticker       string   `json:"ticker"`
	Name         string   `json:"name,omitempty"`
	Quantity     *float64 `json:"quantity,omitempty"`
	CurrentPrice *float64 `json:"currentPrice,omitempty"`
	AveragePrice *float64 `json:"averagePrice,omitempty"`
	PPL          *float64 `json:"ppl,omitempty"`
	AccountType  string   `json:"accountType,omitempty"`
	Currency     string   `json:"currency,omitempty"`
}

// UnmarshalJSON accepts the backend's snake_case account tag and unrealizedPnl alias.
func (p *Position) UnmarshalJSON(data []byte) error {
	type plain Position
	var aux struct {
		plain
		AccountTypeSnake *string  `json:"account_type"`
		UnrealizedPnL    *float64 `json:"unrealizedPnl"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Position(aux.plain)
	if p.AccountType == "" && aux.AccountTypeSnake != nil {
		p.AccountType = *aux.AccountTypeSnake
	}
	if p.PPL == nil && aux.UnrealizedPnL != nil {
		p.PPL = aux.UnrealizedPnL
	}
	return nil
}

// Key identifies a position: ticker within account.
type Key struct {
	Ticker      string
	AccountType string
}

// Key returns the identity of the position.
func (p Position) Key() Key {
	return Key{Ticker: p.Ticker, AccountType: NormalizeAccountTag(p.AccountType)}
}

// QuantityOrZero returns the quantity for display, zero when absent.
func (p Position) QuantityOrZero() float64 { return finiteOrZero(p.Quantity) }

// CurrentPriceOrZero returns the current price for display, zero when absent.
func (p Position) CurrentPriceOrZero() float64 { return finiteOrZero(p.CurrentPrice) }

// AveragePriceOrZero returns the average cost for display, zero when absent.
func (p Position) AveragePriceOrZero() float64 { return finiteOrZero(p.AveragePrice) }

// PPLOrZero returns the profit/loss for display, zero when absent.
func (p Position) PPLOrZero() float64 { return finiteOrZero(p.PPL) }

// MarketValue returns price × quantity. ok is false when either factor is missing
// or non-finite, in which case the value is zero.
func (p Position) MarketValue() (float64, bool) {
	return product(p.CurrentPrice, p.Quantity)
}

// CostBasis returns average price × quantity with the same semantics as MarketValue.
func (p Position) CostBasis() (float64, bool) {
	return product(p.AveragePrice, p.Quantity)
}

func product(a, b *float64) (float64, bool) {
	if !isFinite(a) || !isFinite(b) {
		return 0, false
	}
	v := *a * *b
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func isFinite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func finiteOrZero(v *float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return *v
}

// Snapshot is one fetched copy of the full portfolio state.
type Snapshot struct {
	Summary           *Summary   `json:"summary,omitempty"`
	Positions         []Position `json:"positions,omitempty"`
	RequestedAccount  string     `json:"requested_account,omitempty"`
	ActiveAccountType string     `json:"active_account_type,omitempty"`
	Error             string     `json:"error,omitempty"`
}

// UnmarshalJSON lifts a top-level accounts map (legacy schema) into the summary.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type plain Snapshot
	var aux struct {
		plain
		Accounts map[string]AccountSummary `json:"accounts"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Snapshot(aux.plain)
	if aux.Accounts != nil {
		if s.Summary == nil {
			s.Summary = &Summary{}
		}
		if s.Summary.Accounts == nil {
			s.Summary.Accounts = aux.Accounts
		}
	}
	return nil
}

// AllocationItem is one slice of an allocation chart.
type AllocationItem struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// OthersLabel is the label of the remainder bucket.
const OthersLabel = "Others"

// AccountView is one account's summary and the positions tagged with it.
type AccountView struct {
	Key       string         `json:"key"`
	Summary   AccountSummary `json:"summary"`
	Derived   bool           `json:"derived"`
	Positions []Position     `json:"positions"`
}

// Result is the output of aggregating one snapshot.
type Result struct {
	PerAccount     map[string]AccountView `json:"per_account"`
	TopAllocations []AllocationItem       `json:"top_allocations"`
	Totals         Summary                `json:"totals"`
	Untagged       int                    `json:"untagged_positions"`
	AggregatedAt   time.Time              `json:"aggregated_at"`
}
