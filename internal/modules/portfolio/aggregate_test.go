package portfolio

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func pos(ticker, account string, price, qty float64) Position {
	return Position{
		Ticker:       ticker,
		AccountType:  account,
		CurrentPrice: f(price),
		Quantity:     f(qty),
		AveragePrice: f(price),
		PPL:          f(0),
	}
}

func decodeSnapshot(t *testing.T, raw string) *Snapshot {
	t.Helper()
	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	return &s
}

func TestAggregate_EmptyAccountsMapSynthesizesFromPositions(t *testing.T) {
	snapshot := decodeSnapshot(t, `{
		"summary": {"accounts": {}},
		"positions": [
			{"ticker": "AAPL", "accountType": "invest", "currentPrice": 150, "quantity": 10, "averagePrice": 100, "ppl": 500}
		]
	}`)

	result := NewAggregator().Aggregate(snapshot)

	invest := result.PerAccount["invest"]
	assert.Equal(t, 1500.0, invest.Summary.CurrentValue)
	assert.Equal(t, 1000.0, invest.Summary.TotalInvested)
	assert.Equal(t, 500.0, invest.Summary.TotalPnL)
	assert.Equal(t, 50.0, invest.Summary.TotalPnLPercent)
	assert.True(t, invest.Derived)
	require.Len(t, invest.Positions, 1)

	isa := result.PerAccount["isa"]
	assert.Zero(t, isa.Summary.CurrentValue)
	assert.Zero(t, isa.Summary.TotalInvested)
	assert.Zero(t, isa.Summary.TotalPnL)
	assert.Zero(t, isa.Summary.CashBalance)
	assert.Empty(t, isa.Positions)
}

func TestAggregate_ServerAccountsAreUsedVerbatim(t *testing.T) {
	serverInvest := AccountSummary{
		TotalInvested:   1234.56,
		CurrentValue:    999.99,
		TotalPnL:        -234.57,
		TotalPnLPercent: -0.19,
		CashBalance:     CashBalance{Total: 50, Free: 25},
		Status:          "success",
	}
	serverISA := AccountSummary{Status: "error", Error: "No client available"}

	snapshot := &Snapshot{
		Summary: &Summary{Accounts: map[string]AccountSummary{
			"invest": serverInvest,
			"isa":    serverISA,
		}},
		Positions: []Position{
			pos("AAPL", "invest", 150, 10),
			pos("VOD", "isa", 1, 1000),
		},
	}

	result := NewAggregator().Aggregate(snapshot)

	assert.Equal(t, serverInvest, result.PerAccount["invest"].Summary)
	assert.Equal(t, serverISA, result.PerAccount["isa"].Summary)
	assert.False(t, result.PerAccount["invest"].Derived)
}

func TestAggregate_OnlyMissingAccountsAreSynthesized(t *testing.T) {
	serverInvest := AccountSummary{CurrentValue: 1, TotalInvested: 2, TotalPnL: 3}
	snapshot := &Snapshot{
		Summary: &Summary{
			CashBalance: &CashBalance{Total: 300, Free: 120},
			Accounts:    map[string]AccountSummary{"invest": serverInvest},
		},
		Positions: []Position{
			pos("AAPL", "invest", 150, 10),
			pos("VUSA", "isa", 80, 5),
			pos("VUSA", "isa", 20, 5),
		},
	}

	result := NewAggregator().Aggregate(snapshot)

	assert.Equal(t, serverInvest, result.PerAccount["invest"].Summary)

	isa := result.PerAccount["isa"].Summary
	assert.True(t, isa.Derived)
	assert.Equal(t, 500.0, isa.CurrentValue)
	assert.Equal(t, CashBalance{Total: 300, Free: 120}, isa.CashBalance)
}

func TestAggregate_SynthesizedValueCountsOnlyTaggedPositions(t *testing.T) {
	snapshot := &Snapshot{
		Positions: []Position{
			pos("AAPL", "invest", 150, 10),
			pos("MSFT", "INVEST ", 300, 2),
			pos("VOD", "isa", 1.1, 100),
			pos("TSLA", "", 200, 1),
			pos("GME", "cfd", 20, 3),
		},
	}

	result := NewAggregator().Aggregate(snapshot)

	assert.InDelta(t, 2100.0, result.PerAccount["invest"].Summary.CurrentValue, 1e-9)
	assert.InDelta(t, 110.0, result.PerAccount["isa"].Summary.CurrentValue, 1e-9)
	assert.Equal(t, 2, result.Untagged)
	assert.NotContains(t, result.PerAccount, "cfd")
	assert.NotContains(t, result.PerAccount, "")
}

func TestAggregate_SameTickerInTwoAccountsIsNotConflated(t *testing.T) {
	snapshot := &Snapshot{
		Positions: []Position{
			pos("AAPL", "invest", 100, 1),
			pos("AAPL", "isa", 100, 2),
		},
	}

	result := NewAggregator().Aggregate(snapshot)

	assert.Equal(t, 100.0, result.PerAccount["invest"].Summary.CurrentValue)
	assert.Equal(t, 200.0, result.PerAccount["isa"].Summary.CurrentValue)
	require.Len(t, result.TopAllocations, 2)
	assert.NotEqual(t, result.PerAccount["invest"].Positions[0].Key(), result.PerAccount["isa"].Positions[0].Key())
}

func TestAggregate_MissingNumericFieldsContributeZero(t *testing.T) {
	snapshot := decodeSnapshot(t, `{
		"positions": [
			{"ticker": "AAPL", "account_type": "invest", "currentPrice": 150, "quantity": 10, "averagePrice": 100},
			{"ticker": "NOPRICE", "account_type": "invest", "quantity": 10, "averagePrice": 5, "ppl": 7},
			{"ticker": "NOQTY", "account_type": "invest", "currentPrice": 42}
		]
	}`)

	result := NewAggregator().Aggregate(snapshot)
	invest := result.PerAccount["invest"].Summary

	assert.Equal(t, 1500.0, invest.CurrentValue)
	assert.Equal(t, 1050.0, invest.TotalInvested)
	assert.Equal(t, 7.0, invest.TotalPnL)
	require.Len(t, result.TopAllocations, 3)
	assert.Equal(t, "AAPL", result.TopAllocations[0].Label)
	assert.Zero(t, result.TopAllocations[1].Value)
	assert.Zero(t, result.TopAllocations[2].Value)
}

func TestAggregate_AbsentPositionsYieldZeroAccounts(t *testing.T) {
	for name, snapshot := range map[string]*Snapshot{
		"nil snapshot":      nil,
		"absent positions":  {Summary: &Summary{}},
		"empty positions":   {Positions: []Position{}},
		"nil summary/empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			result := NewAggregator().Aggregate(snapshot)

			require.Len(t, result.PerAccount, 2)
			for _, key := range DefaultAccounts {
				view := result.PerAccount[key]
				assert.Zero(t, view.Summary.CurrentValue)
				assert.Zero(t, view.Summary.TotalInvested)
				assert.Zero(t, view.Summary.TotalPnL)
				assert.Empty(t, view.Positions)
			}
			assert.Empty(t, result.TopAllocations)
		})
	}
}

func TestAggregate_ExtraServerAccountBecomesKnown(t *testing.T) {
	snapshot := &Snapshot{
		Summary: &Summary{Accounts: map[string]AccountSummary{
			"CFD": {CurrentValue: 77},
		}},
		Positions: []Position{pos("GME", "cfd", 20, 3)},
	}

	result := NewAggregator().Aggregate(snapshot)

	require.Contains(t, result.PerAccount, "cfd")
	assert.Equal(t, 77.0, result.PerAccount["cfd"].Summary.CurrentValue)
	assert.Len(t, result.PerAccount["cfd"].Positions, 1)
	assert.Zero(t, result.Untagged)
}

func TestAggregate_TotalsPreferServerSummary(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	snapshot := &Snapshot{
		Summary: &Summary{
			TotalPositions: 9,
			CurrentValue:   1000,
			CashBalance:    &CashBalance{Total: 10, Free: 5},
			Reported:       FieldTotalPositions | FieldCurrentValue,
		},
		Positions: []Position{pos("AAPL", "invest", 150, 10)},
	}

	result := NewAggregator(WithClock(func() time.Time { return fixed })).Aggregate(snapshot)

	assert.Equal(t, 9, result.Totals.TotalPositions)
	assert.Equal(t, 1000.0, result.Totals.CurrentValue)
	assert.Equal(t, 1500.0, result.Totals.TotalInvested)
	assert.Equal(t, &CashBalance{Total: 10, Free: 5}, result.Totals.CashBalance)
	assert.Contains(t, result.Totals.Accounts, "invest")
	assert.Equal(t, fixed, result.AggregatedAt)
}

func TestAggregate_TotalsDerivedForAccountsOnlySummary(t *testing.T) {
	snapshot := decodeSnapshot(t, `{
		"summary": {"accounts": {"isa": {"current_value": 0, "status": "success"}}},
		"positions": [
			{"ticker": "AAPL", "accountType": "invest", "currentPrice": 150, "quantity": 10, "averagePrice": 100, "ppl": 500}
		]
	}`)

	result := NewAggregator().Aggregate(snapshot)

	assert.Equal(t, 1500.0, result.PerAccount["invest"].Summary.CurrentValue)
	assert.Equal(t, 1, result.Totals.TotalPositions)
	assert.Equal(t, 1500.0, result.Totals.CurrentValue)
	assert.Equal(t, 1000.0, result.Totals.TotalInvested)
	assert.Equal(t, 500.0, result.Totals.TotalPnL)
	assert.Equal(t, 50.0, result.Totals.TotalPnLPercent)
	assert.Equal(t, 1000.0, result.Totals.NetDeposits)
}

func TestAggregate_TotalsDerivedForLegacyTopLevelAccounts(t *testing.T) {
	snapshot := decodeSnapshot(t, `{
		"accounts": {"invest": {"current_value": 300}},
		"positions": [
			{"ticker": "VOD", "accountType": "invest", "currentPrice": 100, "quantity": 3, "averagePrice": 100, "ppl": 0}
		]
	}`)

	result := NewAggregator().Aggregate(snapshot)

	assert.Equal(t, 1, result.Totals.TotalPositions)
	assert.Equal(t, 300.0, result.Totals.CurrentValue)
}

func TestAggregate_TotalsDerivedWithoutSummary(t *testing.T) {
	snapshot := &Snapshot{
		Positions: []Position{
			{Ticker: "A", AccountType: "invest", CurrentPrice: f(10), Quantity: f(2), AveragePrice: f(8), PPL: f(4)},
			{Ticker: "B", CurrentPrice: f(5), Quantity: f(1), AveragePrice: f(5), PPL: f(0)},
		},
	}

	result := NewAggregator().Aggregate(snapshot)

	assert.Equal(t, 2, result.Totals.TotalPositions)
	assert.Equal(t, 25.0, result.Totals.CurrentValue)
	assert.Equal(t, 21.0, result.Totals.TotalInvested)
	assert.Equal(t, 4.0, result.Totals.TotalPnL)
	assert.Equal(t, 21.0, result.Totals.NetDeposits)
}

func TestAggregate_CustomAccounts(t *testing.T) {
	result := NewAggregator(WithAccounts("ISA")).Aggregate(&Snapshot{
		Positions: []Position{pos("AAPL", "invest", 1, 1), pos("VOD", "isa", 1, 1)},
	})

	assert.Len(t, result.PerAccount, 1)
	assert.Contains(t, result.PerAccount, "isa")
	assert.Equal(t, 1, result.Untagged)
}
