package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TopAllocations returns the n largest positions by market value as individual
// buckets, followed by an "Others" bucket holding the remainder when there are more
// than n positions and the remainder is strictly positive. Equal values keep their
// input order. Positions without a usable price or quantity are valued at zero.
func TopAllocations(positions []Position, n int) []AllocationItem {
	if len(positions) == 0 {
		return []AllocationItem{}
	}
	if n <= 0 {
		n = DefaultTopN
	}

	items := make([]AllocationItem, len(positions))
	for i, p := range positions {
		v, _ := p.MarketValue()
		items[i] = AllocationItem{Label: allocationLabel(p), Value: v}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Value > items[j].Value
	})

	if len(items) <= n {
		return items
	}

	rest := decimal.Zero
	for _, it := range items[n:] {
		rest = rest.Add(decimal.NewFromFloat(it.Value))
	}

	top := append([]AllocationItem(nil), items[:n]...)
	if rest.IsPositive() {
		top = append(top, AllocationItem{Label: OthersLabel, Value: rest.InexactFloat64()})
	}
	return top
}

func allocationLabel(p Position) string {
	if p.Ticker != "" {
		return p.Ticker
	}
	return p.Name
}

// AllocationShares converts bucket values to percentages of their sum.
// Returns nil when the total is not positive.
func AllocationShares(items []AllocationItem) []float64 {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(decimal.NewFromFloat(it.Value))
	}
	if !total.IsPositive() {
		return nil
	}

	shares := make([]float64, len(items))
	hundred := decimal.NewFromInt(100)
	for i, it := range items {
		shares[i] = decimal.NewFromFloat(it.Value).Div(total).Mul(hundred).Round(2).InexactFloat64()
	}
	return shares
}
