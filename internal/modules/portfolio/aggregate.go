package portfolio

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAccounts are the account keys every Result reports on.
var DefaultAccounts = []string{string(AccountInvest), string(AccountISA)}

// DefaultTopN is the number of individual allocation buckets before the rollup.
const DefaultTopN = 5

// Aggregator turns snapshots into per-account views and allocation buckets.
// It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	accounts []string
	topN     int
	now      func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithAccounts overrides the known account keys.
func WithAccounts(keys ...string) Option {
	return func(a *Aggregator) {
		a.accounts = a.accounts[:0]
		for _, k := range keys {
			if k = NormalizeAccountTag(k); k != "" {
				a.accounts = append(a.accounts, k)
			}
		}
	}
}

// WithTopN overrides the number of individual allocation buckets.
func WithTopN(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.topN = n
		}
	}
}

// WithClock overrides the clock stamping AggregatedAt.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an aggregator with the default invest/isa accounts.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		accounts: append([]string(nil), DefaultAccounts...),
		topN:     DefaultTopN,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate splits the snapshot by account, resolves every account summary and
// computes the top allocations. A nil snapshot or absent positions yields all-zero
// accounts and no allocations.
func (a *Aggregator) Aggregate(snapshot *Snapshot) Result {
	var (
		summary   *Summary
		positions []Position
	)
	if snapshot != nil {
		summary = snapshot.Summary
		positions = snapshot.Positions
	}

	keys := a.knownKeys(summary)
	groups, untagged := partition(positions, keys)

	var sharedCash CashBalance
	if summary != nil && summary.CashBalance != nil {
		sharedCash = *summary.CashBalance
	}

	perAccount := make(map[string]AccountView, len(keys))
	resolved := make(map[string]AccountSummary, len(keys))
	for _, key := range keys {
		group := groups[key]
		acc, ok := serverAccount(summary, key)
		if !ok {
			acc = Synthesize(group, sharedCash)
		}
		resolved[key] = acc
		perAccount[key] = AccountView{
			Key:       key,
			Summary:   acc,
			Derived:   acc.Derived,
			Positions: group,
		}
	}

	return Result{
		PerAccount:     perAccount,
		TopAllocations: TopAllocations(positions, a.topN),
		Totals:         totals(summary, positions, resolved),
		Untagged:       untagged,
		AggregatedAt:   a.now(),
	}
}

// knownKeys returns the configured keys plus any extra account the server reports.
func (a *Aggregator) knownKeys(summary *Summary) []string {
	keys := append([]string(nil), a.accounts...)
	if summary == nil || len(summary.Accounts) == 0 {
		return keys
	}
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	var extra []string
	for k := range summary.Accounts {
		if nk := NormalizeAccountTag(k); nk != "" && !seen[nk] {
			seen[nk] = true
			extra = append(extra, nk)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// partition groups positions by account tag. Positions whose tag is empty or not a
// known key are counted as untagged and land in no group.
func partition(positions []Position, keys []string) (map[string][]Position, int) {
	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		known[k] = true
	}

	groups := make(map[string][]Position, len(keys))
	untagged := 0
	for _, p := range positions {
		tag := NormalizeAccountTag(p.AccountType)
		if !known[tag] {
			untagged++
			continue
		}
		groups[tag] = append(groups[tag], p)
	}
	return groups, untagged
}

// serverAccount looks the key up in the server's accounts map, tolerating case
// differences in the reported keys.
func serverAccount(summary *Summary, key string) (AccountSummary, bool) {
	if summary == nil || summary.Accounts == nil {
		return AccountSummary{}, false
	}
	if acc, ok := summary.Accounts[key]; ok {
		return acc, true
	}
	for k, acc := range summary.Accounts {
		if NormalizeAccountTag(k) == key {
			return acc, true
		}
	}
	return AccountSummary{}, false
}

// Synthesize derives an account summary from its positions. Positions whose price,
// average cost or quantity is missing contribute zero to the affected total.
func Synthesize(positions []Position, cash CashBalance) AccountSummary {
	invested := decimal.Zero
	current := decimal.Zero
	pnl := decimal.Zero

	for _, p := range positions {
		if v, ok := p.CostBasis(); ok {
			invested = invested.Add(decimal.NewFromFloat(v))
		}
		if v, ok := p.MarketValue(); ok {
			current = current.Add(decimal.NewFromFloat(v))
		}
		if isFinite(p.PPL) {
			pnl = pnl.Add(decimal.NewFromFloat(*p.PPL))
		}
	}

	return AccountSummary{
		TotalInvested:   invested.InexactFloat64(),
		CurrentValue:    current.InexactFloat64(),
		TotalPnL:        pnl.InexactFloat64(),
		TotalPnLPercent: percentOf(pnl, invested),
		CashBalance:     cash,
		Status:          "derived",
		Derived:         true,
	}
}

func percentOf(part, whole decimal.Decimal) float64 {
	if !whole.IsPositive() {
		return 0
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
}

// totals takes each top-level total from the server summary when it was reported
// and derives the rest from every position. Accounts always carries the resolved
// per-account summaries.
func totals(summary *Summary, positions []Position, resolved map[string]AccountSummary) Summary {
	var out Summary
	if summary != nil {
		out = *summary
	}
	out.Accounts = resolved
	if out.Has(AllSummaryFields) {
		return out
	}

	derived := Synthesize(positions, CashBalance{})
	if !out.Has(FieldTotalPositions) {
		out.TotalPositions = len(positions)
	}
	if !out.Has(FieldTotalInvested) {
		out.TotalInvested = derived.TotalInvested
	}
	if !out.Has(FieldCurrentValue) {
		out.CurrentValue = derived.CurrentValue
	}
	if !out.Has(FieldTotalPnL) {
		out.TotalPnL = derived.TotalPnL
	}
	if !out.Has(FieldTotalPnLPercent) {
		out.TotalPnLPercent = percentOf(decimal.NewFromFloat(out.TotalPnL), decimal.NewFromFloat(out.TotalInvested))
	}
	if !out.Has(FieldNetDeposits) {
		out.NetDeposits = decimal.NewFromFloat(out.CurrentValue).Sub(decimal.NewFromFloat(out.TotalPnL)).InexactFloat64()
	}
	return out
}
