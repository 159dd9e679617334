package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/growin/growin/internal/clients/growin"
	"github.com/growin/growin/internal/modules/charts"
	"github.com/growin/growin/internal/modules/portfolio"
)

// DefaultCurrency is used for amounts the backend reports without a currency.
const DefaultCurrency = "GBP"

// formatMoney renders amount in the currency's own symbol, separators and
// fraction digits. Unknown codes fall back to two decimals and the code.
func formatMoney(amount float64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = DefaultCurrency
	}
	if money.GetCurrency(code) == nil {
		return fmt.Sprintf("%s %s", decimal.NewFromFloat(amount).StringFixed(2), code)
	}

	cur := money.New(0, code).Currency()
	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0).IntPart()
	return cur.Formatter().Format(minor)
}

// formatPercent renders a signed percentage with two decimals.
func formatPercent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// writeSnapshot prints per-account summaries, totals and the top allocations.
func writeSnapshot(w io.Writer, result portfolio.Result, currency string) error {
	keys := make([]string, 0, len(result.PerAccount))
	for key := range result.PerAccount {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	tw := newTable(w)
	fmt.Fprintln(tw, "ACCOUNT\tVALUE\tINVESTED\tP/L\tP/L %\tCASH\tPOSITIONS\tSOURCE")
	for _, key := range keys {
		view := result.PerAccount[key]
		source := "backend"
		if view.Derived {
			source = "derived"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			key,
			formatMoney(view.Summary.CurrentValue, currency),
			formatMoney(view.Summary.TotalInvested, currency),
			formatMoney(view.Summary.TotalPnL, currency),
			formatPercent(view.Summary.TotalPnLPercent),
			formatMoney(view.Summary.CashBalance.Total, currency),
			len(view.Positions),
			source,
		)
	}
	totals := result.Totals
	fmt.Fprintf(tw, "total\t%s\t%s\t%s\t%s\t\t%d\t\n",
		formatMoney(totals.CurrentValue, currency),
		formatMoney(totals.TotalInvested, currency),
		formatMoney(totals.TotalPnL, currency),
		formatPercent(totals.TotalPnLPercent),
		totals.TotalPositions,
	)
	if err := tw.Flush(); err != nil {
		return err
	}

	if result.Untagged > 0 {
		fmt.Fprintf(w, "\n%d position(s) not tagged with a known account\n", result.Untagged)
	}

	if len(result.TopAllocations) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	shares := portfolio.AllocationShares(result.TopAllocations)
	tw = newTable(w)
	fmt.Fprintln(tw, "ALLOCATION\tVALUE\tSHARE")
	for i, item := range result.TopAllocations {
		share := ""
		if shares != nil {
			share = formatPercent(shares[i])
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", item.Label, formatMoney(item.Value, currency), share)
	}
	return tw.Flush()
}

// writeHistory prints one row per history point.
func writeHistory(w io.Writer, points []growin.HistoryPoint, currency string) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tVALUE\tP/L\tCASH")
	for _, p := range points {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			p.ParsedTime().Format("2006-01-02 15:04"),
			formatMoney(p.TotalValue, currency),
			formatMoney(p.TotalPnL, currency),
			formatMoney(p.CashBalance, currency),
		)
	}
	return tw.Flush()
}

// writeChart prints OHLCV rows followed by close-price statistics and the latest
// indicator values.
func writeChart(w io.Writer, chart *growin.ChartResponse, points []charts.Point) error {
	meta := chart.Metadata
	fmt.Fprintf(w, "%s (%s, %s via %s)\n\n", meta.Ticker, meta.Market, meta.Currency, meta.Provider)

	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME")
	for _, p := range points {
		ts := p.Timestamp
		if t, ok := p.Time(); ok {
			ts = t.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.0f\n", ts, p.Open, p.High, p.Low, p.Close, p.Volume)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	stats := charts.Stats(chart.Data)
	if stats.Count == 0 {
		return nil
	}
	fmt.Fprintf(w, "\n%d points  min %.2f  max %.2f  mean %.2f  last %.2f  change %s\n",
		stats.Count, stats.Min, stats.Max, stats.Mean, stats.Last, formatPercent(stats.Change))

	ind := charts.Indicators(chart.Data)
	last := len(chart.Data) - 1
	fmt.Fprintf(w, "SMA(%d) %s  EMA(%d) %s  RSI(%d) %s\n",
		charts.SMAPeriod, optional(ind.SMA[last]),
		charts.EMAPeriod, optional(ind.EMA[last]),
		charts.RSIPeriod, optional(ind.RSI[last]),
	)
	return nil
}

func optional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}
