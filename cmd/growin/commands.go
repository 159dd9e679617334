package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/growin/growin/internal/clients/growin"
	"github.com/growin/growin/internal/modules/charts"
	"github.com/growin/growin/internal/modules/portfolio"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSnapshotCmd(c *cli) *cobra.Command {
	var (
		currency string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch the live portfolio once and print the aggregated view",
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := portfolio.ParseAccountFilter(c.app.cfg.AccountType)
			if err != nil {
				return err
			}

			snapshot, err := c.app.client.GetLivePortfolio(cmd.Context(), account)
			if err != nil {
				return fmt.Errorf("failed to fetch portfolio: %w", err)
			}
			result := portfolio.NewAggregator().Aggregate(snapshot)

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			return writeSnapshot(cmd.OutOrStdout(), result, currency)
		},
	}

	cmd.Flags().StringVar(&currency, "currency", DefaultCurrency, "Currency used to display amounts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the aggregated result as JSON")
	return cmd
}

func newHistoryCmd(c *cli) *cobra.Command {
	var (
		days     int
		currency string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print portfolio value history",
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := portfolio.ParseAccountFilter(c.app.cfg.AccountType)
			if err != nil {
				return err
			}

			points, err := c.app.client.GetPortfolioHistory(cmd.Context(), days, account)
			if err != nil {
				return fmt.Errorf("failed to fetch history: %w", err)
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), points)
			}
			return writeHistory(cmd.OutOrStdout(), points, currency)
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "Number of days of history")
	cmd.Flags().StringVar(&currency, "currency", DefaultCurrency, "Currency used to display amounts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the history as JSON")
	return cmd
}

func newChartCmd(c *cli) *cobra.Command {
	var (
		timeframe string
		provider  string
		points    int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "chart SYMBOL",
		Short: "Print OHLCV data and indicators for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chart, err := c.app.client.GetChart(cmd.Context(), args[0], timeframe, provider)
			if err != nil {
				return fmt.Errorf("failed to fetch chart: %w", err)
			}

			sampled := charts.Downsample(chart.Data, points)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), growin.ChartResponse{Data: sampled, Metadata: chart.Metadata})
			}
			return writeChart(cmd.OutOrStdout(), chart, sampled)
		},
	}

	cmd.Flags().StringVar(&timeframe, "timeframe", "1Month", "Chart timeframe")
	cmd.Flags().StringVar(&provider, "provider", "", "Data provider (backend default when empty)")
	cmd.Flags().IntVar(&points, "points", 20, "Maximum rows to print")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the chart as JSON")
	return cmd
}

func newAnalysisCmd(c *cli) *cobra.Command {
	var timeframe string

	cmd := &cobra.Command{
		Use:   "analysis SYMBOL",
		Short: "Print the backend's analysis for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := c.app.client.GetAnalysis(cmd.Context(), args[0], timeframe)
			if err != nil {
				return fmt.Errorf("failed to fetch analysis: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), analysis)
		},
	}

	cmd.Flags().StringVar(&timeframe, "timeframe", "1Month", "Analysis timeframe")
	return cmd
}

func newAccountCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Show or switch the backend's active account",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the active account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := c.app.client.GetActiveAccount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), account)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set ACCOUNT",
		Short: "Switch the active account (invest or isa) and clear the backend cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := portfolio.ParseAccountFilter(args[0])
			if err != nil {
				return err
			}
			if account == portfolio.AccountAll {
				return fmt.Errorf("the active account must be invest or isa")
			}

			if err := c.app.client.SetActiveAccount(cmd.Context(), string(account)); err != nil {
				return err
			}
			if err := c.app.client.ClearCache(cmd.Context()); err != nil {
				c.app.log.Warn().Err(err).Msg("Failed to clear backend cache after account switch")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active account: %s\n", account)
			return nil
		},
	})

	cmd.AddCommand(newConfigureCmd(c))
	return cmd
}

// newConfigureCmd sends Trading 212 credentials to the backend. Keys are read
// from the environment so they stay out of shell history.
func newConfigureCmd(c *cli) *cobra.Command {
	var accountType string

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Send Trading 212 API keys from T212_* environment variables to the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := growin.Trading212Config{
				AccountType:  accountType,
				InvestKey:    os.Getenv("T212_INVEST_KEY"),
				InvestSecret: os.Getenv("T212_INVEST_SECRET"),
				ISAKey:       os.Getenv("T212_ISA_KEY"),
				ISASecret:    os.Getenv("T212_ISA_SECRET"),
			}
			if cfg.InvestKey == "" && cfg.ISAKey == "" {
				return fmt.Errorf("set T212_INVEST_KEY or T212_ISA_KEY")
			}

			if err := c.app.client.ConfigureTrading212(cmd.Context(), cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Trading 212 configuration updated")
			return nil
		},
	}

	cmd.Flags().StringVar(&accountType, "account-type", "invest", "Account to activate (invest or isa)")
	return cmd
}

func newCacheCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the backend and local response caches",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the backend cache and the local response cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.client.ClearCache(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
			return nil
		},
	})

	return cmd
}
