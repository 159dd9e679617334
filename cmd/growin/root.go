package main

import (
	"github.com/spf13/cobra"
)

// cli carries the global flags and the app built from them.
type cli struct {
	flags globalFlags
	app   *app
}

func (c *cli) close() {
	if c.app != nil {
		c.app.close()
	}
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   "growin",
		Short: "Trading 212 portfolio client",
		Long: `Growin polls a Growin backend for the live Trading 212 portfolio,
aggregates it per account and streams chart ticks for watched symbols.

Configuration is read from the environment (and .env); flags override it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(&c.flags)
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.flags.backendURL, "backend", "", "Backend base URL (overrides GROWIN_BACKEND_URL)")
	flags.StringVar(&c.flags.account, "account", "", "Account filter: all, invest or isa (overrides GROWIN_ACCOUNT_TYPE)")
	flags.StringVar(&c.flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&c.flags.noCache, "no-cache", false, "Do not read or write the local response cache")

	cmd.AddCommand(
		newServeCmd(c),
		newSnapshotCmd(c),
		newHistoryCmd(c),
		newChartCmd(c),
		newAnalysisCmd(c),
		newAccountCmd(c),
		newCacheCmd(c),
	)

	return cmd, c
}
