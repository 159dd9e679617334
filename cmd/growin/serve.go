package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/growin/growin/internal/clientdata"
	"github.com/growin/growin/internal/events"
	"github.com/growin/growin/internal/metrics"
	"github.com/growin/growin/internal/modules/charts"
	"github.com/growin/growin/internal/modules/live"
	"github.com/growin/growin/internal/modules/portfolio"
	"github.com/growin/growin/internal/scheduler"
	"github.com/growin/growin/internal/server"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		port    int
		watch   []string
		noPoll  bool
		walCron string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the live poller, chart streams and local API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				c.app.cfg.Port = port
			}
			return runServe(c.app, watch, !noPoll, walCron)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Local API port (overrides GROWIN_PORT)")
	cmd.Flags().StringSliceVar(&watch, "watch", nil, "Symbols to stream charts for from startup")
	cmd.Flags().BoolVar(&noPoll, "no-poll", false, "Do not start the live portfolio poller")
	cmd.Flags().StringVar(&walCron, "wal-checkpoint", "@every 6h", "Cron schedule for cache WAL checkpoints")

	return cmd
}

func runServe(a *app, watch []string, poll bool, walCron string) error {
	log := a.log
	cfg := a.cfg

	log.Info().Str("backend", cfg.BackendURL).Msg("Starting Growin")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus(log)
	eventManager := events.NewManager(bus, log)
	m := metrics.New(nil)

	account, err := portfolio.ParseAccountFilter(cfg.AccountType)
	if err != nil {
		return err
	}

	poller := live.NewPoller(a.client, portfolio.NewAggregator(), live.Config{
		Interval: cfg.PollInterval,
		Account:  account,
		Events:   eventManager,
		Metrics:  m,
	}, log)

	registry := charts.NewRegistry(ctx, charts.RegistryConfig{
		URLFor:         a.client.ChartStreamURL,
		ReconnectDelay: cfg.ReconnectDelay,
		Events:         eventManager,
		Metrics:        m,
	}, log)
	for _, symbol := range append(cfg.WatchSymbols, watch...) {
		registry.Get(symbol)
	}

	sched := scheduler.New(log)
	if a.cache != nil {
		if err := sched.AddJob(cfg.CacheCleanup, clientdata.NewCleanupJob(a.cache, log)); err != nil {
			return err
		}
		if err := sched.AddJob(walCron, scheduler.NewWALCheckpointJob(a.db, log)); err != nil {
			return err
		}
	}
	sched.Start()

	srv := server.New(server.Config{
		Context:   ctx,
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Poller:    poller,
		Charts:    registry,
		Backend:   a.client,
		Events:    eventManager,
		Metrics:   m,
		CacheDB:   a.db,
		Scheduler: sched,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	if poll {
		poller.Start(ctx)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case <-quit:
	case runErr = <-serverErr:
		log.Error().Err(runErr).Msg("Server failed")
	}

	log.Info().Msg("Shutting down...")

	poller.Stop()
	registry.StopAll()
	sched.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
	return runErr
}
