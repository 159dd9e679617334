package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/growin/growin/internal/clientdata"
	"github.com/growin/growin/internal/clients/growin"
	"github.com/growin/growin/internal/config"
	"github.com/growin/growin/internal/database"
	"github.com/growin/growin/pkg/logger"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	db     *database.DB
	cache  *clientdata.Repository
	client *growin.Client
}

// globalFlags override the environment configuration.
type globalFlags struct {
	backendURL string
	account    string
	logLevel   string
	noCache    bool
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.backendURL != "" {
		cfg.BackendURL = flags.backendURL
	}
	if flags.account != "" {
		cfg.AccountType = flags.account
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})
	logger.SetGlobalLogger(log)

	a := &app{cfg: cfg, log: log}

	if !flags.noCache {
		db, err := database.New(database.Config{
			Path:    cfg.CachePath(),
			Profile: database.ProfileCache,
			Name:    "client_data",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open cache database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate cache database: %w", err)
		}
		a.db = db
		a.cache = clientdata.NewRepository(db.Conn())
	}

	client, err := growin.NewClient(cfg.BackendURL, cfg.HTTPTimeout, a.cache, log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.client = client

	return a, nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close cache database")
	}
}
