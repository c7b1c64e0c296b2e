package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"meridian-hq/meridian/pkg/config"
	"meridian-hq/meridian/pkg/gateway"
	"meridian-hq/meridian/pkg/gateway/eval"
	"meridian-hq/meridian/pkg/identity"
	"meridian-hq/meridian/pkg/policies"
	"meridian-hq/meridian/pkg/policies/oauth2"
	"meridian-hq/meridian/pkg/server"
	"meridian-hq/meridian/pkg/store"
	"meridian-hq/meridian/pkg/telemetry/logging"
	"meridian-hq/meridian/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	watch         bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Meridian gateway",
	Long: `Start the gateway with the specified configuration.

The server listens on the configured address, matches inbound requests to
API endpoints, and runs each through its resolved policy pipeline.

Examples:
  # Start with default config
  meridian run

  # Start with custom config
  meridian run --config /etc/meridian/config.yaml

  # Override listen address
  meridian run --listen 0.0.0.0:8080

  # Reload pipelines when the config file changes
  meridian run --watch`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", false, "reload pipelines on config file changes")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if runFlags.listenAddress != "" {
		cfg.HTTP.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Logging, nil)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	st, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	dir, err := identity.SeedFromConfig(cfg.Identity)
	if err != nil {
		return err
	}

	oauthServer := oauth2.NewServer(cfg.OAuth2, st, dir, logger, m)

	buildEngine := func(c *config.Config) (*gateway.Engine, error) {
		registry := policies.NewRegistry(policies.Options{
			Config:  c,
			Store:   st,
			OAuth2:  oauthServer,
			Logger:  logger,
			Metrics: m,
		})
		return gateway.New(c, gateway.Options{
			Registry:   registry,
			Conditions: eval.NewConditions(),
			Logger:     logger,
			Metrics:    m,
		})
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		return fmt.Errorf("compiling pipelines: %w", err)
	}

	srv, err := server.NewServer(cfg, server.Options{
		Engine:  engine,
		OAuth2:  oauthServer,
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sweeper := store.NewSweeper(st, cfg.Store.SweepSchedule, logger)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	if runFlags.watch {
		watcher, err := server.NewConfigWatcher(cfgFile, srv, buildEngine, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	logger.Info("meridian starting",
		"version", Version,
		"endpoints", len(cfg.APIEndpoints),
		"pipelines", len(cfg.Pipelines),
		"store", cfg.Store.Backend,
	)
	return srv.Start(ctx)
}

func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return store.NewSQLiteStore(store.SQLiteConfig{
			Path:        cfg.Store.Path,
			BusyTimeout: 5 * time.Second,
		})
	default:
		return store.NewMemoryStore(), nil
	}
}
