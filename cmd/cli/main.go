package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/spin-wheel/cmd/cli/commands"
	"github.com/jakechorley/spin-wheel/internal/config"
	"github.com/jakechorley/spin-wheel/pkg/core/engine"
	"github.com/jakechorley/spin-wheel/pkg/db"
	"github.com/jakechorley/spin-wheel/pkg/memstore"
	"github.com/jakechorley/spin-wheel/pkg/metrics"
	"github.com/jakechorley/spin-wheel/pkg/postgres"
	"github.com/jakechorley/spin-wheel/pkg/sqlite"
	"github.com/jakechorley/spin-wheel/pkg/utils/logging"
)

var (
	env     string
	verbose bool
	app     = &commands.AppContext{}
	cleanup []func()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cli",
		Short: "Spin Wheel CLI - Allocate prizes with per-round quotas",
		Long:  `A CLI tool for spinning the prize wheel, inspecting rounds and participant history, and simulating load.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			shutdown()
		},
		SilenceUsage: true,
	}

	// Add persistent flags
	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to the console")
	rootCmd.MarkPersistentFlagRequired("env")

	// Add all commands
	rootCmd.AddCommand(commands.SpinCmd(app))
	rootCmd.AddCommand(commands.EligibleCmd(app))
	rootCmd.AddCommand(commands.StateCmd(app))
	rootCmd.AddCommand(commands.StatsCmd(app))
	rootCmd.AddCommand(commands.AvailableCmd(app))
	rootCmd.AddCommand(commands.HistoryCmd(app))
	rootCmd.AddCommand(commands.ResetCmd(app))
	rootCmd.AddCommand(commands.SimulateCmd(app))
	rootCmd.AddCommand(commands.InteractiveCmd(app))

	if err := rootCmd.Execute(); err != nil {
		shutdown()
		os.Exit(1)
	}
}

// initApp sets up logger, config, store, metrics and the engine
func initApp() error {
	var err error

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	cleanup = append(cleanup, stop)
	app.Ctx = ctx

	// Initialize logger
	app.Logger, err = logging.InitLogger(env, verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	cleanup = append(cleanup, func() { app.Logger.Sync() })

	app.Logger.Info("Starting application", zap.String("environment", env))

	// Load configuration
	app.Logger.Info("Loading configuration")
	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Logger.Debug("Configuration loaded successfully",
		zap.Int("categories", len(app.Cfg.Categories)),
		zap.Int("round_threshold", app.Cfg.RoundThreshold),
		zap.String("time_zone", app.Cfg.TimeZone))

	// Open store
	app.Logger.Info("Opening store", zap.String("driver", app.Cfg.Database.Driver))
	app.Store, err = openStore(ctx, app.Cfg.Database, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	cleanup = append(cleanup, func() {
		if err := app.Store.Close(); err != nil {
			app.Logger.Warn("Failed to close store", zap.Error(err))
		}
	})

	engineCfg, err := app.Cfg.EngineConfig()
	if err != nil {
		return err
	}

	var opts []engine.Option
	if app.Cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, engine.WithRecorder(metrics.NewRecorder(reg)))
		startMetricsServer(app.Cfg.MetricsAddr, reg, app.Logger)
	}

	// Initialize engine
	app.Engine, err = engine.New(app.Store, engineCfg, app.Logger, opts...)
	if err != nil {
		return err
	}
	if err := app.Engine.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	app.Logger.Info("Engine initialized successfully")

	return nil
}

func openStore(ctx context.Context, cfg config.Database, logger *zap.Logger) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := postgres.NewDB(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		logger.Info("Running database migrations")
		if err := pg.RunMigrations(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case config.DriverSQLite:
		return sqlite.Open(ctx, cfg.DSN)
	case config.DriverMemory:
		logger.Warn("Using in-memory store; issuances are lost on exit")
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func startMetricsServer(addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	cleanup = append(cleanup, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
}

// shutdown runs cleanup in reverse order of registration
func shutdown() {
	for i := len(cleanup) - 1; i >= 0; i-- {
		cleanup[i]()
	}
	cleanup = nil
}
