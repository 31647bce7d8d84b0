package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/gabigallardo/control-panel/internal/app"
	"github.com/gabigallardo/control-panel/internal/config"
	"github.com/gabigallardo/control-panel/internal/database"
	"github.com/gabigallardo/control-panel/internal/httpserver"
	"github.com/gabigallardo/control-panel/internal/redisclient"
)

type rootOptions struct {
	configFile string
	envFile    string
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(config.Options{ConfigFile: o.configFile, EnvFile: o.envFile})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	serve := func(cmd *cobra.Command, _ []string) error {
		cfg, err := opts.load()
		if err != nil {
			return err
		}
		app.ConfigureLogging(cfg.Log)
		return runServer(cmd.Context(), cfg)
	}

	root := &cobra.Command{
		Use:   "dashboardd",
		Short: "Control panel dashboard backend",
		Long:  "Serves the dashboard and billing APIs backed by Postgres and the OpenAI organization API.",
		RunE:  serve,
	}
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file path (default dashboard.yaml in . or ./config)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Dotenv file to load before reading the environment")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  serve,
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the development schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if !cfg.Database.Configured() {
				return errors.New("database.url is required")
			}
			cfg.Database.RunMigrations = true
			if err := database.RunMigrations(cmd.Context(), cfg.Database); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with credentials redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			settings, err := cfg.Redacted().Settings()
			if err != nil {
				return fmt.Errorf("flatten config: %w", err)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(settings)
		},
	})

	return root
}

func runServer(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var dbPool *pgxpool.Pool
	if cfg.Database.Configured() {
		if err := database.RunMigrations(ctx, cfg.Database); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			slog.Warn("database unavailable; card metrics will use defaults", "error", err)
		} else {
			dbPool = pool
			defer dbPool.Close()
		}
	} else {
		slog.Info("database url not configured; card metrics will use defaults")
	}

	redisClient := redisclient.New(cfg.Redis)
	if redisClient != nil {
		if err := redisclient.Ping(ctx, redisClient); err != nil {
			slog.Warn("redis unavailable; billing snapshots will not be cached until it recovers", "error", err)
		}
		defer redisClient.Close()
	}

	container, err := app.NewContainer(ctx, cfg, dbPool, redisClient)
	if err != nil {
		return fmt.Errorf("build container: %w", err)
	}
	defer func() {
		if err := container.Observability.Shutdown(context.Background()); err != nil {
			log.Printf("observability shutdown: %v", err)
		}
	}()

	if err := container.BillingWarmer.Start(); err != nil {
		return fmt.Errorf("start billing warmer: %w", err)
	}
	defer container.BillingWarmer.Stop()

	server, err := httpserver.New(container)
	if err != nil {
		return fmt.Errorf("construct server: %w", err)
	}

	slog.Info("dashboard backend listening", "addr", cfg.Server.ListenAddr, "billing", container.Billing.Configured(), "store", container.Metrics.Configured())
	if err := server.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}
