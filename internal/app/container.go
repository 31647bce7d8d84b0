package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gabigallardo/control-panel/internal/billing"
	"github.com/gabigallardo/control-panel/internal/cache"
	"github.com/gabigallardo/control-panel/internal/config"
	"github.com/gabigallardo/control-panel/internal/db"
	"github.com/gabigallardo/control-panel/internal/observability"
	"github.com/gabigallardo/control-panel/internal/pricing"
	dashboardsvc "github.com/gabigallardo/control-panel/internal/services/dashboard"
	metricssvc "github.com/gabigallardo/control-panel/internal/services/metrics"
)

// Container aggregates runtime dependencies for handlers and services.
type Container struct {
	Config            *config.Config
	DBPool            *pgxpool.Pool
	Redis             *redis.Client
	Queries           *db.Queries
	Prices            *pricing.Table
	Billing           *billing.Service
	BillingWarmer     *billing.Warmer
	Metrics           *metricssvc.Service
	Dashboard         *dashboardsvc.Service
	Observability     *observability.Provider
	ReportingLocation *time.Location
	Logger            *slog.Logger
}

// NewContainer builds a dependency container. pool and redisClient are
// optional; without a pool card metrics use defaults, and without Redis billing
// snapshots are cached in process when a cache TTL is set.
func NewContainer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	reportingLoc, err := time.LoadLocation(cfg.Reporting.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load reporting timezone: %w", err)
	}

	obsProvider, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("setup observability: %w", err)
	}

	logger := slog.Default()
	prices := pricing.FromConfig(cfg.Pricing)

	c := &Container{
		Config:            cfg,
		DBPool:            pool,
		Redis:             redisClient,
		Prices:            prices,
		Observability:     obsProvider,
		ReportingLocation: reportingLoc,
		Logger:            logger,
	}

	var store metricssvc.Store
	if pool != nil {
		c.Queries = db.New(pool)
		store = metricssvc.NewPGStore(c.Queries, cfg.Database.QueryTimeout, obsProvider)
	}

	var source billing.Source
	if cfg.Billing.Configured() {
		client, err := billing.NewClient(billing.ClientOptions{
			AdminKey:       cfg.Billing.AdminKey,
			Organization:   cfg.Billing.OrganizationID,
			BaseURL:        cfg.Billing.BaseURL,
			RequestTimeout: cfg.Billing.RequestTimeout,
			MaxPages:       cfg.Billing.MaxPages,
		})
		if err != nil {
			return nil, fmt.Errorf("init billing client: %w", err)
		}
		source = client
	} else {
		logger.Info("billing admin key not configured; dashboard billing will use defaults")
	}

	var snapshots billing.SnapshotCache
	if bc := cache.NewBillingCache(redisClient, cfg.Billing.CacheTTL, logger); bc != nil {
		snapshots = bc
	} else if mc := cache.NewMemoryBillingCache(cfg.Billing.CacheTTL); mc != nil {
		snapshots = mc
	}

	c.Billing = billing.NewService(billing.ServiceOptions{
		Source:   source,
		Prices:   prices,
		Location: reportingLoc,
		Timeout:  cfg.Billing.RequestTimeout,
		Logger:   logger,
		Recorder: obsProvider,
		Cache:    snapshots,
	})
	if cfg.Billing.WarmSchedule != "" {
		if err := billing.ValidateSchedule(cfg.Billing.WarmSchedule); err != nil {
			return nil, fmt.Errorf("invalid billing.warm_schedule: %w", err)
		}
	}
	c.BillingWarmer = billing.NewWarmer(c.Billing, cfg.Billing.WarmSchedule, reportingLoc, logger)
	c.Metrics = metricssvc.NewService(metricssvc.Options{
		Store:     store,
		Agents:    cfg.Agents.List,
		Threshold: cfg.Agents.Threshold,
		Location:  reportingLoc,
		Logger:    logger,
		Recorder:  obsProvider,
	})
	c.Dashboard = dashboardsvc.NewService(dashboardsvc.Options{
		Metrics:  c.Metrics,
		Billing:  c.Billing,
		Location: reportingLoc,
		Logger:   logger,
	})

	return c, nil
}
