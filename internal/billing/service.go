package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gabigallardo/control-panel/internal/fallback"
	"github.com/gabigallardo/control-panel/internal/pricing"
)

// Recorder receives billing fetch telemetry.
type Recorder interface {
	RecordBillingFetch(endpoint string, status int, duration time.Duration)
	RecordFallback(source string, reason fallback.Reason)
}

// SnapshotCache stores successful billing results per range key.
type SnapshotCache interface {
	Get(ctx context.Context, key RangeKey) (Data, bool)
	Set(ctx context.Context, key RangeKey, data Data)
}

// ServiceOptions wires the billing facade.
type ServiceOptions struct {
	// Source is nil when no admin credential is configured.
	Source   Source
	Prices   *pricing.Table
	Location *time.Location
	Timeout  time.Duration
	Logger   *slog.Logger
	Recorder Recorder
	Cache    SnapshotCache
	Now      func() time.Time
}

// Service aggregates provider cost and usage into the dashboard's billing view.
type Service struct {
	source   Source
	prices   *pricing.Table
	loc      *time.Location
	timeout  time.Duration
	logger   *slog.Logger
	recorder Recorder
	cache    SnapshotCache
	now      func() time.Time
}

func NewService(opts ServiceOptions) *Service {
	s := &Service{
		source:   opts.Source,
		prices:   opts.Prices,
		loc:      opts.Location,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		cache:    opts.Cache,
		now:      opts.Now,
	}
	if s.prices == nil {
		s.prices = pricing.NewTable(pricing.PriceOf(3, 3), nil)
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Configured reports whether billing data can be fetched at all.
func (s *Service) Configured() bool {
	return s != nil && s.source != nil
}

// BillingData returns the billing view for the range, or an absent result
// with the reason the caller should substitute defaults.
func (s *Service) BillingData(ctx context.Context, key RangeKey) fallback.Result[Data] {
	if !s.Configured() {
		return fallback.Fail[Data](fallback.ReasonUnconfigured, nil)
	}
	key = key.Canonical()
	if s.cache != nil {
		if data, ok := s.cache.Get(ctx, key); ok {
			return fallback.OK(data)
		}
	}
	return s.fetch(ctx, key)
}

// Refresh fetches the range from the provider regardless of any cached
// snapshot and stores a successful result.
func (s *Service) Refresh(ctx context.Context, key RangeKey) fallback.Result[Data] {
	if !s.Configured() {
		return fallback.Fail[Data](fallback.ReasonUnconfigured, nil)
	}
	return s.fetch(ctx, key)
}

func (s *Service) fetch(ctx context.Context, key RangeKey) fallback.Result[Data] {
	res := Resolve(key, s.now(), s.loc)
	q := Query{Start: res.Start(), End: res.End(), Plan: res.Plan}
	fetchID := uuid.NewString()

	// Upstream calls outlive a disconnecting client and end on their own timeout.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var (
		costs []CostBucket
		usage []UsageBucket
	)
	g, gctx := errgroup.WithContext(callCtx)
	g.Go(func() error {
		return s.timed(costsPath, func() error {
			var fetchErr error
			costs, fetchErr = s.source.Costs(gctx, q)
			return fetchErr
		})
	})
	g.Go(func() error {
		return s.timed(usagePath, func() error {
			var fetchErr error
			usage, fetchErr = s.source.Usage(gctx, q)
			return fetchErr
		})
	})
	if err := g.Wait(); err != nil {
		reason := fallback.Classify(err)
		s.logger.Warn("billing fetch failed",
			slog.String("fetch_id", fetchID),
			slog.String("range", string(res.Key)),
			slog.String("reason", string(reason)),
			slog.Any("error", err),
		)
		s.recordFallback(reason)
		return fallback.Fail[Data](reason, err)
	}

	data := Normalize(costs, usage, res, s.prices).Compose(res.Key)
	data.GeneratedAt = s.now().UTC()
	s.logger.Debug("billing fetch complete",
		slog.String("fetch_id", fetchID),
		slog.String("range", string(res.Key)),
		slog.Int("cost_buckets", len(costs)),
		slog.Int("usage_buckets", len(usage)),
		slog.String("accumulated_cost", data.AccumulatedCost.StringFixed(headlinePlaces)),
	)
	if s.cache != nil {
		s.cache.Set(context.WithoutCancel(ctx), res.Key, data)
	}
	return fallback.OK(data)
}

func (s *Service) timed(endpoint string, fn func() error) error {
	started := time.Now()
	err := fn()
	if s.recorder != nil {
		status := 200
		if err != nil {
			status = StatusCode(err)
		}
		s.recorder.RecordBillingFetch(endpoint, status, time.Since(started))
	}
	return err
}

func (s *Service) recordFallback(reason fallback.Reason) {
	if s.recorder != nil {
		s.recorder.RecordFallback("billing", reason)
	}
}
