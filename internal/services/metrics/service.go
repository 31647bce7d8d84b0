package metrics

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gabigallardo/control-panel/internal/billing"
	"github.com/gabigallardo/control-panel/internal/config"
	"github.com/gabigallardo/control-panel/internal/fallback"
)

const (
	StatusOperative = "OPERATIVO"
	StatusInactive  = "INACTIVO"
)

// AgentStatus reports whether a pipeline agent has written recently.
type AgentStatus struct {
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	LastActivity time.Time `json:"lastActivity"`
}

// Recorder counts metrics that fell back to defaults.
type Recorder interface {
	RecordFallback(source string, reason fallback.Reason)
}

type Options struct {
	// Store is nil when no database is configured.
	Store     Store
	Agents    []config.AgentEntry
	Threshold time.Duration
	Location  *time.Location
	Logger    *slog.Logger
	Recorder  Recorder
	Now       func() time.Time
}

// Service computes the dashboard card metrics from the relational store.
type Service struct {
	store     Store
	agents    []config.AgentEntry
	threshold time.Duration
	loc       *time.Location
	logger    *slog.Logger
	recorder  Recorder
	now       func() time.Time
}

func NewService(opts Options) *Service {
	s := &Service{
		store:     opts.Store,
		agents:    opts.Agents,
		threshold: opts.Threshold,
		loc:       opts.Location,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
		now:       opts.Now,
	}
	if len(s.agents) == 0 {
		s.agents = config.DefaultAgents()
	}
	if s.threshold <= 0 {
		s.threshold = 15 * time.Minute
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Configured reports whether a store backs the metrics.
func (s *Service) Configured() bool { return s != nil && s.store != nil }

func (s *Service) since(key billing.RangeKey) *time.Time {
	return billing.Resolve(key, s.now(), s.loc).Since
}

// UniqueUsers counts distinct session emails in the range.
func (s *Service) UniqueUsers(ctx context.Context, key billing.RangeKey) fallback.Result[int64] {
	if !s.Configured() {
		return fallback.Fail[int64](fallback.ReasonUnconfigured, nil)
	}
	n, err := s.store.UniqueUsers(ctx, s.since(key))
	if err != nil {
		return s.fail("unique_users", key, err)
	}
	return fallback.OK(n)
}

// QueryVolume counts sessions in the range.
func (s *Service) QueryVolume(ctx context.Context, key billing.RangeKey) fallback.Result[int64] {
	if !s.Configured() {
		return fallback.Fail[int64](fallback.ReasonUnconfigured, nil)
	}
	n, err := s.store.SessionCount(ctx, s.since(key))
	if err != nil {
		return s.fail("query_volume", key, err)
	}
	return fallback.OK(n)
}

// NonConflictRate is the rounded percentage of in-range sessions without
// negative feedback. An empty range scores 100.
func (s *Service) NonConflictRate(ctx context.Context, key billing.RangeKey) fallback.Result[int64] {
	if !s.Configured() {
		return fallback.Fail[int64](fallback.ReasonUnconfigured, nil)
	}
	since := s.since(key)
	total, err := s.store.SessionCount(ctx, since)
	if err != nil {
		return s.fail("non_conflict_rate", key, err)
	}
	if total <= 0 {
		return fallback.OK[int64](100)
	}
	conflicts, err := s.store.ConflictSessions(ctx, since)
	if err != nil {
		return s.fail("non_conflict_rate", key, err)
	}
	return fallback.OK(nonConflictPercent(total, conflicts))
}

func nonConflictPercent(total, conflicts int64) int64 {
	if conflicts > total {
		conflicts = total
	}
	if conflicts < 0 {
		conflicts = 0
	}
	return int64(math.Round(float64(total-conflicts) / float64(total) * 100))
}

// AgentHealth checks each configured agent's table for writes within the
// threshold. A failing agent query marks only that agent inactive.
func (s *Service) AgentHealth(ctx context.Context) fallback.Result[[]AgentStatus] {
	if !s.Configured() {
		return fallback.Fail[[]AgentStatus](fallback.ReasonUnconfigured, nil)
	}
	now := s.now()
	cutoff := now.Add(-s.threshold)
	out := make([]AgentStatus, len(s.agents))

	var wg sync.WaitGroup
	for i, agent := range s.agents {
		wg.Add(1)
		go func(i int, agent config.AgentEntry) {
			defer wg.Done()
			status := AgentStatus{Name: agent.Name, Status: StatusInactive, LastActivity: now}
			last, err := s.store.LatestActivity(ctx, agent.Table, cutoff)
			switch {
			case err != nil:
				s.logger.Warn("agent health check failed",
					slog.String("agent", agent.Name),
					slog.String("table", agent.Table),
					slog.Any("error", err),
				)
				s.record("agent_health", reasonFor(err))
			case last != nil:
				status.Status = StatusOperative
				status.LastActivity = *last
			}
			out[i] = status
		}(i, agent)
	}
	wg.Wait()
	return fallback.OK(out)
}

func (s *Service) fail(metric string, key billing.RangeKey, err error) fallback.Result[int64] {
	reason := reasonFor(err)
	s.logger.Warn("dashboard metric query failed",
		slog.String("metric", metric),
		slog.String("range", string(key)),
		slog.Any("error", err),
	)
	s.record(metric, reason)
	return fallback.Fail[int64](reason, err)
}

func (s *Service) record(source string, reason fallback.Reason) {
	if s.recorder != nil {
		s.recorder.RecordFallback(source, reason)
	}
}

func reasonFor(err error) fallback.Reason {
	if errors.Is(err, context.DeadlineExceeded) {
		return fallback.ReasonTimeout
	}
	return fallback.ReasonStoreError
}
