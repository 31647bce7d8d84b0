package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gabigallardo/control-panel/internal/billing"
	"github.com/gabigallardo/control-panel/internal/fallback"
	"github.com/gabigallardo/control-panel/internal/services/metrics"
)

type stubBilling struct {
	result fallback.Result[billing.Data]
	calls  int
}

func (s *stubBilling) BillingData(context.Context, billing.RangeKey) fallback.Result[billing.Data] {
	s.calls++
	return s.result
}

type countStore struct{}

func (countStore) UniqueUsers(context.Context, *time.Time) (int64, error)      { return 10, nil }
func (countStore) SessionCount(context.Context, *time.Time) (int64, error)     { return 20, nil }
func (countStore) ConflictSessions(context.Context, *time.Time) (int64, error) { return 1, nil }
func (countStore) LatestActivity(context.Context, string, time.Time) (*time.Time, error) {
	return nil, errors.New("no table")
}

var now = time.Date(2025, time.March, 10, 14, 20, 0, 0, time.UTC)

func clock() time.Time { return now }

func TestMetricsAllMockWhenUnconfigured(t *testing.T) {
	svc := NewService(Options{Now: clock})

	m := svc.Metrics(context.Background(), billing.Range24h)
	require.Equal(t, int64(1245), m.UniqueUsers)
	require.Equal(t, int64(389), m.QueryVolume)
	require.Equal(t, int64(94), m.NonConflictRate)
	require.Len(t, m.Agents, 4)
	require.Len(t, m.TokenHistory, 24)
	require.Nil(t, m.ModelDistribution)
	require.GreaterOrEqual(t, m.AccumulatedCost, 3800.0)
	require.LessOrEqual(t, m.AccumulatedCost, 4600.0)
	require.GreaterOrEqual(t, m.AverageLatency, 1.1)
	require.LessOrEqual(t, m.AverageLatency, 1.8)
	require.Equal(t, []string{"agents", "billing", "nonConflictRate", "queryVolume", "uniqueUsers"}, m.Fallbacks)

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "modelDistribution")
	require.Contains(t, string(raw), `"hour":`)
}

func TestMetricsMockIsStableWithinHour(t *testing.T) {
	svc := NewService(Options{Now: clock})
	a := svc.Metrics(context.Background(), billing.Range7d)
	b := svc.Metrics(context.Background(), billing.Range7d)
	require.Equal(t, a.TokenHistory, b.TokenHistory)
	require.Equal(t, a.AccumulatedCost, b.AccumulatedCost)
	require.Len(t, a.TokenHistory, 8)
	for _, p := range a.TokenHistory {
		require.GreaterOrEqual(t, p.Tokens, int64(100))
	}
}

func TestMetricsUsesRealSources(t *testing.T) {
	store := countStore{}
	metricSvc := metrics.NewService(metrics.Options{Store: store, Now: clock})
	src := &stubBilling{result: fallback.OK(billing.Data{
		Range:           billing.Range24h,
		AccumulatedCost: decimal.RequireFromString("12.34"),
		Series:          []billing.SeriesPoint{{Label: "09:00", Tokens: 1500, Cost: decimal.RequireFromString("0.0075")}},
		ModelBreakdown: []billing.ModelAggregate{{
			Model: "gpt-4o", InputTokens: 1000, OutputTokens: 500, TotalTokens: 1500,
			Cost: decimal.RequireFromString("0.0075"),
		}},
	})}
	svc := NewService(Options{Metrics: metricSvc, Billing: src, Now: clock})

	m := svc.Metrics(context.Background(), billing.Range24h)
	require.Equal(t, 1, src.calls)
	require.Equal(t, int64(10), m.UniqueUsers)
	require.Equal(t, int64(20), m.QueryVolume)
	require.Equal(t, int64(95), m.NonConflictRate)
	require.Equal(t, 12.34, m.AccumulatedCost)
	require.Equal(t, []TokenPoint{{Hour: "09:00", Tokens: 1500, Cost: 0.0075}}, m.TokenHistory)
	require.Len(t, m.ModelDistribution, 1)
	require.Equal(t, 0.0075, m.ModelDistribution[0].Cost)
	require.Empty(t, m.Fallbacks)

	for _, a := range m.Agents {
		require.Equal(t, metrics.StatusInactive, a.Status)
	}
}

func TestMetricsBillingFailureFallsBack(t *testing.T) {
	src := &stubBilling{result: fallback.Fail[billing.Data](fallback.ReasonTimeout, context.DeadlineExceeded)}
	svc := NewService(Options{Billing: src, Now: clock})

	m := svc.Metrics(context.Background(), billing.Range30d)
	require.Len(t, m.TokenHistory, 31)
	require.Nil(t, m.ModelDistribution)
	require.Contains(t, m.Fallbacks, "billing")
}

func TestMockTokenHistoryWorkHours(t *testing.T) {
	res := billing.Resolve(billing.Range24h, now, time.UTC)
	points := MockTokenHistory(res.Window, mockRand(billing.Range24h, now))
	require.Len(t, points, 24)
	for _, p := range points {
		require.InDelta(t, float64(p.Tokens)*0.0015, p.Cost, 0.005)
	}
}
