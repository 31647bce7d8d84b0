package dashboard

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gabigallardo/control-panel/internal/billing"
	"github.com/gabigallardo/control-panel/internal/fallback"
	"github.com/gabigallardo/control-panel/internal/services/metrics"
	"github.com/gabigallardo/control-panel/internal/timeutil"
)

// BillingSource supplies billing data or the reason it is absent.
type BillingSource interface {
	BillingData(ctx context.Context, key billing.RangeKey) fallback.Result[billing.Data]
}

// TokenPoint is one slot of the chart series as the front-end reads it.
type TokenPoint struct {
	Hour   string  `json:"hour"`
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// ModelUsage is one row of the per-model distribution.
type ModelUsage struct {
	Model        string  `json:"model"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	TotalTokens  int64   `json:"totalTokens"`
	Cost         float64 `json:"cost"`
}

// Metrics is the full dashboard payload.
type Metrics struct {
	Range             billing.RangeKey      `json:"range"`
	UniqueUsers       int64                 `json:"uniqueUsers"`
	QueryVolume       int64                 `json:"queryVolume"`
	NonConflictRate   int64                 `json:"nonConflictRate"`
	AccumulatedCost   float64               `json:"accumulatedCost"`
	AverageLatency    float64               `json:"averageLatency"`
	Agents            []metrics.AgentStatus `json:"agents"`
	TokenHistory      []TokenPoint          `json:"tokenHistory"`
	ModelDistribution []ModelUsage          `json:"modelDistribution,omitempty"`
	// Fallbacks names the figures that were replaced by defaults.
	Fallbacks []string `json:"fallbacks,omitempty"`
}

type Options struct {
	Metrics  *metrics.Service
	Billing  BillingSource
	Location *time.Location
	Logger   *slog.Logger
	Now      func() time.Time
}

// Service composes card metrics and billing into one dashboard view.
type Service struct {
	metrics *metrics.Service
	billing BillingSource
	loc     *time.Location
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(opts Options) *Service {
	s := &Service{
		metrics: opts.Metrics,
		billing: opts.Billing,
		loc:     timeutil.EnsureLocation(opts.Location),
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if s.metrics == nil {
		s.metrics = metrics.NewService(metrics.Options{Location: s.loc, Now: opts.Now})
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Billing returns the billing result for the range. Unconfigured services report unconfigured.
func (s *Service) Billing(ctx context.Context, key billing.RangeKey) fallback.Result[billing.Data] {
	if s.billing == nil {
		return fallback.Fail[billing.Data](fallback.ReasonUnconfigured, nil)
	}
	return s.billing.BillingData(ctx, key)
}

// Metrics fans out every source for the range and waits for all of them.
// Each absent figure is replaced by its default here, once.
func (s *Service) Metrics(ctx context.Context, key billing.RangeKey) Metrics {
	var (
		wg        sync.WaitGroup
		users     fallback.Result[int64]
		volume    fallback.Result[int64]
		rate      fallback.Result[int64]
		agents    fallback.Result[[]metrics.AgentStatus]
		billingRs fallback.Result[billing.Data]
	)
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	run(func() { users = s.metrics.UniqueUsers(ctx, key) })
	run(func() { volume = s.metrics.QueryVolume(ctx, key) })
	run(func() { rate = s.metrics.NonConflictRate(ctx, key) })
	run(func() { agents = s.metrics.AgentHealth(ctx) })
	run(func() { billingRs = s.Billing(ctx, key) })
	wg.Wait()

	now := s.now()
	out := Metrics{Range: key}
	out.UniqueUsers = users.OrElse(func() int64 { return metrics.MockUniqueUsers(key) })
	out.QueryVolume = volume.OrElse(func() int64 { return metrics.MockQueryVolume(key) })
	out.NonConflictRate = rate.OrElse(metrics.MockNonConflictRate)
	out.Agents = agents.OrElse(func() []metrics.AgentStatus {
		return metrics.MockAgentHealth(s.metrics.Agents(), now)
	})
	for name, ok := range map[string]bool{
		"uniqueUsers":     users.Ok(),
		"queryVolume":     volume.Ok(),
		"nonConflictRate": rate.Ok(),
		"agents":          agents.Ok(),
		"billing":         billingRs.Ok(),
	} {
		if !ok {
			out.Fallbacks = append(out.Fallbacks, name)
		}
	}
	sort.Strings(out.Fallbacks)

	rng := mockRand(key, now)
	if billingRs.Ok() {
		data := billingRs.Value
		out.AccumulatedCost = data.AccumulatedCost.InexactFloat64()
		out.TokenHistory = TokenHistory(data.Series)
		out.ModelDistribution = ModelDistribution(data.ModelBreakdown)
	} else {
		res := billing.Resolve(key, now, s.loc)
		out.TokenHistory = MockTokenHistory(res.Window, rng)
		out.AccumulatedCost = MockAccumulatedCost(rng)
	}
	out.AverageLatency = MockAverageLatency(rng)
	return out
}

// TokenHistory converts billing series points into chart points.
func TokenHistory(series []billing.SeriesPoint) []TokenPoint {
	out := make([]TokenPoint, 0, len(series))
	for _, p := range series {
		out = append(out, TokenPoint{Hour: p.Label, Tokens: p.Tokens, Cost: p.Cost.InexactFloat64()})
	}
	return out
}

// ModelDistribution converts the billing breakdown into response rows.
func ModelDistribution(models []billing.ModelAggregate) []ModelUsage {
	out := make([]ModelUsage, 0, len(models))
	for _, m := range models {
		out = append(out, ModelUsage{
			Model:        m.Model,
			InputTokens:  m.InputTokens,
			OutputTokens: m.OutputTokens,
			TotalTokens:  m.TotalTokens,
			Cost:         m.Cost.InexactFloat64(),
		})
	}
	return out
}

// mockRand is seeded by range and hour so refreshes within an hour render the same numbers.
func mockRand(key billing.RangeKey, now time.Time) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return rand.New(rand.NewPCG(h.Sum64(), uint64(now.Truncate(time.Hour).Unix())))
}

// MockTokenHistory builds a dense plausible series for the window: busier
// during working hours for hourly windows, day-sized totals otherwise.
func MockTokenHistory(win timeutil.Window, rng *rand.Rand) []TokenPoint {
	labels := win.SlotLabels()
	points := make([]TokenPoint, 0, len(labels))
	base := 800.0
	scale := 1.0
	if !win.Hourly() {
		scale = 24
	}
	for _, label := range labels {
		multiplier := 1.0
		if win.Hourly() {
			if hour, err := strconv.Atoi(label[:2]); err == nil && hour >= 9 && hour <= 18 {
				multiplier = 2.5
			}
		}
		noise := (rng.Float64() - 0.3) * 400
		tokens := int64(math.Max(100, math.Round((base+noise)*multiplier*scale)))
		base += (rng.Float64() - 0.4) * 100
		points = append(points, TokenPoint{
			Hour:   label,
			Tokens: tokens,
			Cost:   round(float64(tokens)*0.0015, 2),
		})
	}
	return points
}

// MockAccumulatedCost returns a headline cost between 3800 and 4600.
func MockAccumulatedCost(rng *rand.Rand) float64 {
	return round(3800+rng.Float64()*800, 2)
}

// MockAverageLatency returns a latency between 1.1 and 1.8 seconds. No source
// reports latency, so this figure is always a default.
func MockAverageLatency(rng *rand.Rand) float64 {
	return round(1.1+rng.Float64()*0.7, 1)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
