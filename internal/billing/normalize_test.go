package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gabigallardo/control-panel/internal/pricing"
)

func testPrices() *pricing.Table {
	return pricing.NewTable(pricing.PriceOf(3, 3), map[string]pricing.Price{
		"gpt-4o": pricing.PriceOf(2.50, 10.00),
	})
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNormalizeSingleHourScenario(t *testing.T) {
	now := time.Date(2025, time.March, 10, 14, 20, 0, 0, time.UTC)
	res := Resolve(Range24h, now, time.UTC)
	usage := []UsageBucket{{
		Start: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC),
		Results: []ModelUsage{
			{Model: "gpt-4o", InputTokens: 1000, OutputTokens: 500},
		},
	}}

	out := Normalize(nil, usage, res, testPrices())

	require.Len(t, out.Models, 1)
	m := out.Models[0]
	require.Equal(t, "gpt-4o", m.Model)
	require.Equal(t, int64(1000), m.InputTokens)
	require.Equal(t, int64(500), m.OutputTokens)
	require.Equal(t, int64(1500), m.TotalTokens)
	require.True(t, m.Cost.Equal(dec("0.0075")), "got %s", m.Cost)

	require.Len(t, out.Series, 24)
	hits := 0
	for _, p := range out.Series {
		if p.Label == "09:00" {
			hits++
			require.Equal(t, int64(1500), p.Tokens)
			require.True(t, p.Cost.Equal(dec("0.0075")))
			continue
		}
		require.Zero(t, p.Tokens, "slot %s", p.Label)
		require.True(t, p.Cost.IsZero(), "slot %s", p.Label)
	}
	require.Equal(t, 1, hits)
}

func TestNormalizeSumsReconcile(t *testing.T) {
	now := time.Date(2025, time.March, 10, 14, 20, 0, 0, time.UTC)
	res := Resolve(Range7d, now, time.UTC)
	day := func(d int) time.Time { return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC) }

	usage := []UsageBucket{
		{Start: day(4), Results: []ModelUsage{{Model: "gpt-4o", InputTokens: 10, OutputTokens: 5}}},
		{Start: day(6), Results: []ModelUsage{
			{Model: "gpt-4o-mini", InputTokens: 400, OutputTokens: 100},
			{Model: "gpt-4o", InputTokens: 20, OutputTokens: 0},
		}},
		// Dated before the window's first calendar day: clamped to the first slot.
		{Start: day(1), Results: []ModelUsage{{Model: "unknown", InputTokens: 7, OutputTokens: 0}}},
		// After the last day: clamped to the last slot.
		{Start: day(12), Results: []ModelUsage{{Model: "unknown", InputTokens: 3, OutputTokens: 0}}},
	}
	costs := []CostBucket{
		{Start: day(4), LineItems: []CostLineItem{{Name: "a", Amount: dec("1.25")}, {Name: "b", Amount: dec("0.75")}}},
		{Start: day(6), LineItems: []CostLineItem{{Name: "a", Amount: dec("3.10")}}},
	}

	out := Normalize(costs, usage, res, testPrices())

	require.Len(t, out.Series, 8)
	require.Equal(t, "2025-03-03", out.Series[0].Label)
	require.Equal(t, "2025-03-10", out.Series[7].Label)
	require.Equal(t, int64(7), out.Series[0].Tokens)
	require.Equal(t, int64(3), out.Series[7].Tokens)

	var seriesTokens, modelTokens int64
	for _, p := range out.Series {
		seriesTokens += p.Tokens
	}
	for _, m := range out.Models {
		modelTokens += m.TotalTokens
	}
	require.Equal(t, seriesTokens, modelTokens)
	require.Equal(t, int64(545), seriesTokens)

	require.True(t, out.ProviderCost.Equal(dec("5.10")), "got %s", out.ProviderCost)
	require.Len(t, out.CostByDay, 2)
	require.Equal(t, "2025-03-04", out.CostByDay[0].Date)
	require.True(t, out.CostByDay[0].Cost.Equal(dec("2")))

	require.Equal(t, "gpt-4o-mini", out.Models[0].Model)
	require.Equal(t, "gpt-4o", out.Models[1].Model)
	require.Equal(t, "unknown", out.Models[2].Model)
}

func TestNormalizeStableSortKeepsEncounterOrder(t *testing.T) {
	now := time.Date(2025, time.March, 10, 14, 20, 0, 0, time.UTC)
	res := Resolve(Range24h, now, time.UTC)
	usage := []UsageBucket{{
		Start: now.Add(-time.Hour),
		Results: []ModelUsage{
			{Model: "b", InputTokens: 5},
			{Model: "a", InputTokens: 5},
			{Model: "c", InputTokens: 9},
		},
	}}

	out := Normalize(nil, usage, res, testPrices())
	require.Equal(t, []string{"c", "b", "a"}, []string{out.Models[0].Model, out.Models[1].Model, out.Models[2].Model})
}

func TestNormalizeDenseSlotCounts(t *testing.T) {
	now := time.Date(2025, time.March, 10, 14, 20, 0, 0, time.UTC)
	for _, key := range RangeKeys {
		res := Resolve(key, now, time.UTC)
		out := Normalize(nil, nil, res, testPrices())
		want := 24
		if !res.Window.Hourly() {
			days := int(res.End().Sub(res.Start()).Hours() / 24)
			want = days + 1
		}
		require.Len(t, out.Series, want, "range %s", key)
		require.Empty(t, out.Models)
		require.True(t, out.ProviderCost.IsZero())
	}
}

func TestComposeRoundsAndReconciles(t *testing.T) {
	n := Normalized{
		ProviderCost: dec("1.234"),
		LocalCost:    dec("2.34567"),
		Series:       []SeriesPoint{{Label: "09:00", Tokens: 1, Cost: dec("0.123456")}},
		Models:       []ModelAggregate{{Model: "gpt-4o", Cost: dec("0.000049")}},
	}
	data := n.Compose(Range24h)
	require.True(t, data.AccumulatedCost.Equal(dec("2.35")), "got %s", data.AccumulatedCost)
	require.True(t, data.Series[0].Cost.Equal(dec("0.1235")))
	require.True(t, data.ModelBreakdown[0].Cost.Equal(dec("0")))
	require.Equal(t, Range24h, data.Range)
}

func TestNormalizeHourlyAcrossFallBack(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2025, time.November, 2, 10, 30, 0, 0, loc)
	res := Resolve(Range24h, now, loc)

	first := time.Date(2025, time.November, 1, 16, 0, 0, 0, time.UTC)
	usage := make([]UsageBucket, 0, 24)
	for i := 0; i < 24; i++ {
		usage = append(usage, UsageBucket{
			Start:   first.Add(time.Duration(i) * time.Hour),
			Results: []ModelUsage{{Model: "gpt-4o", InputTokens: 1}},
		})
	}

	out := Normalize(nil, usage, res, testPrices())

	require.Len(t, out.Series, 24)
	repeated := 0
	for i, p := range out.Series {
		require.Equal(t, int64(1), p.Tokens, "slot %d (%s)", i, p.Label)
		if p.Label == "01:00" {
			repeated++
		}
	}
	require.Equal(t, 2, repeated)
	require.Equal(t, "10:00", out.Series[23].Label)
}

func TestNormalizeDailyBucketsKeepProviderDate(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	now := time.Date(2025, time.March, 10, 14, 20, 0, 0, time.UTC)
	res := Resolve(Range7d, now, loc)
	day := func(d int) time.Time { return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC) }

	var (
		usage []UsageBucket
		costs []CostBucket
	)
	for d := 3; d <= 10; d++ {
		usage = append(usage, UsageBucket{Start: day(d), Results: []ModelUsage{{Model: "gpt-4o", InputTokens: int64(d)}}})
		costs = append(costs, CostBucket{Start: day(d), LineItems: []CostLineItem{{Name: "a", Amount: dec("1")}}})
	}

	out := Normalize(costs, usage, res, testPrices())

	require.Len(t, out.Series, 8)
	for i, p := range out.Series {
		require.Equal(t, int64(i+3), p.Tokens, "slot %s", p.Label)
	}
	require.Equal(t, "2025-03-10", out.Series[7].Label)
	require.Len(t, out.CostByDay, 8)
	require.Equal(t, "2025-03-03", out.CostByDay[0].Date)
	require.Equal(t, "2025-03-10", out.CostByDay[7].Date)
}
