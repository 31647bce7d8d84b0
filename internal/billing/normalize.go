package billing

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gabigallardo/control-panel/internal/pricing"
	"github.com/gabigallardo/control-panel/internal/timeutil"
)

const (
	seriesPlaces   = 4
	headlinePlaces = 2
)

// Normalized is the folded view of one window's cost and usage buckets.
type Normalized struct {
	ProviderCost decimal.Decimal
	LocalCost    decimal.Decimal
	Models       []ModelAggregate
	Series       []SeriesPoint
	CostByDay    []DayCost
}

// Normalize folds raw buckets into per-model aggregates and a dense series.
func Normalize(costs []CostBucket, usage []UsageBucket, res Resolution, prices *pricing.Table) Normalized {
	out := Normalized{ProviderCost: decimal.Zero, LocalCost: decimal.Zero}

	daily := map[string]decimal.Decimal{}
	for _, bucket := range costs {
		total := bucket.Total()
		out.ProviderCost = out.ProviderCost.Add(total)
		date := bucketDay(bucket.Start, res)
		daily[date] = daily[date].Add(total)
	}
	out.CostByDay = make([]DayCost, 0, len(daily))
	for date, cost := range daily {
		out.CostByDay = append(out.CostByDay, DayCost{Date: date, Cost: cost})
	}
	sort.Slice(out.CostByDay, func(i, j int) bool { return out.CostByDay[i].Date < out.CostByDay[j].Date })

	labels := res.Window.SlotLabels()
	out.Series = make([]SeriesPoint, len(labels))
	slotIndex := make(map[string]int, len(labels))
	for i, label := range labels {
		out.Series[i] = SeriesPoint{Label: label, Cost: decimal.Zero}
		slotIndex[label] = i
	}
	if res.Window.Hourly() {
		// Labels repeat across a DST fall-back, so hours are keyed by instant.
		slotIndex = make(map[string]int, len(labels))
		for i, start := range res.Window.HourSlots() {
			slotIndex[hourKey(start)] = i
		}
	}

	modelIndex := map[string]int{}
	for _, bucket := range usage {
		slot := slotFor(bucket, res, slotIndex, len(labels))
		for _, entry := range bucket.Results {
			cost := prices.Cost(entry.Model, entry.InputTokens, entry.OutputTokens)
			tokens := entry.InputTokens + entry.OutputTokens

			idx, ok := modelIndex[entry.Model]
			if !ok {
				idx = len(out.Models)
				modelIndex[entry.Model] = idx
				out.Models = append(out.Models, ModelAggregate{Model: entry.Model, Cost: decimal.Zero})
			}
			agg := &out.Models[idx]
			agg.InputTokens += entry.InputTokens
			agg.OutputTokens += entry.OutputTokens
			agg.TotalTokens += tokens
			agg.Cost = agg.Cost.Add(cost)

			point := &out.Series[slot]
			point.Tokens += tokens
			point.Cost = point.Cost.Add(cost)

			out.LocalCost = out.LocalCost.Add(cost)
		}
	}

	sort.SliceStable(out.Models, func(i, j int) bool {
		return out.Models[i].TotalTokens > out.Models[j].TotalTokens
	})
	if out.Models == nil {
		out.Models = []ModelAggregate{}
	}
	return out
}

// slotFor places a usage bucket in the series. Buckets dated outside the
// window land in the nearest edge slot.
func slotFor(bucket UsageBucket, res Resolution, slotIndex map[string]int, slots int) int {
	key := bucketDay(bucket.Start, res)
	if res.Window.Hourly() {
		key = hourKey(timeutil.TruncateToHour(bucket.Start, res.Window.Location()))
	}
	if idx, ok := slotIndex[key]; ok {
		return idx
	}
	if bucket.Start.Before(res.Start()) {
		return 0
	}
	return slots - 1
}

// bucketDay dates a provider bucket. Daily buckets open at UTC midnight, so
// they carry their UTC date whatever the reporting zone.
func bucketDay(start time.Time, res Resolution) string {
	if res.Plan.Width == WidthDay {
		return timeutil.DayLabel(start, time.UTC)
	}
	return timeutil.DayLabel(start, res.Window.Location())
}

func hourKey(start time.Time) string {
	return strconv.FormatInt(start.Unix(), 10)
}

// Compose reconciles the two cost views and rounds for presentation.
func (n Normalized) Compose(key RangeKey) Data {
	data := Data{
		Range:           key,
		AccumulatedCost: Reconcile(n.ProviderCost, n.LocalCost).Round(headlinePlaces),
		Series:          make([]SeriesPoint, len(n.Series)),
		ModelBreakdown:  make([]ModelAggregate, len(n.Models)),
		CostByDay:       make([]DayCost, len(n.CostByDay)),
	}
	for i, p := range n.Series {
		p.Cost = p.Cost.Round(seriesPlaces)
		data.Series[i] = p
	}
	for i, m := range n.Models {
		m.Cost = m.Cost.Round(seriesPlaces)
		data.ModelBreakdown[i] = m
	}
	for i, d := range n.CostByDay {
		d.Cost = d.Cost.Round(seriesPlaces)
		data.CostByDay[i] = d
	}
	return data
}
