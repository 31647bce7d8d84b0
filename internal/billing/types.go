package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostLineItem is one grouped amount inside a cost bucket.
type CostLineItem struct {
	Name   string
	Amount decimal.Decimal
}

// CostBucket is a provider cost bucket after validation.
type CostBucket struct {
	Start     time.Time
	LineItems []CostLineItem
}

// Total sums the bucket's line items.
func (b CostBucket) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range b.LineItems {
		total = total.Add(item.Amount)
	}
	return total
}

// ModelUsage is one per-model entry inside a usage bucket.
type ModelUsage struct {
	Model        string
	InputTokens  int64
	OutputTokens int64
	Requests     int64
}

// UsageBucket is a provider usage bucket after validation.
type UsageBucket struct {
	Start   time.Time
	Results []ModelUsage
}

// ModelAggregate accumulates usage for a model across a window.
type ModelAggregate struct {
	Model        string          `json:"model"`
	InputTokens  int64           `json:"inputTokens"`
	OutputTokens int64           `json:"outputTokens"`
	TotalTokens  int64           `json:"totalTokens"`
	Cost         decimal.Decimal `json:"cost"`
}

// SeriesPoint is one slot of the dense time series.
type SeriesPoint struct {
	Label  string          `json:"label"`
	Tokens int64           `json:"tokens"`
	Cost   decimal.Decimal `json:"cost"`
}

// DayCost is the provider-reported spend for a calendar date.
type DayCost struct {
	Date string          `json:"date"`
	Cost decimal.Decimal `json:"cost"`
}

// Data is the billing view returned to callers.
type Data struct {
	Range           RangeKey         `json:"range"`
	AccumulatedCost decimal.Decimal  `json:"accumulatedCost"`
	Series          []SeriesPoint    `json:"series"`
	ModelBreakdown  []ModelAggregate `json:"modelBreakdown"`
	CostByDay       []DayCost        `json:"costByDay"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}
