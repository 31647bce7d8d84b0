// Package pricing estimates token cost from a per-million-token price table.
package pricing

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gabigallardo/control-panel/internal/config"
)

var million = decimal.NewFromInt(1_000_000)

// datedSuffix matches snapshot suffixes such as -2024-08-06, -20240806 or -0613.
var datedSuffix = regexp.MustCompile(`-(\d{4}-\d{2}-\d{2}|\d{8}|\d{4})$`)

// Price is the USD cost per one million tokens.
type Price struct {
	Input  decimal.Decimal
	Output decimal.Decimal
}

// PriceOf builds a Price from float per-million rates.
func PriceOf(input, output float64) Price {
	return Price{Input: decimal.NewFromFloat(input), Output: decimal.NewFromFloat(output)}
}

// Table resolves model ids to prices.
type Table struct {
	prices map[string]Price
	def    Price
}

// NewTable merges overrides over the embedded prices.
func NewTable(def Price, overrides map[string]Price) *Table {
	prices := embeddedPrices()
	for model, price := range overrides {
		prices[normalize(model)] = price
	}
	return &Table{prices: prices, def: def}
}

// FromConfig builds the table from pricing configuration.
func FromConfig(cfg config.PricingConfig) *Table {
	overrides := make(map[string]Price, len(cfg.Models))
	for _, entry := range cfg.Models {
		overrides[entry.Model] = PriceOf(entry.Input, entry.Output)
	}
	return NewTable(PriceOf(cfg.DefaultInput, cfg.DefaultOutput), overrides)
}

// Lookup returns the price for model. found is false when the default rate applies.
func (t *Table) Lookup(model string) (price Price, found bool) {
	id := normalize(model)
	if p, ok := t.prices[id]; ok {
		return p, true
	}
	if base := datedSuffix.ReplaceAllString(id, ""); base != id {
		if p, ok := t.prices[base]; ok {
			return p, true
		}
	}
	return t.def, false
}

// Cost prices a single usage entry.
func (t *Table) Cost(model string, inputTokens, outputTokens int64) decimal.Decimal {
	p, _ := t.Lookup(model)
	in := decimal.NewFromInt(inputTokens).Div(million).Mul(p.Input)
	out := decimal.NewFromInt(outputTokens).Div(million).Mul(p.Output)
	return in.Add(out)
}

func normalize(model string) string {
	return strings.ToLower(strings.TrimSpace(model))
}

func embeddedPrices() map[string]Price {
	return map[string]Price{
		"gpt-5":         PriceOf(1.25, 10.00),
		"gpt-5-mini":    PriceOf(0.25, 2.00),
		"gpt-5-nano":    PriceOf(0.05, 0.40),
		"gpt-4.1":       PriceOf(2.00, 8.00),
		"gpt-4.1-mini":  PriceOf(0.40, 1.60),
		"gpt-4.1-nano":  PriceOf(0.10, 0.40),
		"gpt-4o":        PriceOf(2.50, 10.00),
		"gpt-4o-mini":   PriceOf(0.15, 0.60),
		"gpt-4-turbo":   PriceOf(10.00, 30.00),
		"gpt-4":         PriceOf(30.00, 60.00),
		"gpt-3.5-turbo": PriceOf(0.50, 1.50),
		"o1":            PriceOf(15.00, 60.00),
		"o1-mini":       PriceOf(1.10, 4.40),
		"o3":            PriceOf(2.00, 8.00),
		"o3-mini":       PriceOf(1.10, 4.40),
		"o4-mini":       PriceOf(1.10, 4.40),
	}
}
