package billing

import "github.com/shopspring/decimal"

// Reconcile picks the headline cost: the locally priced estimate when the
// provider reports zero or less than it, otherwise the provider figure.
// This is an approximation of provider reporting lag, not an exact merge.
func Reconcile(provider, local decimal.Decimal) decimal.Decimal {
	if provider.IsZero() || local.GreaterThan(provider) {
		return local
	}
	return provider
}
