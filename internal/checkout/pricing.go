package checkout

import (
	"math"
	"strings"
)

// Pricer computes tax and shipping from configured rate tables. Rates are
// configuration, not contract: ops tune them per region and method.
type Pricer struct {
	TaxRates          map[string]float64 // region -> fraction
	DefaultTaxRate    float64
	ShippingRates     map[string]int // method -> cents
	FreeShippingCents int            // subtotal at which shipping is free
}

// Tax rounds half away from zero to whole cents.
func (p Pricer) Tax(region string, subtotalCents int) int {
	rate, ok := p.TaxRates[strings.ToUpper(strings.TrimSpace(region))]
	if !ok {
		rate = p.DefaultTaxRate
	}
	return int(math.Round(float64(subtotalCents) * rate))
}

// Shipping returns the cost for the method, free once the subtotal crosses
// the threshold. Unknown methods report ok=false.
func (p Pricer) Shipping(method string, subtotalCents int) (cents int, ok bool) {
	cents, ok = p.ShippingRates[strings.ToLower(strings.TrimSpace(method))]
	if !ok {
		return 0, false
	}
	if p.FreeShippingCents > 0 && subtotalCents >= p.FreeShippingCents {
		return 0, true
	}
	return cents, true
}
