// Package shipping computes weight-tiered delivery fees.
package shipping

import (
	"github.com/shopspring/decimal"

	"storefront/internal/models"
)

// ComputeFee returns the delivery fee for an order of the given weight and
// subtotal. Orders at or above the free shipping threshold ship for free.
// Tiers are matched in configured order; when none matches, the last tier's
// fee is charged so checkout never fails on a configuration gap.
func ComputeFee(totalWeightGrams int, subtotal float64, cfg models.ShippingConfig) float64 {
	if subtotal >= cfg.FreeShippingThreshold {
		return 0
	}
	if len(cfg.Tiers) == 0 {
		return 0
	}
	for _, tier := range cfg.Tiers {
		if matches(tier, totalWeightGrams) {
			return tier.Fee
		}
	}
	return cfg.Tiers[len(cfg.Tiers)-1].Fee
}

// ComputeExpressFee adds the express surcharge to the standard fee.
func ComputeExpressFee(totalWeightGrams int, subtotal float64, cfg models.ShippingConfig) float64 {
	fee := decimal.NewFromFloat(ComputeFee(totalWeightGrams, subtotal, cfg))
	return fee.Add(decimal.NewFromFloat(cfg.ExpressSurcharge)).Round(2).InexactFloat64()
}

// FeeFor picks the calculation matching the delivery method.
func FeeFor(method string, totalWeightGrams int, subtotal float64, cfg models.ShippingConfig) float64 {
	if method == models.DeliveryExpress {
		return ComputeExpressFee(totalWeightGrams, subtotal, cfg)
	}
	return ComputeFee(totalWeightGrams, subtotal, cfg)
}

func matches(tier models.WeightTier, weight int) bool {
	if weight < tier.MinWeight {
		return false
	}
	return tier.MaxWeight == models.UnboundedWeight || weight <= tier.MaxWeight
}
