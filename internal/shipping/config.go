package shipping

import (
	"fmt"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

// DefaultConfig is used until an admin stores a shipping configuration.
func DefaultConfig() models.ShippingConfig {
	return models.ShippingConfig{
		Tiers: []models.WeightTier{
			{MinWeight: 0, MaxWeight: 500, Fee: 500},
			{MinWeight: 501, MaxWeight: 1000, Fee: 750},
			{MinWeight: 1001, MaxWeight: 2000, Fee: 1000},
			{MinWeight: 2001, MaxWeight: models.UnboundedWeight, Fee: 1500},
		},
		FreeShippingThreshold: 15000,
		ExpressSurcharge:      400,
	}
}

// Validate checks an admin-supplied configuration.
func Validate(cfg models.ShippingConfig) error {
	if len(cfg.Tiers) == 0 {
		return apperr.Invalid("tiers", "at least one tier is required")
	}
	for i, tier := range cfg.Tiers {
		field := fmt.Sprintf("tiers[%d]", i)
		if tier.MinWeight < 0 {
			return apperr.Invalid(field, "minWeight must be zero or greater")
		}
		if tier.MaxWeight != models.UnboundedWeight && tier.MaxWeight < tier.MinWeight {
			return apperr.Invalid(field, "maxWeight must be -1 or not less than minWeight")
		}
		if tier.Fee < 0 {
			return apperr.Invalid(field, "fee must be zero or greater")
		}
	}
	if cfg.FreeShippingThreshold < 0 {
		return apperr.Invalid("freeShippingThreshold", "must be zero or greater")
	}
	if cfg.ExpressSurcharge < 0 {
		return apperr.Invalid("expressSurcharge", "must be zero or greater")
	}
	return nil
}
