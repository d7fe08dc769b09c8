package models

import "time"

// UnboundedWeight marks a tier without an upper weight limit.
const UnboundedWeight = -1

type WeightTier struct {
	MinWeight int     `bson:"minWeight" json:"minWeight"`
	MaxWeight int     `bson:"maxWeight" json:"maxWeight"`
	Fee       float64 `bson:"fee" json:"fee"`
}

// ShippingConfig is stored as a single settings document.
type ShippingConfig struct {
	Tiers                 []WeightTier `bson:"tiers" json:"tiers"`
	FreeShippingThreshold float64      `bson:"freeShippingThreshold" json:"freeShippingThreshold"`
	ExpressSurcharge      float64      `bson:"expressSurcharge" json:"expressSurcharge"`
	UpdatedAt             time.Time    `bson:"updatedAt" json:"updatedAt"`
}
