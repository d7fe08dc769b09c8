package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is a discount code. UsedCount never exceeds UsageLimit when a limit
// is set; it is only incremented through a conditional update.
type Coupon struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Code        string             `bson:"code" json:"code"`
	Type        DiscountType       `bson:"type" json:"type"`
	Value       float64            `bson:"value" json:"value"`
	MinSpend    *float64           `bson:"minSpend,omitempty" json:"minSpend,omitempty"`
	MaxDiscount *float64           `bson:"maxDiscount,omitempty" json:"maxDiscount,omitempty"`
	UsageLimit  *int               `bson:"usageLimit,omitempty" json:"usageLimit,omitempty"`
	UsedCount   int                `bson:"usedCount" json:"usedCount"`
	StartsAt    *time.Time         `bson:"startsAt,omitempty" json:"startsAt,omitempty"`
	EndsAt      *time.Time         `bson:"endsAt,omitempty" json:"endsAt,omitempty"`
	IsActive    bool               `bson:"isActive" json:"isActive"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}

// NormalizeCouponCode returns the stored form of a coupon code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
