package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/models"
)

type createCouponRequest struct {
	Code        string              `json:"code" binding:"required"`
	Type        models.DiscountType `json:"type" binding:"required,oneof=percentage fixed"`
	Value       float64             `json:"value" binding:"gt=0"`
	MinSpend    *float64            `json:"minSpend" binding:"omitempty,gte=0"`
	MaxDiscount *float64            `json:"maxDiscount" binding:"omitempty,gt=0"`
	UsageLimit  *int                `json:"usageLimit" binding:"omitempty,gt=0"`
	StartsAt    *time.Time          `json:"startsAt"`
	EndsAt      *time.Time          `json:"endsAt"`
	IsActive    *bool               `json:"isActive"`
}

func CreateCoupon(coupons CouponManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/coupons"
		defer handlePanic(c, route)

		var req createCouponRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		active := true
		if req.IsActive != nil {
			active = *req.IsActive
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		created, err := coupons.Create(ctx, models.Coupon{
			Code:        req.Code,
			Type:        req.Type,
			Value:       req.Value,
			MinSpend:    req.MinSpend,
			MaxDiscount: req.MaxDiscount,
			UsageLimit:  req.UsageLimit,
			StartsAt:    req.StartsAt,
			EndsAt:      req.EndsAt,
			IsActive:    active,
		})
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

func GetCoupons(coupons CouponManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/coupons"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		list, err := coupons.List(ctx)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

type validateCouponRequest struct {
	Code     string  `json:"code" binding:"required"`
	Subtotal float64 `json:"subtotal" binding:"gte=0"`
}

// ValidateCoupon previews a coupon against a subtotal. Failures are
// reported as 422 with the validation result.
func ValidateCoupon(coupons CouponManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/coupons/validate"
		defer handlePanic(c, route)

		var req validateCouponRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		quote, err := coupons.Check(ctx, req.Code, req.Subtotal)
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"code":     quote.Code,
			"result":   quote.Result,
			"discount": quote.Discount,
		})
	}
}
