// Package coupon validates coupons, prices their discount and redeems usage
// through the store's conditional increment.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

// Result is the outcome of validating a coupon.
type Result string

const (
	Valid         Result = "valid"
	Inactive      Result = "inactive"
	Expired       Result = "expired"
	NotStarted    Result = "not_started"
	BelowMinSpend Result = "below_min_spend"
	LimitReached  Result = "limit_reached"
)

// ErrLimitReached is returned by Store.Redeem when usedCount already reached usageLimit.
var ErrLimitReached = errors.New("coupon: usage limit reached")

// Store persists coupons. Redeem must increment usedCount in a single
// conditional write bounded by usageLimit.
type Store interface {
	FindByCode(ctx context.Context, code string) (models.Coupon, error)
	Insert(ctx context.Context, c models.Coupon) (models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	Redeem(ctx context.Context, code string) error
	Release(ctx context.Context, code string) error
}

// Validate checks, in order: active flag, start, end, minimum spend, usage limit.
func Validate(c models.Coupon, subtotal float64, now time.Time) Result {
	if !c.IsActive {
		return Inactive
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return NotStarted
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return Expired
	}
	if c.MinSpend != nil && subtotal < *c.MinSpend {
		return BelowMinSpend
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return LimitReached
	}
	return Valid
}

// ComputeDiscount never returns more than subtotal.
func ComputeDiscount(c models.Coupon, subtotal float64) float64 {
	if subtotal <= 0 {
		return 0
	}
	total := decimal.NewFromFloat(subtotal)
	var discount decimal.Decimal
	switch c.Type {
	case models.DiscountPercentage:
		discount = total.Mul(decimal.NewFromFloat(c.Value)).Div(decimal.NewFromInt(100))
		if c.MaxDiscount != nil {
			discount = decimal.Min(discount, decimal.NewFromFloat(*c.MaxDiscount))
		}
	case models.DiscountFixed:
		discount = decimal.NewFromFloat(c.Value)
	default:
		return 0
	}
	discount = decimal.Min(discount, total)
	if discount.IsNegative() {
		return 0
	}
	return discount.Round(2).InexactFloat64()
}

// Quote is a validated coupon together with the discount it yields.
type Quote struct {
	Code     string
	Result   Result
	Discount float64
}

type EngineDeps struct {
	Store  Store
	Clock  func() time.Time
	Logger *zap.Logger
}

type Engine struct {
	store  Store
	clock  func() time.Time
	logger *zap.Logger
}

func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("coupon engine: store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: deps.Store, clock: clock, logger: logger}, nil
}

// Quote looks up code and prices it against subtotal. Unknown codes are
// reported as Inactive with zero discount.
func (e *Engine) Quote(ctx context.Context, code string, subtotal float64) (Quote, error) {
	code = models.NormalizeCouponCode(code)
	c, err := e.store.FindByCode(ctx, code)
	if errors.Is(err, apperr.ErrNotFound) {
		return Quote{Code: code, Result: Inactive}, nil
	}
	if err != nil {
		return Quote{}, fmt.Errorf("coupon quote: %w", err)
	}
	result := Validate(c, subtotal, e.clock())
	if result != Valid {
		return Quote{Code: code, Result: result}, nil
	}
	return Quote{Code: code, Result: Valid, Discount: ComputeDiscount(c, subtotal)}, nil
}

// Redeem consumes one usage of code. It returns LimitReached when the
// conditional increment did not apply.
func (e *Engine) Redeem(ctx context.Context, code string) (Result, error) {
	err := e.store.Redeem(ctx, models.NormalizeCouponCode(code))
	switch {
	case err == nil:
		return Valid, nil
	case errors.Is(err, ErrLimitReached):
		return LimitReached, nil
	default:
		return "", fmt.Errorf("coupon redeem: %w", err)
	}
}

// Release gives back one usage after a checkout failed past redemption.
func (e *Engine) Release(ctx context.Context, code string) error {
	if err := e.store.Release(ctx, models.NormalizeCouponCode(code)); err != nil {
		return fmt.Errorf("coupon release: %w", err)
	}
	return nil
}

// Check validates a coupon for admin tooling. Unlike checkout it reports
// failures as a CouponError.
func (e *Engine) Check(ctx context.Context, code string, subtotal float64) (Quote, error) {
	code = models.NormalizeCouponCode(code)
	c, err := e.store.FindByCode(ctx, code)
	if err != nil {
		return Quote{}, err
	}
	result := Validate(c, subtotal, e.clock())
	if result != Valid {
		return Quote{Code: code, Result: result}, &apperr.CouponError{Code: code, Result: string(result)}
	}
	return Quote{Code: code, Result: Valid, Discount: ComputeDiscount(c, subtotal)}, nil
}

// Create stores a new coupon after normalising and validating it.
func (e *Engine) Create(ctx context.Context, c models.Coupon) (models.Coupon, error) {
	c.Code = models.NormalizeCouponCode(c.Code)
	if err := validateDefinition(c); err != nil {
		return models.Coupon{}, err
	}
	c.UsedCount = 0
	c.CreatedAt = e.clock().UTC()
	created, err := e.store.Insert(ctx, c)
	if err != nil {
		return models.Coupon{}, err
	}
	e.logger.Info("coupon created", zap.String("code", created.Code), zap.String("type", string(created.Type)))
	return created, nil
}

func (e *Engine) List(ctx context.Context) ([]models.Coupon, error) {
	return e.store.List(ctx)
}

func validateDefinition(c models.Coupon) error {
	if c.Code == "" {
		return apperr.Invalid("code", "required")
	}
	switch c.Type {
	case models.DiscountPercentage:
		if c.Value <= 0 || c.Value > 100 {
			return apperr.Invalid("value", "percentage must be within (0, 100]")
		}
	case models.DiscountFixed:
		if c.Value <= 0 || math.IsInf(c.Value, 0) {
			return apperr.Invalid("value", "must be greater than zero")
		}
		if c.MaxDiscount != nil {
			return apperr.Invalid("maxDiscount", "only applies to percentage coupons")
		}
	default:
		return apperr.Invalid("type", "must be percentage or fixed")
	}
	if c.MinSpend != nil && *c.MinSpend < 0 {
		return apperr.Invalid("minSpend", "must be zero or greater")
	}
	if c.MaxDiscount != nil && *c.MaxDiscount < 0 {
		return apperr.Invalid("maxDiscount", "must be zero or greater")
	}
	if c.UsageLimit != nil && *c.UsageLimit < 0 {
		return apperr.Invalid("usageLimit", "must be zero or greater")
	}
	if c.StartsAt != nil && c.EndsAt != nil && c.EndsAt.Before(*c.StartsAt) {
		return apperr.Invalid("endsAt", "must not be before startsAt")
	}
	return nil
}
