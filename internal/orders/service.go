// Package orders prices and places orders, reconciles gateway payment
// notifications and applies admin status changes.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/cache"
	"storefront/internal/coupon"
	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/orderstate"
	"storefront/internal/payment"
	"storefront/internal/shipping"
	"storefront/internal/stock"
)

// Outcome is the result of reconciling a payment notification.
type Outcome string

const (
	// Applied means the notification was verified and written to the order.
	Applied Outcome = "applied"
	// Ignored means the signature was valid but nothing could be applied.
	Ignored Outcome = "ignored"
	// Rejected means the signature failed verification.
	Rejected Outcome = "rejected"
)

// Coupons is the subset of the coupon engine used at checkout.
type Coupons interface {
	Quote(ctx context.Context, code string, subtotal float64) (coupon.Quote, error)
	Redeem(ctx context.Context, code string) (coupon.Result, error)
	Release(ctx context.Context, code string) error
}

// Deps bundles the collaborators of the order service.
type Deps struct {
	Catalog  Catalog
	Stock    stock.Ledger
	Coupons  Coupons
	Orders   Repository
	Shipping ShippingSettings
	Gateway  *payment.Gateway
	Events   events.Publisher
	Cache    cache.StatusCache
	Clock    func() time.Time
	Logger   *zap.Logger
}

type Service struct {
	catalog  Catalog
	stock    stock.Ledger
	coupons  Coupons
	orders   Repository
	shipping ShippingSettings
	gateway  *payment.Gateway
	events   events.Publisher
	cache    cache.StatusCache
	clock    func() time.Time
	logger   *zap.Logger
	validate *validator.Validate
}

func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("order service: catalog is required")
	case deps.Stock == nil:
		return nil, errors.New("order service: stock ledger is required")
	case deps.Coupons == nil:
		return nil, errors.New("order service: coupon engine is required")
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Shipping == nil:
		return nil, errors.New("order service: shipping settings are required")
	case deps.Gateway == nil:
		return nil, errors.New("order service: payment gateway is required")
	}

	s := &Service{
		catalog:  deps.Catalog,
		stock:    deps.Stock,
		coupons:  deps.Coupons,
		orders:   deps.Orders,
		shipping: deps.Shipping,
		gateway:  deps.Gateway,
		events:   deps.Events,
		cache:    deps.Cache,
		clock:    deps.Clock,
		logger:   deps.Logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.cache == nil {
		s.cache = cache.Nop{}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// CreateOrder resolves and snapshots every line, reserves stock, prices the
// order and persists it as pending. Any failure after reservation restores
// the reserved stock (and releases a redeemed coupon) before returning.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (models.Order, error) {
	if err := s.validate.Struct(in); err != nil {
		return models.Order{}, validationError(err)
	}

	lines, err := s.resolveLines(ctx, in.Items)
	if err != nil {
		return models.Order{}, err
	}

	reservations := make([]stock.Line, 0, len(lines))
	for _, line := range lines {
		reservations = append(reservations, stock.Line{SKU: line.VariantSKU, Quantity: line.Quantity})
	}
	if err := stock.ReserveLines(ctx, s.stock, reservations, s.logger); err != nil {
		return models.Order{}, err
	}

	var undo compensations
	undo.push("restore stock", func(ctx context.Context) error {
		return stock.RestoreLines(ctx, s.stock, reservations, s.logger)
	})

	order, err := s.priceAndPersist(ctx, in, lines, &undo)
	if err != nil {
		undo.run(ctx, s.logger)
		return models.Order{}, err
	}

	s.logger.Info("order created",
		zap.String("orderId", order.ID.Hex()),
		zap.Bool("guest", order.UserID == nil),
		zap.Float64("total", order.Total),
		zap.String("coupon", order.CouponCode),
	)
	s.publish(ctx, events.TypeOrderCreated, order.ID.Hex(), events.OrderCreatedPayload{
		OrderID:     order.ID.Hex(),
		Email:       order.Email,
		Subtotal:    order.Subtotal,
		Discount:    order.Discount,
		DeliveryFee: order.DeliveryFee,
		Total:       order.Total,
		CouponCode:  order.CouponCode,
		LineCount:   len(order.Lines),
	})
	s.refreshCache(ctx, order)
	return order, nil
}

func (s *Service) priceAndPersist(ctx context.Context, in CreateOrderInput, lines []models.OrderLine, undo *compensations) (models.Order, error) {
	subtotal := Subtotal(lines)

	var discount float64
	var couponCode string
	if code := models.NormalizeCouponCode(in.CouponCode); code != "" {
		quote, err := s.coupons.Quote(ctx, code, subtotal)
		if err != nil {
			return models.Order{}, err
		}
		if quote.Result == coupon.Valid && quote.Discount > 0 {
			result, err := s.coupons.Redeem(ctx, code)
			if err != nil {
				return models.Order{}, err
			}
			if result == coupon.Valid {
				discount = quote.Discount
				couponCode = code
				undo.push("release coupon", func(ctx context.Context) error {
					return s.coupons.Release(ctx, code)
				})
			} else {
				s.logger.Info("coupon lost redemption race, applying no discount", zap.String("coupon", code))
			}
		} else {
			s.logger.Info("coupon not applicable, applying no discount",
				zap.String("coupon", code),
				zap.String("result", string(quote.Result)),
			)
		}
	}

	cfg, err := s.shipping.ShippingConfig(ctx)
	if err != nil {
		return models.Order{}, fmt.Errorf("load shipping config: %w", err)
	}
	deliveryMethod := in.DeliveryMethod
	if deliveryMethod == "" {
		deliveryMethod = models.DeliveryStandard
	}
	weight := models.Order{Lines: lines}.TotalWeightGrams()
	deliveryFee := shipping.FeeFor(deliveryMethod, weight, subtotal, cfg)

	now := s.clock().UTC()
	order := models.Order{
		UserID:      in.UserID,
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		Address:     in.Address.snapshot(),
		Lines:       lines,
		Subtotal:    subtotal,
		Discount:    discount,
		DeliveryFee: deliveryFee,
		Total:       Total(subtotal, deliveryFee, discount),
		Status:      models.OrderPending,
		Payment: models.OrderPayment{
			Method: in.PaymentMethod,
			Status: models.PaymentPending,
		},
		Delivery: models.OrderDelivery{
			Method:  deliveryMethod,
			History: []models.StatusChange{{Status: models.OrderPending, Note: "order placed", At: now}},
		},
		CouponCode: couponCode,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	created, err := s.orders.Insert(ctx, order)
	if err != nil {
		return models.Order{}, fmt.Errorf("persist order: %w", err)
	}
	return created, nil
}

// resolveLines loads every referenced product once and snapshots the lines.
func (s *Service) resolveLines(ctx context.Context, items []LineInput) ([]models.OrderLine, error) {
	ids := make([]primitive.ObjectID, 0, len(items))
	parsed := make([]primitive.ObjectID, len(items))
	seen := map[primitive.ObjectID]bool{}
	for i, item := range items {
		id, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			return nil, apperr.Invalid(fmt.Sprintf("items[%d].productId", i), "invalid id")
		}
		parsed[i] = id
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	products, err := s.catalog.FindProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	lines := make([]models.OrderLine, 0, len(items))
	for i, item := range items {
		product, ok := products[parsed[i]]
		if !ok || !product.Available() {
			return nil, apperr.NotFound("product", item.ProductID)
		}
		sku := strings.TrimSpace(item.VariantSKU)
		variant, ok := product.Variant(sku)
		if !ok {
			return nil, apperr.NotFound("variant", sku)
		}
		lines = append(lines, models.OrderLine{
			ProductID:    product.ID,
			VariantSKU:   variant.SKU,
			Title:        product.Title,
			Size:         variant.Size,
			Color:        variant.Color,
			UnitPrice:    variant.UnitPrice(),
			Quantity:     item.Quantity,
			WeightGrams:  product.WeightGrams,
			CustomFields: item.CustomFields,
		})
	}
	return lines, nil
}

// Subtotal is Σ unit price × quantity, rounded to cents.
func Subtotal(lines []models.OrderLine) float64 {
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(decimal.NewFromFloat(line.UnitPrice).Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return sum.Round(2).InexactFloat64()
}

// Total is max(subtotal + deliveryFee - discount, 0).
func Total(subtotal, deliveryFee, discount float64) float64 {
	total := decimal.NewFromFloat(subtotal).
		Add(decimal.NewFromFloat(deliveryFee)).
		Sub(decimal.NewFromFloat(discount))
	if total.IsNegative() {
		return 0
	}
	return total.Round(2).InexactFloat64()
}

// ReconcilePayment verifies a gateway notification and applies it. The
// write is idempotent: payment fields are set, not incremented, and the
// pending→confirmed move is conditional on the order still being pending.
// An error is returned only together with Rejected or for store failures.
func (s *Service) ReconcilePayment(ctx context.Context, cb payment.Callback) (Outcome, error) {
	if err := s.gateway.VerifyCallback(cb); err != nil {
		s.logger.Warn("payment notification rejected",
			zap.String("orderId", cb.OrderID),
			zap.String("paymentId", cb.PaymentID),
			zap.Error(err),
		)
		return Rejected, err
	}

	log := s.logger.With(
		zap.String("orderId", cb.OrderID),
		zap.String("paymentId", cb.PaymentID),
		zap.String("statusCode", cb.StatusCode),
	)

	id, err := primitive.ObjectIDFromHex(cb.OrderID)
	if err != nil {
		log.Warn("payment notification for malformed order id")
		return Ignored, nil
	}
	order, err := s.orders.FindByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("payment notification for unknown order")
		return Ignored, nil
	}
	if err != nil {
		return Ignored, fmt.Errorf("load order: %w", err)
	}

	if !s.amountMatches(order, cb) {
		log.Warn("payment notification amount mismatch",
			zap.String("amount", cb.Amount),
			zap.String("currency", cb.Currency),
			zap.Float64("orderTotal", order.Total),
		)
		return Ignored, nil
	}

	status := payment.MapStatus(cb.StatusCode)
	now := s.clock().UTC()
	if err := s.orders.SetPayment(ctx, id, status, cb.PaymentID, now); err != nil {
		return Ignored, fmt.Errorf("set payment: %w", err)
	}
	order.Payment.Status = status
	if cb.PaymentID != "" {
		order.Payment.TransactionID = cb.PaymentID
	}

	if status == models.PaymentPaid && orderstate.IsTerminal(order.Status) {
		log.Warn("payment received for closed order, refund needed", zap.String("orderStatus", string(order.Status)))
	}

	if orderstate.ShouldConfirmOnPayment(order.Status, status) {
		changed, err := s.orders.CompareAndSetStatus(ctx, id,
			StatusCondition{In: []models.OrderStatus{models.OrderPending}},
			models.StatusChange{Status: models.OrderConfirmed, Note: "payment received", At: now},
		)
		if err != nil {
			return Ignored, fmt.Errorf("confirm order: %w", err)
		}
		if changed {
			s.publish(ctx, events.TypeOrderStatusChanged, cb.OrderID, events.StatusChangedPayload{
				OrderID: cb.OrderID,
				From:    string(models.OrderPending),
				To:      string(models.OrderConfirmed),
				Note:    "payment received",
			})
			order.Status = models.OrderConfirmed
		}
	}

	log.Info("payment notification applied", zap.String("paymentStatus", string(status)))
	s.publish(ctx, events.TypeOrderPaymentUpdate, cb.OrderID, events.PaymentUpdatedPayload{
		OrderID:       cb.OrderID,
		PaymentStatus: string(status),
		TransactionID: cb.PaymentID,
		OrderStatus:   string(order.Status),
	})
	s.syncCache(ctx, id)
	return Applied, nil
}

func (s *Service) amountMatches(order models.Order, cb payment.Callback) bool {
	if !strings.EqualFold(cb.Currency, s.gateway.Currency) {
		return false
	}
	amount, err := decimal.NewFromString(cb.Amount)
	if err != nil {
		return false
	}
	return amount.Equal(decimal.NewFromFloat(order.Total).Round(2))
}

// CancelOrder cancels a non-terminal, undelivered order and restores stock
// for every line. The status write is conditional, so concurrent cancels
// restore stock at most once.
func (s *Service) CancelOrder(ctx context.Context, id primitive.ObjectID, note string) (models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if err := orderstate.CanCancel(order.Status); err != nil {
		return models.Order{}, err
	}

	now := s.clock().UTC()
	if note == "" {
		note = "cancelled by admin"
	}
	changed, err := s.orders.CompareAndSetStatus(ctx, id,
		StatusCondition{NotIn: orderstate.NonCancellable},
		models.StatusChange{Status: models.OrderCancelled, Note: note, At: now},
	)
	if err != nil {
		return models.Order{}, fmt.Errorf("cancel order: %w", err)
	}
	if !changed {
		current, err := s.orders.FindByID(ctx, id)
		if err != nil {
			return models.Order{}, err
		}
		return models.Order{}, &apperr.TransitionError{From: string(current.Status), To: string(models.OrderCancelled)}
	}

	lines := make([]stock.Line, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, stock.Line{SKU: line.VariantSKU, Quantity: line.Quantity})
	}
	if err := stock.RestoreLines(context.WithoutCancel(ctx), s.stock, lines, s.logger); err != nil {
		return models.Order{}, fmt.Errorf("order %s cancelled but stock restore incomplete: %w", id.Hex(), err)
	}

	previous := order.Status
	order.Status = models.OrderCancelled
	order.UpdatedAt = now
	order.Delivery.History = append(order.Delivery.History, models.StatusChange{Status: models.OrderCancelled, Note: note, At: now})

	s.logger.Info("order cancelled", zap.String("orderId", id.Hex()), zap.String("from", string(previous)))
	s.publish(ctx, events.TypeOrderCancelled, id.Hex(), events.StatusChangedPayload{
		OrderID: id.Hex(),
		From:    string(previous),
		To:      string(models.OrderCancelled),
		Note:    note,
	})
	s.syncCache(ctx, id)
	return order, nil
}

// UpdateOrder applies a partial admin update. Status targets other than
// cancelled are written without graph validation as long as the order is not
// terminal; cancelled goes through CancelOrder so stock is restored.
func (s *Service) UpdateOrder(ctx context.Context, id primitive.ObjectID, in UpdateOrderInput) (models.Order, error) {
	if in.Status == nil && in.PaymentStatus == nil && in.TrackingNumber == nil && in.EstimatedDate == nil {
		return models.Order{}, apperr.Invalid("", "nothing to update")
	}
	if in.PaymentStatus != nil && !in.PaymentStatus.IsValid() {
		return models.Order{}, apperr.Invalid("paymentStatus", "unknown payment status "+string(*in.PaymentStatus))
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if in.Status != nil {
		if err := orderstate.CheckAdminTarget(order.Status, *in.Status); err != nil {
			return models.Order{}, err
		}
	}

	now := s.clock().UTC()
	if in.PaymentStatus != nil && *in.PaymentStatus != order.Payment.Status {
		if err := s.orders.SetPayment(ctx, id, *in.PaymentStatus, "", now); err != nil {
			return models.Order{}, fmt.Errorf("set payment: %w", err)
		}
		s.publish(ctx, events.TypeOrderPaymentUpdate, id.Hex(), events.PaymentUpdatedPayload{
			OrderID:       id.Hex(),
			PaymentStatus: string(*in.PaymentStatus),
			TransactionID: order.Payment.TransactionID,
			OrderStatus:   string(order.Status),
		})
	}

	if in.TrackingNumber != nil || in.EstimatedDate != nil {
		tracking := order.Delivery.TrackingNumber
		if in.TrackingNumber != nil {
			tracking = strings.TrimSpace(*in.TrackingNumber)
		}
		estimated := order.Delivery.EstimatedDate
		if in.EstimatedDate != nil {
			estimated = in.EstimatedDate
		}
		if err := s.orders.SetTracking(ctx, id, tracking, estimated, now); err != nil {
			return models.Order{}, fmt.Errorf("set tracking: %w", err)
		}
	}

	if in.Status != nil && *in.Status != order.Status {
		if *in.Status == models.OrderCancelled {
			return s.CancelOrder(ctx, id, in.Note)
		}
		note := in.Note
		if note == "" {
			note = "updated by admin"
		}
		changed, err := s.orders.CompareAndSetStatus(ctx, id,
			StatusCondition{NotIn: orderstate.Terminal},
			models.StatusChange{Status: *in.Status, Note: note, At: now},
		)
		if err != nil {
			return models.Order{}, fmt.Errorf("set status: %w", err)
		}
		if !changed {
			current, err := s.orders.FindByID(ctx, id)
			if err != nil {
				return models.Order{}, err
			}
			return models.Order{}, &apperr.TransitionError{From: string(current.Status), To: string(*in.Status)}
		}
		s.logger.Info("order status set by admin",
			zap.String("orderId", id.Hex()),
			zap.String("from", string(order.Status)),
			zap.String("to", string(*in.Status)),
		)
		s.publish(ctx, events.TypeOrderStatusChanged, id.Hex(), events.StatusChangedPayload{
			OrderID: id.Hex(),
			From:    string(order.Status),
			To:      string(*in.Status),
			Note:    note,
		})
	}

	updated, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	s.refreshCache(ctx, updated)
	return updated, nil
}

// CheckoutPayload signs the gateway hand-off for a pending card order.
func (s *Service) CheckoutPayload(ctx context.Context, id primitive.ObjectID, urls payment.ReturnURLs) (payment.SignedPayload, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return payment.SignedPayload{}, err
	}
	if order.Payment.Method != models.PaymentMethodCard {
		return payment.SignedPayload{}, apperr.Invalid("paymentMethod", "order is not paid by card")
	}
	if order.Status != models.OrderPending || order.Payment.Status == models.PaymentPaid {
		return payment.SignedPayload{}, &apperr.TransitionError{From: string(order.Status), To: "checkout"}
	}
	return s.gateway.BuildCheckoutPayload(order, urls), nil
}

func (s *Service) GetOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	return s.orders.FindByID(ctx, id)
}

// OrderStatus serves polling clients from the cache, falling back to the store.
func (s *Service) OrderStatus(ctx context.Context, id primitive.ObjectID) (cache.OrderStatus, error) {
	view, ok, err := s.cache.Get(ctx, id.Hex())
	if err != nil {
		s.logger.Warn("status cache read failed", zap.String("orderId", id.Hex()), zap.Error(err))
	}
	if ok {
		return view, nil
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return cache.OrderStatus{}, err
	}
	s.refreshCache(ctx, order)
	return statusView(order), nil
}

func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]models.Order, int64, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, apperr.Invalid("status", "unknown status "+string(filter.Status))
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.orders.List(ctx, filter)
}

func (s *Service) publish(ctx context.Context, eventType, orderID string, payload any) {
	if err := s.events.Publish(ctx, eventType, orderID, payload); err != nil {
		s.logger.Warn("event not published", zap.String("type", eventType), zap.String("orderId", orderID), zap.Error(err))
	}
}

func (s *Service) refreshCache(ctx context.Context, order models.Order) {
	if err := s.cache.Put(ctx, order.ID.Hex(), statusView(order)); err != nil {
		s.logger.Warn("status cache write failed", zap.String("orderId", order.ID.Hex()), zap.Error(err))
	}
}

// syncCache caches the stored status of id. Writers call it after their
// update instead of caching their own in-memory copy, which may be stale.
func (s *Service) syncCache(ctx context.Context, id primitive.ObjectID) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		s.logger.Warn("status cache not refreshed", zap.String("orderId", id.Hex()), zap.Error(err))
		return
	}
	s.refreshCache(ctx, order)
}

func statusView(order models.Order) cache.OrderStatus {
	return cache.OrderStatus{
		Status:        string(order.Status),
		PaymentStatus: string(order.Payment.Status),
		UpdatedAt:     order.UpdatedAt,
	}
}
