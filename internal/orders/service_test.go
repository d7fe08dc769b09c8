package orders

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/cache"
	"storefront/internal/coupon"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/shipping"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type memCatalog struct {
	products map[primitive.ObjectID]models.Product
}

func (c *memCatalog) FindProducts(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error) {
	out := make(map[primitive.ObjectID]models.Product, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// memLedger applies each reservation as one conditional write.
type memLedger struct {
	mu       sync.Mutex
	stock    map[string]int
	restores int
}

func (l *memLedger) Reserve(_ context.Context, sku string, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stock[sku] < quantity {
		return &apperr.OutOfStockError{SKU: sku, Requested: quantity}
	}
	l.stock[sku] -= quantity
	return nil
}

func (l *memLedger) Restore(_ context.Context, sku string, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[sku] += quantity
	l.restores++
	return nil
}

func (l *memLedger) level(sku string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[sku]
}

type memCoupons struct {
	mu      sync.Mutex
	coupons map[string]models.Coupon
	// loseRace makes Redeem fail as if another checkout took the last use.
	loseRace bool
}

func (s *memCoupons) FindByCode(_ context.Context, code string) (models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[code]
	if !ok {
		return models.Coupon{}, apperr.NotFound("coupon", code)
	}
	return c, nil
}

func (s *memCoupons) Insert(_ context.Context, c models.Coupon) (models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[c.Code] = c
	return c, nil
}

func (s *memCoupons) List(context.Context) ([]models.Coupon, error) { return nil, nil }

func (s *memCoupons) Redeem(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coupons[code]
	if s.loseRace || (c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit) {
		return coupon.ErrLimitReached
	}
	c.UsedCount++
	s.coupons[code] = c
	return nil
}

func (s *memCoupons) Release(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coupons[code]
	if c.UsedCount > 0 {
		c.UsedCount--
	}
	s.coupons[code] = c
	return nil
}

func (s *memCoupons) used(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupons[code].UsedCount
}

type memOrders struct {
	mu        sync.Mutex
	orders    map[primitive.ObjectID]models.Order
	insertErr error
	// afterFind runs once, after the next FindByID returns its snapshot.
	afterFind func()
}

func (r *memOrders) Insert(_ context.Context, order models.Order) (models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return models.Order{}, r.insertErr
	}
	order.ID = primitive.NewObjectID()
	r.orders[order.ID] = order
	return clone(order), nil
}

func (r *memOrders) FindByID(_ context.Context, id primitive.ObjectID) (models.Order, error) {
	r.mu.Lock()
	order, ok := r.orders[id]
	order = clone(order)
	hook := r.afterFind
	r.afterFind = nil
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return models.Order{}, apperr.NotFound("order", id.Hex())
	}
	return order, nil
}

func (r *memOrders) List(_ context.Context, filter ListFilter) ([]models.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.orders {
		if filter.Status == "" || o.Status == filter.Status {
			out = append(out, clone(o))
		}
	}
	return out, int64(len(out)), nil
}

func (r *memOrders) SetPayment(_ context.Context, id primitive.ObjectID, status models.PaymentStatus, transactionID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return apperr.NotFound("order", id.Hex())
	}
	o.Payment.Status = status
	if transactionID != "" {
		o.Payment.TransactionID = transactionID
	}
	o.UpdatedAt = now
	r.orders[id] = o
	return nil
}

func (r *memOrders) CompareAndSetStatus(_ context.Context, id primitive.ObjectID, cond StatusCondition, change models.StatusChange) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return false, nil
	}
	if len(cond.In) > 0 && !slices.Contains(cond.In, o.Status) {
		return false, nil
	}
	if slices.Contains(cond.NotIn, o.Status) {
		return false, nil
	}
	o.Status = change.Status
	o.Delivery.History = append(slices.Clone(o.Delivery.History), change)
	o.UpdatedAt = change.At
	r.orders[id] = o
	return true, nil
}

func (r *memOrders) SetTracking(_ context.Context, id primitive.ObjectID, tracking string, estimated *time.Time, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.orders[id]
	o.Delivery.TrackingNumber = tracking
	o.Delivery.EstimatedDate = estimated
	o.UpdatedAt = now
	r.orders[id] = o
	return nil
}

func (r *memOrders) setStatus(id primitive.ObjectID, status models.OrderStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.orders[id]
	o.Status = status
	r.orders[id] = o
}

func (r *memOrders) put(order models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order
}

func clone(o models.Order) models.Order {
	o.Lines = slices.Clone(o.Lines)
	o.Delivery.History = slices.Clone(o.Delivery.History)
	return o
}

type staticShipping struct{ cfg models.ShippingConfig }

func (s staticShipping) ShippingConfig(context.Context) (models.ShippingConfig, error) {
	return s.cfg, nil
}

type recordedEvent struct {
	eventType string
	orderID   string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, eventType, orderID string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{eventType: eventType, orderID: orderID})
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

type memStatusCache struct {
	mu    sync.Mutex
	views map[string]cache.OrderStatus
	gets  int
}

func (c *memStatusCache) Put(_ context.Context, orderID string, view cache.OrderStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[orderID] = view
	return nil
}

func (c *memStatusCache) Get(_ context.Context, orderID string) (cache.OrderStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	view, ok := c.views[orderID]
	return view, ok, nil
}

type fixture struct {
	svc      *Service
	catalog  *memCatalog
	ledger   *memLedger
	coupons  *memCoupons
	orders   *memOrders
	events   *recordingPublisher
	cache    *memStatusCache
	gateway  *payment.Gateway
	tee      models.Product
	mug      models.Product
	shipping models.ShippingConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tee: models.Product{
			ID:          primitive.NewObjectID(),
			Title:       "Tee",
			WeightGrams: 300,
			Variants: []models.Variant{
				{SKU: "TEE-M", Size: "M", Color: "Black", Stock: 5, Price: 1000},
			},
		},
		mug: models.Product{
			ID:          primitive.NewObjectID(),
			Title:       "Mug",
			WeightGrams: 400,
			Variants: []models.Variant{
				{SKU: "MUG-1", Stock: 1, Price: 2500},
			},
		},
		shipping: shipping.DefaultConfig(),
	}
	f.catalog = &memCatalog{products: map[primitive.ObjectID]models.Product{f.tee.ID: f.tee, f.mug.ID: f.mug}}
	f.ledger = &memLedger{stock: map[string]int{"TEE-M": 5, "MUG-1": 1}}
	maxDiscount := 20.0
	f.coupons = &memCoupons{coupons: map[string]models.Coupon{
		"SAVE10": {Code: "SAVE10", Type: models.DiscountPercentage, Value: 10, MaxDiscount: &maxDiscount, IsActive: true},
	}}
	f.orders = &memOrders{orders: map[primitive.ObjectID]models.Order{}}
	f.events = &recordingPublisher{}
	f.cache = &memStatusCache{views: map[string]cache.OrderStatus{}}

	gateway, err := payment.NewGateway("1211149", "secret", "", "LKR")
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	f.gateway = gateway

	engine, err := coupon.NewEngine(coupon.EngineDeps{Store: f.coupons, Clock: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	svc, err := NewService(Deps{
		Catalog:  f.catalog,
		Stock:    f.ledger,
		Coupons:  engine,
		Orders:   f.orders,
		Shipping: staticShipping{cfg: f.shipping},
		Gateway:  gateway,
		Events:   f.events,
		Cache:    f.cache,
		Clock:    func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) input(lines ...LineInput) CreateOrderInput {
	return CreateOrderInput{
		Items: lines,
		Email: "Buyer@Example.com",
		Address: AddressInput{
			FirstName: "Nimal",
			LastName:  "Perera",
			Phone:     "0771234567",
			Line1:     "12 Galle Road",
			City:      "Colombo",
			Country:   "Sri Lanka",
		},
		PaymentMethod: models.PaymentMethodCard,
	}
}

func (f *fixture) teeLine(qty int) LineInput {
	return LineInput{ProductID: f.tee.ID.Hex(), VariantSKU: "TEE-M", Quantity: qty}
}

func (f *fixture) signedCallback(order models.Order, statusCode string) payment.Callback {
	cb := payment.Callback{
		MerchantID: f.gateway.MerchantID,
		OrderID:    order.ID.Hex(),
		PaymentID:  "320025071278",
		Amount:     payment.FormatAmount(order.Total),
		Currency:   "LKR",
		StatusCode: statusCode,
	}
	cb.MD5Sig = f.gateway.CallbackSignature(cb)
	return cb
}

func TestCreateOrderPricesFromCatalog(t *testing.T) {
	f := newFixture(t)
	clientPrice := 1.0
	line := f.teeLine(1)
	line.Price = &clientPrice

	order, err := f.svc.CreateOrder(context.Background(), f.input(line))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if order.Subtotal != 1000 || order.DeliveryFee != 500 || order.Discount != 0 || order.Total != 1500 {
		t.Fatalf("unexpected pricing: subtotal=%v fee=%v discount=%v total=%v", order.Subtotal, order.DeliveryFee, order.Discount, order.Total)
	}
	if order.Status != models.OrderPending || order.Payment.Status != models.PaymentPending {
		t.Fatalf("expected pending/pending, got %s/%s", order.Status, order.Payment.Status)
	}
	if order.Email != "buyer@example.com" {
		t.Fatalf("expected normalised email, got %q", order.Email)
	}
	if got := order.Lines[0]; got.Title != "Tee" || got.Size != "M" || got.WeightGrams != 300 {
		t.Fatalf("line not snapshotted: %+v", got)
	}
	if len(order.Delivery.History) != 1 || order.Delivery.Method != models.DeliveryStandard {
		t.Fatalf("unexpected delivery: %+v", order.Delivery)
	}
	if got := f.ledger.level("TEE-M"); got != 4 {
		t.Fatalf("expected stock 4, got %d", got)
	}
	if f.events.count("OrderCreated") != 1 {
		t.Fatal("expected OrderCreated event")
	}
	if view := f.cache.views[order.ID.Hex()]; view.Status != string(models.OrderPending) {
		t.Fatalf("expected cached pending status, got %+v", view)
	}
}

func TestCreateOrderCouponCappedByMaxDiscount(t *testing.T) {
	f := newFixture(t)
	in := f.input(f.teeLine(5))
	in.CouponCode = " save10 "

	order, err := f.svc.CreateOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Subtotal != 5000 || order.Discount != 20 {
		t.Fatalf("expected subtotal 5000 discount 20, got %v/%v", order.Subtotal, order.Discount)
	}
	// 1500g falls in the 1001-2000 tier.
	if order.DeliveryFee != 1000 || order.Total != 5980 {
		t.Fatalf("expected fee 1000 total 5980, got %v/%v", order.DeliveryFee, order.Total)
	}
	if order.CouponCode != "SAVE10" || f.coupons.used("SAVE10") != 1 {
		t.Fatalf("expected one redemption of SAVE10, code=%q used=%d", order.CouponCode, f.coupons.used("SAVE10"))
	}
}

func TestCreateOrderFreeShippingAboveThreshold(t *testing.T) {
	f := newFixture(t)
	f.catalog.products[f.tee.ID] = models.Product{
		ID: f.tee.ID, Title: "Coat", WeightGrams: 5000,
		Variants: []models.Variant{{SKU: "TEE-M", Stock: 5, Price: 20000}},
	}

	order, err := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(1)))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.DeliveryFee != 0 || order.Total != 20000 {
		t.Fatalf("expected free shipping, fee=%v total=%v", order.DeliveryFee, order.Total)
	}
}

func TestCreateOrderExpressAddsSurcharge(t *testing.T) {
	f := newFixture(t)
	in := f.input(f.teeLine(1))
	in.DeliveryMethod = models.DeliveryExpress

	order, err := f.svc.CreateOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.DeliveryFee != 900 || order.Total != 1900 {
		t.Fatalf("expected express fee 900, got fee=%v total=%v", order.DeliveryFee, order.Total)
	}
}

func TestCreateOrderRestoresReservedLinesWhenOneIsOutOfStock(t *testing.T) {
	f := newFixture(t)
	in := f.input(f.teeLine(2), LineInput{ProductID: f.mug.ID.Hex(), VariantSKU: "MUG-1", Quantity: 3})

	_, err := f.svc.CreateOrder(context.Background(), in)
	var stockErr *apperr.OutOfStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected OutOfStockError, got %v", err)
	}
	if stockErr.SKU != "MUG-1" || stockErr.Requested != 3 {
		t.Fatalf("unexpected error detail: %+v", stockErr)
	}
	if f.ledger.level("TEE-M") != 5 || f.ledger.level("MUG-1") != 1 {
		t.Fatalf("stock not restored: tee=%d mug=%d", f.ledger.level("TEE-M"), f.ledger.level("MUG-1"))
	}
	if len(f.orders.orders) != 0 {
		t.Fatal("no order should be persisted")
	}
}

func TestCreateOrderCompensatesWhenPersistFails(t *testing.T) {
	f := newFixture(t)
	f.orders.insertErr = errors.New("write concern timeout")
	in := f.input(f.teeLine(2))
	in.CouponCode = "SAVE10"

	if _, err := f.svc.CreateOrder(context.Background(), in); err == nil {
		t.Fatal("expected persist error")
	}
	if got := f.ledger.level("TEE-M"); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
	if got := f.coupons.used("SAVE10"); got != 0 {
		t.Fatalf("expected coupon released, used=%d", got)
	}
}

func TestCreateOrderLostCouponRaceAppliesNoDiscount(t *testing.T) {
	f := newFixture(t)
	f.coupons.loseRace = true
	in := f.input(f.teeLine(1))
	in.CouponCode = "SAVE10"

	order, err := f.svc.CreateOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Discount != 0 || order.CouponCode != "" || order.Total != 1500 {
		t.Fatalf("expected undiscounted order, got discount=%v code=%q total=%v", order.Discount, order.CouponCode, order.Total)
	}
}

func TestCreateOrderRejectsUnknownProductWithoutReserving(t *testing.T) {
	f := newFixture(t)
	in := f.input(f.teeLine(1), LineInput{ProductID: primitive.NewObjectID().Hex(), VariantSKU: "X", Quantity: 1})

	_, err := f.svc.CreateOrder(context.Background(), in)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.ledger.level("TEE-M") != 5 {
		t.Fatal("stock must not change")
	}
}

func TestCreateOrderRejectsInactiveProduct(t *testing.T) {
	f := newFixture(t)
	inactive := false
	mug := f.mug
	mug.IsActive = &inactive
	f.catalog.products[mug.ID] = mug

	_, err := f.svc.CreateOrder(context.Background(), f.input(LineInput{ProductID: mug.ID.Hex(), VariantSKU: "MUG-1", Quantity: 1}))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Products stored before isActive existed stay orderable.
	mug.IsActive = nil
	f.catalog.products[mug.ID] = mug
	if _, err := f.svc.CreateOrder(context.Background(), f.input(LineInput{ProductID: mug.ID.Hex(), VariantSKU: "MUG-1", Quantity: 1})); err != nil {
		t.Fatalf("legacy product: %v", err)
	}
}

func TestCreateOrderValidatesInput(t *testing.T) {
	f := newFixture(t)
	cases := map[string]CreateOrderInput{
		"no items":      f.input(),
		"zero quantity": f.input(f.teeLine(0)),
		"bad method": func() CreateOrderInput {
			in := f.input(f.teeLine(1))
			in.PaymentMethod = "crypto"
			return in
		}(),
		"bad email": func() CreateOrderInput {
			in := f.input(f.teeLine(1))
			in.Email = "not-an-email"
			return in
		}(),
		"missing city": func() CreateOrderInput {
			in := f.input(f.teeLine(1))
			in.Address.City = ""
			return in
		}(),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(context.Background(), in)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestReconcilePaidConfirmsOnceAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(1)))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	cb := f.signedCallback(order, payment.StatusCodeSuccess)

	for i := 0; i < 2; i++ {
		outcome, err := f.svc.ReconcilePayment(context.Background(), cb)
		if err != nil || outcome != Applied {
			t.Fatalf("delivery %d: outcome=%s err=%v", i, outcome, err)
		}
	}

	stored, _ := f.orders.FindByID(context.Background(), order.ID)
	if stored.Status != models.OrderConfirmed || stored.Payment.Status != models.PaymentPaid {
		t.Fatalf("expected confirmed/paid, got %s/%s", stored.Status, stored.Payment.Status)
	}
	if stored.Payment.TransactionID != cb.PaymentID {
		t.Fatalf("expected transaction id %q, got %q", cb.PaymentID, stored.Payment.TransactionID)
	}
	if len(stored.Delivery.History) != 2 {
		t.Fatalf("expected one confirmation entry, history=%+v", stored.Delivery.History)
	}
	if f.events.count("OrderStatusChanged") != 1 {
		t.Fatalf("expected a single status change event, got %d", f.events.count("OrderStatusChanged"))
	}
}

func TestReconcileFailedLeavesStatus(t *testing.T) {
	f := newFixture(t)
	order, _ := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(1)))

	outcome, err := f.svc.ReconcilePayment(context.Background(), f.signedCallback(order, payment.StatusCodeFailed))
	if err != nil || outcome != Applied {
		t.Fatalf("outcome=%s err=%v", outcome, err)
	}
	stored, _ := f.orders.FindByID(context.Background(), order.ID)
	if stored.Payment.Status != models.PaymentFailed || stored.Status != models.OrderPending {
		t.Fatalf("expected pending/failed, got %s/%s", stored.Status, stored.Payment.Status)
	}
}

func TestReconcileRejectsTamperedSignature(t *testing.T) {
	f := newFixture(t)
	order, _ := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(1)))
	cb := f.signedCallback(order, payment.StatusCodeSuccess)
	cb.Amount = "1.00"

	outcome, err := f.svc.ReconcilePayment(context.Background(), cb)
	if outcome != Rejected || !errors.Is(err, apperr.ErrInvalidSignature) {
		t.Fatalf("expected rejection, outcome=%s err=%v", outcome, err)
	}
	stored, _ := f.orders.FindByID(context.Background(), order.ID)
	if stored.Payment.Status != models.PaymentPending || stored.Status != models.OrderPending {
		t.Fatal("rejected callback must not mutate the order")
	}
}

func TestReconcileNeverRegressesLaterStatus(t *testing.T) {
	f := newFixture(t)
	order, _ := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(1)))
	shipped := models.OrderShipped
	if _, err := f.svc.UpdateOrder(context.Background(), order.ID, UpdateOrderInput{Status: &shipped}); err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}

	if _, err := f.svc.ReconcilePayment(context.Background(), f.signedCallback(order, payment.StatusCodeSuccess)); err != nil {
		t.Fatalf("ReconcilePayment: %v", err)
	}
	stored, _ := f.orders.FindByID(context.Background(), order.ID)
	if stored.Status != models.OrderShipped || stored.Payment.Status != models.PaymentPaid {
		t.Fatalf("expected shipped/paid, got %s/%s", stored.Status, stored.Payment.Status)
	}
}

func TestReconcileIgnoresAmountMismatch(t *testing.T) {
	f := newFixture(t)
	order, _ := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(1)))
	cb := f.signedCallback(order, payment.StatusCodeSuccess)
	cb.Amount = "10.00"
	cb.MD5Sig = f.gateway.CallbackSignature(cb)

	outcome, err := f.svc.ReconcilePayment(context.Background(), cb)
	if err != nil || outcome != Ignored {
		t.Fatalf("expected ignored, outcome=%s err=%v", outcome, err)
	}
	stored, _ := f.orders.FindByID(context.Background(), order.ID)
	if stored.Payment.Status != models.PaymentPending {
		t.Fatal("mismatched amount must not mark the order paid")
	}
}

func TestReconcileUnknownOrderIsIgnored(t *testing.T) {
	f := newFixture(t)
	cb := f.signedCallback(models.Order{ID: primitive.NewObjectID(), Total: 100}, payment.StatusCodeSuccess)

	outcome, err := f.svc.ReconcilePayment(context.Background(), cb)
	if err != nil || outcome != Ignored {
		t.Fatalf("expected ignored, outcome=%s err=%v", outcome, err)
	}
}

func TestCancelOrderRestoresStockOnce(t *testing.T) {
	f := newFixture(t)
	order, _ := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(3)))
	if f.ledger.level("TEE-M") != 2 {
		t.Fatal("expected reservation")
	}

	cancelled, err := f.svc.CancelOrder(context.Background(), order.ID, "")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if cancelled.Status != models.OrderCancelled || f.ledger.level("TEE-M") != 5 {
		t.Fatalf("expected cancelled with stock 5, got %s/%d", cancelled.Status, f.ledger.level("TEE-M"))
	}

	_, err = f.svc.CancelOrder(context.Background(), order.ID, "")
	if !errors.Is(err, apperr.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition on second cancel, got %v", err)
	}
	if f.ledger.level("TEE-M") != 5 {
		t.Fatal("second cancel must not credit stock")
	}
	if f.events.count("OrderCancelled") != 1 {
		t.Fatal("expected one OrderCancelled event")
	}
}

func TestCancelOrderRejectsDelivered(t *testing.T) {
	f := newFixture(t)
	id := primitive.NewObjectID()
	f.orders.put(models.Order{ID: id, Status: models.OrderDelivered, Lines: []models.OrderLine{{VariantSKU: "TEE-M", Quantity: 1}}})

	_, err := f.svc.CancelOrder(context.Background(), id, "")
	var transitionErr *apperr.TransitionError
	if !errors.As(err, &transitionErr) || transitionErr.From != "delivered" {
		t.Fatalf("expected TransitionError from delivered, got %v", err)
	}
	if f.ledger.level("TEE-M") != 5 {
		t.Fatal("stock must not change")
	}
}

func TestConcurrentCancelsRestoreStockOnce(t *testing.T) {
	f := newFixture(t)
	order, _ := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(2)))

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.CancelOrder(context.Background(), order.ID, ""); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 1 {
		t.Fatalf("expected exactly one successful cancel, got %d", succeeded.Load())
	}
	if got := f.ledger.level("TEE-M"); got != 5 {
		t.Fatalf("expected stock 5, got %d", got)
	}
}

func TestUpdateOrderCancelRoutesThroughCancel(t *testing.T) {
	f := newFixture(t)
	order, _ := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(1)))
	cancelled := models.OrderCancelled
	tracking := " TRK-1 "

	updated, err := f.svc.UpdateOrder(context.Background(), order.ID, UpdateOrderInput{Status: &cancelled, TrackingNumber: &tracking})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if updated.Status != models.OrderCancelled || f.ledger.level("TEE-M") != 5 {
		t.Fatalf("expected cancel with restored stock, got %s/%d", updated.Status, f.ledger.level("TEE-M"))
	}
	stored, _ := f.orders.FindByID(context.Background(), order.ID)
	if stored.Delivery.TrackingNumber != "TRK-1" {
		t.Fatalf("expected tracking number stored, got %q", stored.Delivery.TrackingNumber)
	}
}

func TestCancelledOrderCannotBeReopenedAndCancelledAgain(t *testing.T) {
	f := newFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(3)))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := f.svc.CancelOrder(context.Background(), order.ID, ""); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if got := f.ledger.level("TEE-M"); got != 5 {
		t.Fatalf("expected stock 5 after cancel, got %d", got)
	}

	pending := models.OrderPending
	_, err = f.svc.UpdateOrder(context.Background(), order.ID, UpdateOrderInput{Status: &pending})
	var transitionErr *apperr.TransitionError
	if !errors.As(err, &transitionErr) || transitionErr.From != "cancelled" {
		t.Fatalf("expected TransitionError from cancelled, got %v", err)
	}
	if _, err := f.svc.CancelOrder(context.Background(), order.ID, ""); !errors.Is(err, apperr.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if got := f.ledger.level("TEE-M"); got != 5 {
		t.Fatalf("stock credited twice: %d", got)
	}
	stored, _ := f.orders.FindByID(context.Background(), order.ID)
	if stored.Status != models.OrderCancelled {
		t.Fatalf("expected order to stay cancelled, got %s", stored.Status)
	}
}

func TestReturnedOrderStaysReturned(t *testing.T) {
	f := newFixture(t)
	id := primitive.NewObjectID()
	f.orders.put(models.Order{ID: id, Status: models.OrderReturned, Lines: []models.OrderLine{{VariantSKU: "TEE-M", Quantity: 1}}})
	confirmed := models.OrderConfirmed

	if _, err := f.svc.UpdateOrder(context.Background(), id, UpdateOrderInput{Status: &confirmed}); !errors.Is(err, apperr.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if got := f.ledger.level("TEE-M"); got != 5 {
		t.Fatalf("stock must not change, got %d", got)
	}
}

func TestUpdateOrderStatusLosesToConcurrentCancel(t *testing.T) {
	f := newFixture(t)
	order, _ := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(1)))
	f.orders.afterFind = func() { f.orders.setStatus(order.ID, models.OrderCancelled) }
	shipped := models.OrderShipped

	_, err := f.svc.UpdateOrder(context.Background(), order.ID, UpdateOrderInput{Status: &shipped})
	var transitionErr *apperr.TransitionError
	if !errors.As(err, &transitionErr) || transitionErr.From != "cancelled" || transitionErr.To != "shipped" {
		t.Fatalf("expected TransitionError cancelled -> shipped, got %v", err)
	}
	stored, _ := f.orders.FindByID(context.Background(), order.ID)
	if stored.Status != models.OrderCancelled {
		t.Fatalf("expected cancelled to stick, got %s", stored.Status)
	}
}

func TestUpdateOrderRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	order, _ := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(1)))
	bogus := models.OrderStatus("lost")

	_, err := f.svc.UpdateOrder(context.Background(), order.ID, UpdateOrderInput{Status: &bogus})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCheckoutPayloadOnlyForPendingCardOrders(t *testing.T) {
	f := newFixture(t)
	cashIn := f.input(f.teeLine(1))
	cashIn.PaymentMethod = models.PaymentMethodCash
	cash, _ := f.svc.CreateOrder(context.Background(), cashIn)
	card, _ := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(1)))
	urls := payment.ReturnURLs{Return: "https://shop/r", Cancel: "https://shop/c", Notify: "https://api/notify"}

	if _, err := f.svc.CheckoutPayload(context.Background(), cash.ID, urls); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation for cash order, got %v", err)
	}
	payload, err := f.svc.CheckoutPayload(context.Background(), card.ID, urls)
	if err != nil {
		t.Fatalf("CheckoutPayload: %v", err)
	}
	if payload.Fields["amount"] != "1500.00" || payload.Fields["order_id"] != card.ID.Hex() || payload.Fields["hash"] == "" {
		t.Fatalf("unexpected payload: %+v", payload.Fields)
	}
}

func TestOrderStatusServedFromCache(t *testing.T) {
	f := newFixture(t)
	order, _ := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(1)))
	delete(f.orders.orders, order.ID)

	view, err := f.svc.OrderStatus(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("OrderStatus: %v", err)
	}
	if view.Status != string(models.OrderPending) || view.PaymentStatus != string(models.PaymentPending) {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestTotalNeverNegative(t *testing.T) {
	if got := Total(100, 0, 250); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := Total(1000.10, 500, 0.2); got != 1499.9 {
		t.Fatalf("expected 1499.9, got %v", got)
	}
}

func TestReconcileCachesStoredStatusAfterConcurrentUpdate(t *testing.T) {
	f := newFixture(t)
	order, _ := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(1)))
	f.orders.afterFind = func() { f.orders.setStatus(order.ID, models.OrderShipped) }

	outcome, err := f.svc.ReconcilePayment(context.Background(), f.signedCallback(order, payment.StatusCodeSuccess))
	if err != nil || outcome != Applied {
		t.Fatalf("expected Applied, got %v/%v", outcome, err)
	}

	view := f.cache.views[order.ID.Hex()]
	if view.Status != string(models.OrderShipped) || view.PaymentStatus != string(models.PaymentPaid) {
		t.Fatalf("expected cached shipped/paid, got %+v", view)
	}
}

func TestCancelCachesStoredStatus(t *testing.T) {
	f := newFixture(t)
	order, _ := f.svc.CreateOrder(context.Background(), f.input(f.teeLine(1)))
	f.orders.afterFind = func() {
		f.orders.mu.Lock()
		defer f.orders.mu.Unlock()
		o := f.orders.orders[order.ID]
		o.Payment.Status = models.PaymentPaid
		f.orders.orders[order.ID] = o
	}

	if _, err := f.svc.CancelOrder(context.Background(), order.ID, ""); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	view := f.cache.views[order.ID.Hex()]
	if view.Status != string(models.OrderCancelled) || view.PaymentStatus != string(models.PaymentPaid) {
		t.Fatalf("expected cached cancelled/paid, got %+v", view)
	}
}
