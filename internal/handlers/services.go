package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/cache"
	"storefront/internal/coupon"
	"storefront/internal/database"
	"storefront/internal/models"
	"storefront/internal/orders"
	"storefront/internal/payment"
)

// OrderService is implemented by *orders.Service.
type OrderService interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (models.Order, error)
	GetOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	OrderStatus(ctx context.Context, id primitive.ObjectID) (cache.OrderStatus, error)
	ListOrders(ctx context.Context, filter orders.ListFilter) ([]models.Order, int64, error)
	CheckoutPayload(ctx context.Context, id primitive.ObjectID, urls payment.ReturnURLs) (payment.SignedPayload, error)
	ReconcilePayment(ctx context.Context, cb payment.Callback) (orders.Outcome, error)
	UpdateOrder(ctx context.Context, id primitive.ObjectID, in orders.UpdateOrderInput) (models.Order, error)
	CancelOrder(ctx context.Context, id primitive.ObjectID, note string) (models.Order, error)
}

// CouponManager is implemented by *coupon.Engine.
type CouponManager interface {
	Create(ctx context.Context, c models.Coupon) (models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	Check(ctx context.Context, code string, subtotal float64) (coupon.Quote, error)
}

// ShippingSettingsStore is implemented by *database.SettingsStore.
type ShippingSettingsStore interface {
	ShippingConfig(ctx context.Context) (models.ShippingConfig, error)
	SaveShippingConfig(ctx context.Context, cfg models.ShippingConfig) error
}

// ProductReader is implemented by *database.ProductStore.
type ProductReader interface {
	ListProducts(ctx context.Context, filter database.ProductFilter) ([]models.Product, int64, error)
	FindProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error)
}

// AdminAccounts is implemented by *database.AdminStore.
type AdminAccounts interface {
	FindAdminByEmail(ctx context.Context, email string) (models.Admin, error)
}

func parseObjectID(c *gin.Context, route string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, route, "invalid id")
		return primitive.NilObjectID, false
	}
	return id, true
}
