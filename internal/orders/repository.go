package orders

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

// Catalog resolves the products referenced by an order.
type Catalog interface {
	FindProducts(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error)
}

// StatusCondition restricts a conditional status write to documents whose
// current status is in In (when set) and not in NotIn.
type StatusCondition struct {
	In    []models.OrderStatus
	NotIn []models.OrderStatus
}

// Repository persists orders. Every mutating call is a single-document
// update; CompareAndSetStatus reports false when the condition did not match.
type Repository interface {
	Insert(ctx context.Context, order models.Order) (models.Order, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	List(ctx context.Context, filter ListFilter) ([]models.Order, int64, error)
	SetPayment(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus, transactionID string, now time.Time) error
	CompareAndSetStatus(ctx context.Context, id primitive.ObjectID, cond StatusCondition, change models.StatusChange) (bool, error)
	SetTracking(ctx context.Context, id primitive.ObjectID, trackingNumber string, estimated *time.Time, now time.Time) error
}

// ShippingSettings returns the active shipping configuration.
type ShippingSettings interface {
	ShippingConfig(ctx context.Context) (models.ShippingConfig, error)
}

// ListFilter selects a page of orders.
type ListFilter struct {
	Status models.OrderStatus
	UserID *primitive.ObjectID
	Page   int64
	Limit  int64
}
