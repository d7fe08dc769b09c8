package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/orders"
)

type OrderStore struct {
	coll *mongo.Collection
}

func NewOrderStore(db *mongo.Database) *OrderStore {
	return &OrderStore{coll: db.Collection(OrdersCollection)}
}

func (s *OrderStore) Insert(ctx context.Context, order models.Order) (models.Order, error) {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, order); err != nil {
		return models.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return order, nil
}

func (s *OrderStore) FindByID(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	var order models.Order
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Order{}, apperr.NotFound("order", id.Hex())
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("find order: %w", err)
	}
	return order, nil
}

// List returns one page of orders, newest first, and the total match count.
func (s *OrderStore) List(ctx context.Context, filter orders.ListFilter) ([]models.Order, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.UserID != nil {
		query["userId"] = *filter.UserID
	}

	total, err := s.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((filter.Page - 1) * filter.Limit).
		SetLimit(filter.Limit)
	cursor, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find orders: %w", err)
	}
	defer cursor.Close(ctx)

	result := []models.Order{}
	if err := cursor.All(ctx, &result); err != nil {
		return nil, 0, fmt.Errorf("decode orders: %w", err)
	}
	return result, total, nil
}

// SetPayment overwrites the payment status, so replayed notifications
// converge on the same document.
func (s *OrderStore) SetPayment(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus, transactionID string, now time.Time) error {
	set := bson.M{
		"payment.status": status,
		"updatedAt":      now,
	}
	if transactionID != "" {
		set["payment.transactionId"] = transactionID
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("order", id.Hex())
	}
	return nil
}

// CompareAndSetStatus sets the status and appends the history entry in one
// update guarded by cond. It reports false when no document matched.
func (s *OrderStore) CompareAndSetStatus(ctx context.Context, id primitive.ObjectID, cond orders.StatusCondition, change models.StatusChange) (bool, error) {
	res, err := s.coll.UpdateOne(ctx, statusFilter(id, cond), bson.M{
		"$set":  bson.M{"status": change.Status, "updatedAt": change.At},
		"$push": bson.M{"delivery.history": change},
	})
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func statusFilter(id primitive.ObjectID, cond orders.StatusCondition) bson.M {
	filter := bson.M{"_id": id}
	status := bson.M{}
	if len(cond.In) > 0 {
		status["$in"] = cond.In
	}
	if len(cond.NotIn) > 0 {
		status["$nin"] = cond.NotIn
	}
	if len(status) > 0 {
		filter["status"] = status
	}
	return filter
}

func (s *OrderStore) SetTracking(ctx context.Context, id primitive.ObjectID, trackingNumber string, estimated *time.Time, now time.Time) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"delivery.trackingNumber": trackingNumber,
		"delivery.estimatedDate":  estimated,
		"updatedAt":               now,
	}})
	if err != nil {
		return fmt.Errorf("update tracking: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("order", id.Hex())
	}
	return nil
}
