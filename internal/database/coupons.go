package database

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/apperr"
	"storefront/internal/coupon"
	"storefront/internal/models"
)

type CouponStore struct {
	coll *mongo.Collection
}

func NewCouponStore(db *mongo.Database) *CouponStore {
	return &CouponStore{coll: db.Collection(CouponsCollection)}
}

func (s *CouponStore) FindByCode(ctx context.Context, code string) (models.Coupon, error) {
	var c models.Coupon
	err := s.coll.FindOne(ctx, bson.M{"code": code}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Coupon{}, apperr.NotFound("coupon", code)
	}
	if err != nil {
		return models.Coupon{}, fmt.Errorf("find coupon: %w", err)
	}
	return c, nil
}

func (s *CouponStore) Insert(ctx context.Context, c models.Coupon) (models.Coupon, error) {
	res, err := s.coll.InsertOne(ctx, c)
	if mongo.IsDuplicateKeyError(err) {
		return models.Coupon{}, apperr.Invalid("code", "already exists")
	}
	if err != nil {
		return models.Coupon{}, fmt.Errorf("insert coupon: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		c.ID = id
	}
	return c, nil
}

func (s *CouponStore) List(ctx context.Context) ([]models.Coupon, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer cursor.Close(ctx)

	coupons := []models.Coupon{}
	if err := cursor.All(ctx, &coupons); err != nil {
		return nil, fmt.Errorf("decode coupons: %w", err)
	}
	return coupons, nil
}

// Redeem increments usedCount when no limit is set or usedCount < usageLimit.
func (s *CouponStore) Redeem(ctx context.Context, code string) error {
	filter := bson.M{
		"code": code,
		"$or": bson.A{
			bson.M{"usageLimit": bson.M{"$exists": false}},
			bson.M{"usageLimit": nil},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$usedCount", "$usageLimit"}}},
		},
	}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"usedCount": 1}})
	if err != nil {
		return fmt.Errorf("redeem coupon: %w", err)
	}
	if res.MatchedCount == 0 {
		return coupon.ErrLimitReached
	}
	return nil
}

// Release gives back one usage; usedCount never goes below zero.
func (s *CouponStore) Release(ctx context.Context, code string) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"code": code, "usedCount": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"usedCount": -1}},
	)
	if err != nil {
		return fmt.Errorf("release coupon: %w", err)
	}
	return nil
}
