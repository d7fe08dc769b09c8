package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

// ProductStore reads the catalog and keeps per-variant stock. Variants are
// embedded in the product document, so every stock change is a single
// document update on the matching array element.
type ProductStore struct {
	coll *mongo.Collection
}

func NewProductStore(db *mongo.Database) *ProductStore {
	return &ProductStore{coll: db.Collection(ProductsCollection)}
}

// FindProducts loads the non-deleted products among ids.
func (s *ProductStore) FindProducts(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error) {
	cursor, err := s.coll.Find(ctx, bson.M{
		"_id":       bson.M{"$in": ids},
		"isDeleted": bson.M{"$ne": true},
	})
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []models.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	out := make(map[primitive.ObjectID]models.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// Reserve decrements the variant's stock only if at least quantity remains.
// The filter and the decrement run as one update, so concurrent reservations
// can never drive stock below zero.
func (s *ProductStore) Reserve(ctx context.Context, sku string, quantity int) error {
	filter := bson.M{
		"isDeleted": bson.M{"$ne": true},
		"variants": bson.M{"$elemMatch": bson.M{
			"sku":   sku,
			"stock": bson.M{"$gte": quantity},
		}},
	}
	update := bson.M{"$inc": bson.M{"variants.$.stock": -quantity}}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if res.MatchedCount == 0 {
		return &apperr.OutOfStockError{SKU: sku, Requested: quantity}
	}
	return nil
}

// Restore credits quantity back to the variant unconditionally.
func (s *ProductStore) Restore(ctx context.Context, sku string, quantity int) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"variants.sku": sku},
		bson.M{"$inc": bson.M{"variants.$.stock": quantity}},
	)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("variant", sku)
	}
	return nil
}

// ProductFilter selects storefront products. A zero Limit returns every match.
type ProductFilter struct {
	Category string
	Search   string
	Page     int64
	Limit    int64
}

// ListProducts returns active, non-deleted products, newest first.
func (s *ProductStore) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, int64, error) {
	query := bson.M{
		"isActive":  bson.M{"$ne": false},
		"isDeleted": bson.M{"$ne": true},
	}
	if filter.Category != "" {
		query["category"] = bson.M{"$in": []string{filter.Category}}
	}
	if filter.Search != "" {
		query["title"] = bson.M{"$regex": regexp.QuoteMeta(filter.Search), "$options": "i"}
	}

	total, err := s.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		opts.SetSkip((page - 1) * filter.Limit).SetLimit(filter.Limit)
	}

	cursor, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find products: %w", err)
	}
	defer cursor.Close(ctx)

	products := []models.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, 0, fmt.Errorf("decode products: %w", err)
	}
	return products, total, nil
}

func (s *ProductStore) FindProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	var product models.Product
	err := s.coll.FindOne(ctx, bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}}).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, apperr.NotFound("product", id.Hex())
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("find product: %w", err)
	}
	return product, nil
}
