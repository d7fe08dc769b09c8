package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func EnsureProductIndexes(db *mongo.Database, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(ProductsCollection).Indexes()

	skuIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "variants.sku", Value: 1}},
		Options: options.Index().
			SetName("variant_sku_unique").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{
				"variants.sku": bson.M{
					"$exists": true,
				},
			}),
	}

	logger.Info("creating index", zap.String("collection", ProductsCollection), zap.String("index", "variant_sku_unique"))
	if _, err := indexes.CreateOne(ctx, skuIndex); err != nil {
		logger.Error("index creation failed", zap.String("index", "variant_sku_unique"), zap.Error(err))
		return err
	}
	return nil
}

func EnsureCouponIndexes(db *mongo.Database, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(CouponsCollection).Indexes()

	codeIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "code", Value: 1}},
		Options: options.Index().
			SetName("code_unique").
			SetUnique(true),
	}

	logger.Info("creating index", zap.String("collection", CouponsCollection), zap.String("index", "code_unique"))
	if _, err := indexes.CreateOne(ctx, codeIndex); err != nil {
		logger.Error("index creation failed", zap.String("index", "code_unique"), zap.Error(err))
		return err
	}
	return nil
}

func EnsureOrderIndexes(db *mongo.Database, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(OrdersCollection).Indexes()

	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetName("userId_index"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("status_createdAt_index"),
		},
	}

	logger.Info("creating indexes", zap.String("collection", OrdersCollection))
	if _, err := indexes.CreateMany(ctx, models); err != nil {
		logger.Error("index creation failed", zap.String("collection", OrdersCollection), zap.Error(err))
		return err
	}
	return nil
}

func EnsureAdminIndexes(db *mongo.Database, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(AdminsCollection).Indexes()

	emailIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}},
		Options: options.Index().
			SetName("email_unique").
			SetUnique(true),
	}

	logger.Info("creating index", zap.String("collection", AdminsCollection), zap.String("index", "email_unique"))
	if _, err := indexes.CreateOne(ctx, emailIndex); err != nil {
		logger.Error("index creation failed", zap.String("index", "email_unique"), zap.Error(err))
		return err
	}
	return nil
}
