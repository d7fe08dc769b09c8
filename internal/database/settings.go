package database

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
	"storefront/internal/shipping"
)

const shippingSettingsID = "shipping"

type shippingDocument struct {
	ID                    string `bson:"_id"`
	models.ShippingConfig `bson:",inline"`
}

// SettingsStore keeps the shipping configuration as a single document.
type SettingsStore struct {
	coll *mongo.Collection
}

func NewSettingsStore(db *mongo.Database) *SettingsStore {
	return &SettingsStore{coll: db.Collection(SettingsCollection)}
}

// ShippingConfig returns the stored configuration, or the defaults when
// none has been saved yet.
func (s *SettingsStore) ShippingConfig(ctx context.Context) (models.ShippingConfig, error) {
	var doc shippingDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": shippingSettingsID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return shipping.DefaultConfig(), nil
	}
	if err != nil {
		return models.ShippingConfig{}, fmt.Errorf("load shipping config: %w", err)
	}
	return doc.ShippingConfig, nil
}

func (s *SettingsStore) SaveShippingConfig(ctx context.Context, cfg models.ShippingConfig) error {
	doc := shippingDocument{ID: shippingSettingsID, ShippingConfig: cfg}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": shippingSettingsID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save shipping config: %w", err)
	}
	return nil
}
