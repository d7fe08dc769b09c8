package database

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

type AdminStore struct {
	coll *mongo.Collection
}

func NewAdminStore(db *mongo.Database) *AdminStore {
	return &AdminStore{coll: db.Collection(AdminsCollection)}
}

// FindAdminByEmail returns the active admin with the given (lower-cased) email.
func (s *AdminStore) FindAdminByEmail(ctx context.Context, email string) (models.Admin, error) {
	var admin models.Admin
	err := s.coll.FindOne(ctx, bson.M{"email": email, "isActive": true}).Decode(&admin)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Admin{}, apperr.NotFound("admin", email)
	}
	if err != nil {
		return models.Admin{}, fmt.Errorf("find admin: %w", err)
	}
	return admin, nil
}
