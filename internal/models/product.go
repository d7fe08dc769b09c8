package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Variant is one size/color combination of a product. Stock is only ever
// changed through conditional $inc updates on the embedded element.
type Variant struct {
	SKU         string  `bson:"sku" json:"sku"`
	Size        string  `bson:"size,omitempty" json:"size,omitempty"`
	Color       string  `bson:"color,omitempty" json:"color,omitempty"`
	Stock       int     `bson:"stock" json:"stock"`
	Price       float64 `bson:"price" json:"price"`
	SaleEnabled bool    `bson:"saleEnabled" json:"saleEnabled"`
	SalePrice   float64 `bson:"salePrice,omitempty" json:"salePrice,omitempty"`
}

// Product is owned by the catalog; order processing only reads it and
// reserves variant stock.
type Product struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Category    StringList         `bson:"category" json:"category"`
	WeightGrams int                `bson:"weightGrams" json:"weightGrams"`
	Variants    []Variant          `bson:"variants" json:"variants"`
	IsActive    *bool              `bson:"isActive,omitempty" json:"isActive,omitempty"`
	IsDeleted   bool               `bson:"isDeleted" json:"isDeleted,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}

// Available reports whether the product can be listed and ordered. Legacy
// documents without an isActive field count as active.
func (p Product) Available() bool {
	return !p.IsDeleted && (p.IsActive == nil || *p.IsActive)
}

// Variant returns the variant with the given SKU.
func (p Product) Variant(sku string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.SKU == sku {
			return v, true
		}
	}
	return Variant{}, false
}
