package models

// IsOnSale reports whether the variant's sale price applies.
func (v Variant) IsOnSale() bool {
	return v.SaleEnabled && v.SalePrice > 0 && v.SalePrice < v.Price
}

// UnitPrice is the price snapshotted into an order line.
func (v Variant) UnitPrice() float64 {
	if v.IsOnSale() {
		return v.SalePrice
	}
	return v.Price
}
