package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderStatus is the fulfilment status of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPacked    OrderStatus = "packed"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
	OrderReturned  OrderStatus = "returned"
)

// PaymentStatus is the domain payment state derived from gateway status codes.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

const (
	PaymentMethodCard = "card"
	PaymentMethodCash = "cash"

	DeliveryStandard = "standard"
	DeliveryExpress  = "express"
)

// OrderLine is a single variant entry within an order. Title, size, color and
// unit price are snapshots taken at creation time.
type OrderLine struct {
	ProductID    primitive.ObjectID `bson:"productId" json:"productId"`
	VariantSKU   string             `bson:"variantSku" json:"variantSku"`
	Title        string             `bson:"title" json:"title"`
	Size         string             `bson:"size,omitempty" json:"size,omitempty"`
	Color        string             `bson:"color,omitempty" json:"color,omitempty"`
	UnitPrice    float64            `bson:"unitPrice" json:"unitPrice"`
	Quantity     int                `bson:"quantity" json:"quantity"`
	WeightGrams  int                `bson:"weightGrams" json:"weightGrams"`
	CustomFields map[string]string  `bson:"customFields,omitempty" json:"customFields,omitempty"`
}

// Address is the immutable shipping address snapshot.
type Address struct {
	FirstName  string `bson:"firstName" json:"firstName"`
	LastName   string `bson:"lastName" json:"lastName"`
	Phone      string `bson:"phone" json:"phone"`
	Line1      string `bson:"line1" json:"line1"`
	Line2      string `bson:"line2,omitempty" json:"line2,omitempty"`
	City       string `bson:"city" json:"city"`
	PostalCode string `bson:"postalCode,omitempty" json:"postalCode,omitempty"`
	Country    string `bson:"country" json:"country"`
}

type OrderPayment struct {
	Method        string        `bson:"method" json:"method"`
	Status        PaymentStatus `bson:"status" json:"status"`
	TransactionID string        `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
}

// StatusChange is one entry of the delivery status history.
type StatusChange struct {
	Status OrderStatus `bson:"status" json:"status"`
	Note   string      `bson:"note,omitempty" json:"note,omitempty"`
	At     time.Time   `bson:"at" json:"at"`
}

type OrderDelivery struct {
	Method         string         `bson:"method" json:"method"`
	TrackingNumber string         `bson:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
	EstimatedDate  *time.Time     `bson:"estimatedDate,omitempty" json:"estimatedDate,omitempty"`
	History        []StatusChange `bson:"history" json:"history"`
}

// Order defines the persisted order document.
type Order struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID      *primitive.ObjectID `bson:"userId" json:"userId"`
	Email       string              `bson:"email" json:"email"`
	Address     Address             `bson:"address" json:"address"`
	Lines       []OrderLine         `bson:"lines" json:"lines"`
	Subtotal    float64             `bson:"subtotal" json:"subtotal"`
	Discount    float64             `bson:"discount" json:"discount"`
	DeliveryFee float64             `bson:"deliveryFee" json:"deliveryFee"`
	Total       float64             `bson:"total" json:"total"`
	Status      OrderStatus         `bson:"status" json:"status"`
	Payment     OrderPayment        `bson:"payment" json:"payment"`
	Delivery    OrderDelivery       `bson:"delivery" json:"delivery"`
	CouponCode  string              `bson:"couponCode,omitempty" json:"couponCode,omitempty"`
	CreatedAt   time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// TotalWeightGrams sums the snapshotted line weights.
func (o Order) TotalWeightGrams() int {
	total := 0
	for _, line := range o.Lines {
		total += line.WeightGrams * line.Quantity
	}
	return total
}

// IsValid reports whether s is a known order status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderPacked, OrderShipped, OrderDelivered, OrderCancelled, OrderReturned:
		return true
	}
	return false
}

func (s PaymentStatus) IsValid() bool {
	return s == PaymentPending || s == PaymentPaid || s == PaymentFailed
}
