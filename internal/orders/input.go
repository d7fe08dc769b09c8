package orders

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

// LineInput is one requested line. Price is accepted for client
// compatibility but the catalog price is always used.
type LineInput struct {
	ProductID    string            `json:"productId" validate:"required,len=24,hexadecimal"`
	VariantSKU   string            `json:"variantSku" validate:"required"`
	Quantity     int               `json:"quantity" validate:"gt=0,lte=100"`
	Price        *float64          `json:"price,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty" validate:"omitempty,max=20"`
}

type AddressInput struct {
	FirstName  string `json:"firstName" validate:"required,max=100"`
	LastName   string `json:"lastName" validate:"max=100"`
	Phone      string `json:"phone" validate:"required,max=30"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	PostalCode string `json:"postalCode" validate:"max=20"`
	Country    string `json:"country" validate:"required,max=100"`
}

type CreateOrderInput struct {
	UserID         *primitive.ObjectID `json:"-"`
	Items          []LineInput         `json:"items" validate:"required,min=1,max=50,dive"`
	Email          string              `json:"email" validate:"required,email"`
	Address        AddressInput        `json:"address"`
	PaymentMethod  string              `json:"paymentMethod" validate:"required,oneof=card cash"`
	DeliveryMethod string              `json:"deliveryMethod" validate:"omitempty,oneof=standard express"`
	CouponCode     string              `json:"couponCode,omitempty" validate:"max=64"`
}

// UpdateOrderInput is a partial admin update.
type UpdateOrderInput struct {
	Status         *models.OrderStatus   `json:"status,omitempty"`
	PaymentStatus  *models.PaymentStatus `json:"paymentStatus,omitempty"`
	TrackingNumber *string               `json:"trackingNumber,omitempty"`
	EstimatedDate  *time.Time            `json:"estimatedDate,omitempty"`
	Note           string                `json:"note,omitempty"`
}

func (a AddressInput) snapshot() models.Address {
	return models.Address{
		FirstName:  strings.TrimSpace(a.FirstName),
		LastName:   strings.TrimSpace(a.LastName),
		Phone:      strings.TrimSpace(a.Phone),
		Line1:      strings.TrimSpace(a.Line1),
		Line2:      strings.TrimSpace(a.Line2),
		City:       strings.TrimSpace(a.City),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.TrimSpace(a.Country),
	}
}

// validationError converts validator output into the first offending field.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := strings.TrimPrefix(fe.Namespace(), "CreateOrderInput.")
		reason := fe.Tag()
		if fe.Param() != "" {
			reason = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		return apperr.Invalid(field, reason)
	}
	return apperr.Invalid("", err.Error())
}
