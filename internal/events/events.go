// Package events publishes order lifecycle notifications. Publishing is
// best-effort and happens after the store write succeeded.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderCreated       = "OrderCreated"
	TypeOrderPaymentUpdate = "OrderPaymentUpdated"
	TypeOrderStatusChanged = "OrderStatusChanged"
	TypeOrderCancelled     = "OrderCancelled"

	TopicOrderCreated       = "order.created"
	TopicOrderPaymentUpdate = "order.payment.updated"
	TopicOrderStatusChanged = "order.status.changed"
	TopicOrderCancelled     = "order.cancelled"
)

// Topics maps each event type to its topic.
var Topics = map[string]string{
	TypeOrderCreated:       TopicOrderCreated,
	TypeOrderPaymentUpdate: TopicOrderPaymentUpdate,
	TypeOrderStatusChanged: TopicOrderStatusChanged,
	TypeOrderCancelled:     TopicOrderCancelled,
}

// Envelope is the wire format of every event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID     string  `json:"order_id"`
	Email       string  `json:"email"`
	Subtotal    float64 `json:"subtotal"`
	Discount    float64 `json:"discount"`
	DeliveryFee float64 `json:"delivery_fee"`
	Total       float64 `json:"total"`
	CouponCode  string  `json:"coupon_code,omitempty"`
	LineCount   int     `json:"line_count"`
}

type PaymentUpdatedPayload struct {
	OrderID       string `json:"order_id"`
	PaymentStatus string `json:"payment_status"`
	TransactionID string `json:"transaction_id,omitempty"`
	OrderStatus   string `json:"order_status"`
}

type StatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Note    string `json:"note,omitempty"`
}

// Publisher emits events. Implementations must not block the caller on
// broker availability.
type Publisher interface {
	Publish(ctx context.Context, eventType, orderID string, payload any) error
}

// NewEnvelope wraps payload for eventType.
func NewEnvelope(producer, eventType, orderID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       raw,
	}, nil
}

// Nop discards events; used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) error { return nil }
