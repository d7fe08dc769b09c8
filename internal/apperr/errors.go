// Package apperr defines the error taxonomy shared by order processing.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals an unknown product, variant, order or coupon.
	ErrNotFound = errors.New("not found")
	// ErrOutOfStock signals insufficient reservable stock for a variant.
	ErrOutOfStock = errors.New("out of stock")
	// ErrCouponInvalid is only returned by explicit coupon management.
	ErrCouponInvalid = errors.New("coupon invalid")
	// ErrInvalidSignature signals a payment callback that failed verification.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrIllegalTransition signals a disallowed order status change.
	ErrIllegalTransition = errors.New("illegal status transition")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// OutOfStockError names the variant whose reservation failed.
type OutOfStockError struct {
	SKU       string
	Requested int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("variant %s: cannot reserve %d", e.SKU, e.Requested)
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// CouponError carries the failed validation result of a coupon.
type CouponError struct {
	Code   string
	Result string
}

func (e *CouponError) Error() string {
	return fmt.Sprintf("coupon %s: %s", e.Code, e.Result)
}

func (e *CouponError) Unwrap() error { return ErrCouponInvalid }
