// Package orderstate holds the order status graph and its guards.
package orderstate

import (
	"storefront/internal/apperr"
	"storefront/internal/models"
)

// Terminal lists the statuses an order never leaves.
var Terminal = []models.OrderStatus{
	models.OrderCancelled,
	models.OrderReturned,
}

// IsTerminal reports whether no further transition is allowed from s.
func IsTerminal(s models.OrderStatus) bool {
	for _, t := range Terminal {
		if s == t {
			return true
		}
	}
	return false
}

// NonCancellable lists the statuses from which cancellation is rejected.
var NonCancellable = []models.OrderStatus{
	models.OrderDelivered,
	models.OrderCancelled,
	models.OrderReturned,
}

// CanCancel guards admin cancellation.
func CanCancel(current models.OrderStatus) error {
	for _, s := range NonCancellable {
		if current == s {
			return &apperr.TransitionError{From: string(current), To: string(models.OrderCancelled)}
		}
	}
	return nil
}

// ShouldConfirmOnPayment reports whether a paid callback advances current to
// confirmed. Only pending orders advance; later statuses are never regressed.
func ShouldConfirmOnPayment(current models.OrderStatus, paid models.PaymentStatus) bool {
	return paid == models.PaymentPaid && current == models.OrderPending
}

// CheckAdminTarget validates an admin-issued status change. Admin changes are
// not restricted to forward progression, but a terminal order stays where it
// is and cancellation goes through CanCancel.
func CheckAdminTarget(current, target models.OrderStatus) error {
	if !target.IsValid() {
		return apperr.Invalid("status", "unknown status "+string(target))
	}
	if IsTerminal(current) && target != current {
		return &apperr.TransitionError{From: string(current), To: string(target)}
	}
	if target == models.OrderCancelled {
		return CanCancel(current)
	}
	return nil
}
