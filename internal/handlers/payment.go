package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/orders"
	"storefront/internal/payment"
)

// CheckoutURLs derives the gateway return targets from the public base URL.
type CheckoutURLs struct {
	StorefrontURL string
	APIBaseURL    string
}

func (u CheckoutURLs) forOrder(orderID string) payment.ReturnURLs {
	q := url.Values{"order_id": {orderID}}.Encode()
	storefront := strings.TrimRight(u.StorefrontURL, "/")
	return payment.ReturnURLs{
		Return: storefront + "/checkout/success?" + q,
		Cancel: storefront + "/checkout/cancel?" + q,
		Notify: strings.TrimRight(u.APIBaseURL, "/") + "/payments/notify",
	}
}

// Checkout returns the signed form the browser posts to the gateway.
func Checkout(svc OrderService, urls CheckoutURLs) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders/:id/checkout"
		defer handlePanic(c, route)

		id, ok := parseObjectID(c, route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		payload, err := svc.CheckoutPayload(ctx, id, urls.forOrder(id.Hex()))
		if err != nil {
			respondWithAppError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, payload)
	}
}

// PaymentNotify receives the gateway's server-to-server notification. The
// gateway expects a plaintext "success" for every callback whose signature
// verifies, even when applying it failed; only a bad signature gets 400.
func PaymentNotify(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "/payments/notify"
		defer handlePanic(c, route)

		if err := c.Request.ParseForm(); err != nil {
			c.String(http.StatusBadRequest, "invalid request")
			return
		}
		cb := payment.ParseCallback(c.Request.Form)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		outcome, err := svc.ReconcilePayment(ctx, cb)
		if outcome == orders.Rejected {
			c.String(http.StatusBadRequest, "invalid signature")
			return
		}
		if err != nil {
			zap.L().Error("payment notification not applied",
				zap.String("orderId", cb.OrderID),
				zap.String("paymentId", cb.PaymentID),
				zap.Error(err),
			)
		}
		c.String(http.StatusOK, "success")
	}
}
