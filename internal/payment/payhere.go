// Package payment signs checkout hand-offs to the PayHere gateway and
// verifies its asynchronous payment notifications.
package payment

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

const (
	// SandboxCheckoutURL is used when no checkout URL is configured.
	SandboxCheckoutURL = "https://sandbox.payhere.lk/pay/checkout"

	StatusCodeSuccess    = "2"
	StatusCodePending    = "0"
	StatusCodeCancelled  = "-1"
	StatusCodeFailed     = "-2"
	StatusCodeChargeback = "-3"
)

// Gateway holds the merchant credentials shared with the payment gateway.
type Gateway struct {
	MerchantID  string
	Secret      string
	CheckoutURL string
	Currency    string
}

func NewGateway(merchantID, secret, checkoutURL, currency string) (*Gateway, error) {
	if strings.TrimSpace(merchantID) == "" || strings.TrimSpace(secret) == "" {
		return nil, errors.New("payment gateway: merchant id and secret are required")
	}
	if checkoutURL == "" {
		checkoutURL = SandboxCheckoutURL
	}
	if currency == "" {
		currency = "LKR"
	}
	return &Gateway{
		MerchantID:  merchantID,
		Secret:      secret,
		CheckoutURL: checkoutURL,
		Currency:    strings.ToUpper(currency),
	}, nil
}

// ReturnURLs are the browser return targets and the server notify target.
type ReturnURLs struct {
	Return string
	Cancel string
	Notify string
}

// SignedPayload is posted by the browser to Action as a form.
type SignedPayload struct {
	Action string            `json:"action"`
	Fields map[string]string `json:"fields"`
}

// BuildCheckoutPayload assembles the outbound fields for order and signs
// them over the alphabetically sorted key=value pairs.
func (g *Gateway) BuildCheckoutPayload(order models.Order, urls ReturnURLs) SignedPayload {
	first, last := splitName(order.Address.FirstName, order.Address.LastName)
	address := order.Address.Line1
	if order.Address.Line2 != "" {
		address += ", " + order.Address.Line2
	}
	fields := map[string]string{
		"merchant_id": g.MerchantID,
		"return_url":  urls.Return,
		"cancel_url":  urls.Cancel,
		"notify_url":  urls.Notify,
		"order_id":    order.ID.Hex(),
		"items":       describeItems(order.Lines),
		"currency":    g.Currency,
		"amount":      FormatAmount(order.Total),
		"first_name":  first,
		"last_name":   last,
		"email":       order.Email,
		"phone":       order.Address.Phone,
		"address":     address,
		"city":        order.Address.City,
		"country":     order.Address.Country,
	}
	fields["hash"] = g.signSorted(fields)
	return SignedPayload{Action: g.CheckoutURL, Fields: fields}
}

// FormatAmount renders amount with exactly two decimals.
func FormatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}

func (g *Gateway) signSorted(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		if key == "hash" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+fields[key])
	}
	return md5Upper(strings.Join(pairs, "&") + g.Secret)
}

// Callback is the gateway's payment notification.
type Callback struct {
	MerchantID     string
	OrderID        string
	PaymentID      string
	Amount         string
	Currency       string
	StatusCode     string
	MD5Sig         string
	Method         string
	StatusMessage  string
	CardHolderName string
	CardNo         string
	CardExpiry     string
}

// ParseCallback reads a notification from form or query values.
func ParseCallback(values url.Values) Callback {
	get := func(key string) string { return strings.TrimSpace(values.Get(key)) }
	return Callback{
		MerchantID:     get("merchant_id"),
		OrderID:        get("order_id"),
		PaymentID:      get("payment_id"),
		Amount:         get("payhere_amount"),
		Currency:       get("payhere_currency"),
		StatusCode:     get("status_code"),
		MD5Sig:         get("md5sig"),
		Method:         get("method"),
		StatusMessage:  get("status_message"),
		CardHolderName: get("card_holder_name"),
		CardNo:         get("card_no"),
		CardExpiry:     get("card_expiry"),
	}
}

// VerifyCallback recomputes the signature over the fixed field order
// merchant_id, order_id, payment_id, amount, currency, status_code followed
// by the secret. It has no side effects.
func (g *Gateway) VerifyCallback(cb Callback) error {
	if cb.MD5Sig == "" {
		return fmt.Errorf("%w: missing md5sig", apperr.ErrInvalidSignature)
	}
	if cb.MerchantID != g.MerchantID {
		return fmt.Errorf("%w: merchant mismatch", apperr.ErrInvalidSignature)
	}
	expected := g.CallbackSignature(cb)
	received := strings.ToUpper(cb.MD5Sig)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
		return apperr.ErrInvalidSignature
	}
	return nil
}

// CallbackSignature is the signature the gateway is expected to send for cb.
func (g *Gateway) CallbackSignature(cb Callback) string {
	return md5Upper(cb.MerchantID + cb.OrderID + cb.PaymentID + cb.Amount + cb.Currency + cb.StatusCode + g.Secret)
}

// MapStatus converts a gateway status code. Only "2" means paid.
func MapStatus(statusCode string) models.PaymentStatus {
	switch strings.TrimSpace(statusCode) {
	case StatusCodeSuccess:
		return models.PaymentPaid
	case StatusCodePending:
		return models.PaymentPending
	default:
		return models.PaymentFailed
	}
}

func md5Upper(value string) string {
	sum := md5.Sum([]byte(value))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func splitName(first, last string) (string, string) {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	if last != "" {
		return first, last
	}
	if idx := strings.IndexByte(first, ' '); idx > 0 {
		return first[:idx], strings.TrimSpace(first[idx+1:])
	}
	return first, ""
}

func describeItems(lines []models.OrderLine) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		label := line.Title
		var attrs []string
		if line.Size != "" {
			attrs = append(attrs, line.Size)
		}
		if line.Color != "" {
			attrs = append(attrs, line.Color)
		}
		if len(attrs) > 0 {
			label += " (" + strings.Join(attrs, "/") + ")"
		}
		parts = append(parts, fmt.Sprintf("%s x%d", label, line.Quantity))
	}
	return strings.Join(parts, ", ")
}
