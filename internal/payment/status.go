// Package payment translates the payment gateway's notification contract into
// the platform's canonical vocabulary: status mapping, signature
// verification and the gateway status client used by manual sync.
package payment

import (
	"strings"

	"github.com/iliyamo/entrance-ticketing/internal/model"
)

// statusTable maps a gateway transaction_status to a canonical status.
// "capture" is absent because it depends on fraud_status.
var statusTable = map[string]model.OrderStatus{
	"settlement":     model.OrderPaid,
	"pending":        model.OrderPending,
	"expire":         model.OrderExpired,
	"expired":        model.OrderExpired,
	"refund":         model.OrderRefunded,
	"refunded":       model.OrderRefunded,
	"partial_refund": model.OrderRefunded,
	"deny":           model.OrderFailed,
	"cancel":         model.OrderFailed,
	"failure":        model.OrderFailed,
}

// MapStatus returns the canonical status for a gateway transaction status and
// fraud status.  Matching is case-insensitive.  Anything unrecognised maps to
// pending so an unknown value can never mark an order paid.
func MapStatus(transactionStatus, fraudStatus string) model.OrderStatus {
	ts := strings.ToLower(strings.TrimSpace(transactionStatus))
	fs := strings.ToLower(strings.TrimSpace(fraudStatus))

	if ts == "capture" {
		if fs == "" || fs == "accept" {
			return model.OrderPaid
		}
		return model.OrderPending
	}
	if s, ok := statusTable[ts]; ok {
		return s
	}
	return model.OrderPending
}
