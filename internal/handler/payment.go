package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/entrance-ticketing/internal/payment"
	"github.com/iliyamo/entrance-ticketing/internal/reconcile"
)

const maxNotificationBytes = 64 << 10

// Reconciler is the part of reconcile.Reconciler the HTTP layer drives.
type Reconciler interface {
	HandleNotification(ctx context.Context, n payment.Notification) (reconcile.Result, error)
	SyncOrder(ctx context.Context, orderID string) (reconcile.Result, error)
}

// PaymentHandler receives gateway webhooks.
type PaymentHandler struct {
	Reconciler Reconciler
}

// NewPaymentHandler panics on a nil reconciler.
func NewPaymentHandler(r Reconciler) *PaymentHandler {
	if r == nil {
		panic("nil reconciler passed to NewPaymentHandler")
	}
	return &PaymentHandler{Reconciler: r}
}

// Notification handles POST /v1/payments/notification.  Duplicate,
// out-of-order and unknown-order deliveries still answer 200 so the gateway
// stops retrying them; a 500 asks it to deliver again.
func (h *PaymentHandler) Notification(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxNotificationBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	n, err := payment.ParseNotification(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	res, err := h.Reconciler.HandleNotification(c.Request().Context(), n)
	switch {
	case errors.Is(err, reconcile.ErrAuthentication):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
	case err != nil:
		return internalError(c, "notification order="+n.OrderID, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "results": []reconcile.Result{res}})
}
