package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/entrance-ticketing/internal/model"
	"github.com/iliyamo/entrance-ticketing/internal/payment"
	"github.com/iliyamo/entrance-ticketing/internal/reconcile"
)

// OrderReader loads an order with its items.  An unknown id is
// reconcile.ErrOrderNotFound.
type OrderReader interface {
	Get(ctx context.Context, orderID string) (*model.Order, error)
}

// TicketLister lists the tickets issued for an order.
type TicketLister interface {
	ListByOrder(ctx context.Context, orderID string) ([]model.PurchasedTicket, error)
}

// OrderHandler serves order polling and manual sync.
type OrderHandler struct {
	Orders     OrderReader
	Tickets    TicketLister
	Reconciler Reconciler
}

// NewOrderHandler panics on a nil dependency.
func NewOrderHandler(orders OrderReader, tickets TicketLister, r Reconciler) *OrderHandler {
	if orders == nil || tickets == nil || r == nil {
		panic("nil dependency passed to NewOrderHandler")
	}
	return &OrderHandler{Orders: orders, Tickets: tickets, Reconciler: r}
}

type ticketView struct {
	Code          string             `json:"code"`
	ResourceID    uint64             `json:"resource_id"`
	ValidDate     string             `json:"valid_date"`
	TimeSlot      *string            `json:"time_slot"`
	Quantity      int                `json:"quantity"`
	Status        model.TicketStatus `json:"status"`
	QueueNumber   *int               `json:"queue_number"`
	QueueOverflow bool               `json:"queue_overflow"`
}

type orderView struct {
	OrderID          string            `json:"order_id"`
	Status           model.OrderStatus `json:"status"`
	GrossAmountCents int64             `json:"gross_amount_cents"`
	Tickets          []ticketView      `json:"tickets"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// loadVisible returns the order or writes the 404/500 response itself.
// Orders the caller may not see are reported as missing.
func (h *OrderHandler) loadVisible(c echo.Context, id string) (*model.Order, bool, error) {
	o, err := h.Orders.Get(c.Request().Context(), id)
	if errors.Is(err, reconcile.ErrOrderNotFound) || (err == nil && !canSeeOrder(c, o)) {
		return nil, false, c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
	}
	if err != nil {
		return nil, false, internalError(c, "get order "+id, err)
	}
	return o, true, nil
}

// Get handles GET /v1/orders/:id, the polling endpoint clients use after
// checkout.
func (h *OrderHandler) Get(c echo.Context) error {
	id := c.Param("id")
	o, ok, err := h.loadVisible(c, id)
	if !ok {
		return err
	}
	tickets, err := h.Tickets.ListByOrder(c.Request().Context(), id)
	if err != nil {
		return internalError(c, "list tickets "+id, err)
	}
	view := orderView{
		OrderID:          o.OrderID,
		Status:           o.Status,
		GrossAmountCents: o.GrossAmountCents,
		Tickets:          make([]ticketView, 0, len(tickets)),
		UpdatedAt:        o.UpdatedAt,
	}
	for _, t := range tickets {
		view.Tickets = append(view.Tickets, ticketView{
			Code:          t.Code,
			ResourceID:    t.TicketID,
			ValidDate:     t.ValidDate,
			TimeSlot:      t.TimeSlot,
			Quantity:      t.Quantity,
			Status:        t.Status,
			QueueNumber:   t.QueueNumber,
			QueueOverflow: t.QueueOverflow,
		})
	}
	return c.JSON(http.StatusOK, view)
}

// Sync handles POST /v1/orders/:id/sync: the order's transaction is pulled
// from the gateway and reconciled like a webhook.
func (h *OrderHandler) Sync(c echo.Context) error {
	id := c.Param("id")
	if _, ok, err := h.loadVisible(c, id); !ok {
		return err
	}
	res, err := h.Reconciler.SyncOrder(c.Request().Context(), id)
	switch {
	case errors.Is(err, reconcile.ErrOrderNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
	case errors.Is(err, reconcile.ErrSyncUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "manual sync is not configured"})
	case errors.Is(err, payment.ErrGatewayUnavailable), errors.Is(err, payment.ErrMalformed),
		errors.Is(err, reconcile.ErrOrderMismatch), errors.Is(err, reconcile.ErrAuthentication):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment gateway error"})
	case err != nil:
		return internalError(c, "sync order "+id, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "results": []reconcile.Result{res}})
}
