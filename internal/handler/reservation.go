package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/entrance-ticketing/internal/capacity"
	"github.com/iliyamo/entrance-ticketing/internal/clock"
	"github.com/iliyamo/entrance-ticketing/internal/model"
	"github.com/iliyamo/entrance-ticketing/internal/reconcile"
	"github.com/iliyamo/entrance-ticketing/internal/repository"
)

// Reserver is the reserved-counter half of *capacity.Store.
type Reserver interface {
	TryReserve(ctx context.Context, key model.SlotKey, qty int) (model.CapacitySlot, error)
	ReleaseReserved(ctx context.Context, key model.SlotKey, qty int) (bool, error)
}

// ReservationStore persists reservations.
type ReservationStore interface {
	Create(ctx context.Context, res *model.Reservation) error
	Get(ctx context.Context, id uint64) (*model.Reservation, error)
	Cancel(ctx context.Context, id uint64) (*model.Reservation, error)
}

// ReservationHandler holds seats for a pending order until it is paid,
// cancelled or swept.
type ReservationHandler struct {
	Capacity     Reserver
	Reservations ReservationStore
	Orders       OrderReader
	Clock        *clock.Authority
}

// NewReservationHandler panics on a nil dependency.
func NewReservationHandler(c Reserver, rs ReservationStore, orders OrderReader, clk *clock.Authority) *ReservationHandler {
	if c == nil || rs == nil || orders == nil || clk == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Capacity: c, Reservations: rs, Orders: orders, Clock: clk}
}

type reservationView struct {
	ID         uint64                  `json:"id"`
	OrderID    string                  `json:"order_id"`
	ResourceID uint64                  `json:"resource_id"`
	Date       string                  `json:"date"`
	TimeSlot   *string                 `json:"time_slot"`
	Quantity   int                     `json:"quantity"`
	Status     model.ReservationStatus `json:"status"`
	CreatedAt  time.Time               `json:"created_at"`
}

func toReservationView(r *model.Reservation) reservationView {
	return reservationView{
		ID:         r.ID,
		OrderID:    r.OrderID,
		ResourceID: r.ResourceID,
		Date:       r.Date,
		TimeSlot:   r.TimeSlot,
		Quantity:   r.Quantity,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
	}
}

// visibleOrder loads the order and answers 404 itself when it is missing or
// belongs to someone else.
func (h *ReservationHandler) visibleOrder(c echo.Context, id string) (*model.Order, bool, error) {
	o, err := h.Orders.Get(c.Request().Context(), id)
	if errors.Is(err, reconcile.ErrOrderNotFound) || (err == nil && !canSeeOrder(c, o)) {
		return nil, false, c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
	}
	if err != nil {
		return nil, false, internalError(c, "get order "+id, err)
	}
	return o, true, nil
}

// Create handles POST /v1/reservations.
func (h *ReservationHandler) Create(c echo.Context) error {
	var body struct {
		OrderID    string `json:"order_id"`
		ResourceID uint64 `json:"resource_id"`
		Date       string `json:"date"`
		TimeSlot   string `json:"time_slot"`
		Quantity   int    `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.OrderID == "" || body.ResourceID == 0 || body.Quantity <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "order_id, resource_id and a positive quantity are required"})
	}
	past, err := h.Clock.IsPastDate(body.Date)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date"})
	}
	if past {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date is in the past"})
	}
	ts, err := parseSlot(body.TimeSlot)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid time_slot"})
	}

	o, ok, err := h.visibleOrder(c, body.OrderID)
	if !ok {
		return err
	}
	if o.Status != model.OrderPending {
		return c.JSON(http.StatusConflict, echo.Map{"error": "order is not pending"})
	}

	ctx := c.Request().Context()
	key := model.SlotKey{ResourceID: body.ResourceID, Date: body.Date, TimeSlot: ts}
	slot, err := h.Capacity.TryReserve(ctx, key, body.Quantity)
	switch {
	case errors.Is(err, capacity.ErrSlotNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "capacity slot not found"})
	case errors.Is(err, capacity.ErrInsufficientCapacity):
		return c.JSON(http.StatusConflict, echo.Map{"error": "insufficient capacity", "available": slot.Available()})
	case errors.Is(err, capacity.ErrContended):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "capacity is busy, retry"})
	case err != nil:
		return internalError(c, "reserve capacity", err)
	}

	res := &model.Reservation{
		OrderID:    o.OrderID,
		ResourceID: key.ResourceID,
		Date:       key.Date,
		TimeSlot:   key.TimeSlot,
		Quantity:   body.Quantity,
	}
	if err := h.Reservations.Create(ctx, res); err != nil {
		if _, rerr := h.Capacity.ReleaseReserved(ctx, key, body.Quantity); rerr != nil {
			log.Printf("handler: release after failed reservation slot=%s: %v", key, rerr)
		}
		return internalError(c, "create reservation", err)
	}
	return c.JSON(http.StatusCreated, toReservationView(res))
}

// Cancel handles DELETE /v1/reservations/:id.  Only pending reservations can
// be cancelled; their seats go back to the pool.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	ctx := c.Request().Context()
	existing, err := h.Reservations.Get(ctx, id)
	if errors.Is(err, repository.ErrReservationNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	}
	if err != nil {
		return internalError(c, "get reservation", err)
	}
	if _, ok, err := h.visibleOrder(c, existing.OrderID); !ok {
		return err
	}

	res, err := h.Reservations.Cancel(ctx, id)
	switch {
	case errors.Is(err, repository.ErrReservationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation is not pending"})
	case err != nil:
		return internalError(c, "cancel reservation", err)
	}
	key := model.SlotKey{ResourceID: res.ResourceID, Date: res.Date, TimeSlot: res.TimeSlot}
	released, err := h.Capacity.ReleaseReserved(ctx, key, res.Quantity)
	if err != nil {
		log.Printf("handler: release cancelled reservation id=%d slot=%s: %v", id, key, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation": toReservationView(res), "released": released})
}
