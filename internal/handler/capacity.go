package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/entrance-ticketing/internal/capacity"
	"github.com/iliyamo/entrance-ticketing/internal/clock"
	"github.com/iliyamo/entrance-ticketing/internal/model"
)

// SlotReader reads capacity rows.
type SlotReader interface {
	ReadSlot(ctx context.Context, key model.SlotKey) (model.CapacitySlot, error)
	ListForDate(ctx context.Context, resourceID uint64, date string) ([]model.CapacitySlot, error)
}

// SlotGenerator is satisfied by *capacity.Generator.
type SlotGenerator interface {
	Generate(ctx context.Context, in capacity.GenerateInput) (capacity.GenerateResult, error)
}

// CapacityHandler serves availability reads and admin generation.
type CapacityHandler struct {
	Slots     SlotReader
	Generator SlotGenerator
	Clock     *clock.Authority
}

// NewCapacityHandler panics on a nil dependency.
func NewCapacityHandler(slots SlotReader, gen SlotGenerator, clk *clock.Authority) *CapacityHandler {
	if slots == nil || gen == nil || clk == nil {
		panic("nil dependency passed to NewCapacityHandler")
	}
	return &CapacityHandler{Slots: slots, Generator: gen, Clock: clk}
}

type slotView struct {
	ResourceID uint64  `json:"resource_id"`
	Date       string  `json:"date"`
	TimeSlot   *string `json:"time_slot"`
	Total      int     `json:"total_capacity"`
	Reserved   int     `json:"reserved_capacity"`
	Sold       int     `json:"sold_capacity"`
	Available  int     `json:"available"`
}

func toSlotView(s model.CapacitySlot) slotView {
	return slotView{
		ResourceID: s.ResourceID,
		Date:       s.Date,
		TimeSlot:   s.TimeSlot,
		Total:      s.TotalCapacity,
		Reserved:   s.ReservedCapacity,
		Sold:       s.SoldCapacity,
		Available:  s.Available(),
	}
}

// parseSlot turns the slot query value into a bucket time.  "" and "all-day"
// both mean the all-day bucket.
func parseSlot(raw string) (*string, error) {
	if raw == "" || raw == "all-day" {
		return nil, nil
	}
	n, err := clock.NormalizeClock(raw)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Get handles GET /v1/capacity/:resource_id?date=&slot=.  Without slot every
// bucket of the date is listed.  The date defaults to today in the business
// zone.
func (h *CapacityHandler) Get(c echo.Context) error {
	rid, err := strconv.ParseUint(c.Param("resource_id"), 10, 64)
	if err != nil || rid == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid resource id"})
	}
	date := c.QueryParam("date")
	if date == "" {
		date = h.Clock.Today()
	} else if _, err := h.Clock.ParseDateKey(date); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date"})
	}
	ctx := c.Request().Context()

	if _, has := c.QueryParams()["slot"]; !has {
		slots, err := h.Slots.ListForDate(ctx, rid, date)
		if err != nil {
			return internalError(c, "list capacity", err)
		}
		out := make([]slotView, 0, len(slots))
		for _, s := range slots {
			out = append(out, toSlotView(s))
		}
		return c.JSON(http.StatusOK, echo.Map{"resource_id": rid, "date": date, "slots": out})
	}

	ts, err := parseSlot(c.QueryParam("slot"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot"})
	}
	slot, err := h.Slots.ReadSlot(ctx, model.SlotKey{ResourceID: rid, Date: date, TimeSlot: ts})
	if errors.Is(err, capacity.ErrSlotNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "capacity slot not found"})
	}
	if err != nil {
		return internalError(c, "read capacity", err)
	}
	return c.JSON(http.StatusOK, toSlotView(slot))
}

// Generate handles POST /v1/admin/capacity/generate.
func (h *CapacityHandler) Generate(c echo.Context) error {
	var in capacity.GenerateInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.Generator.Generate(c.Request().Context(), in)
	if errors.Is(err, capacity.ErrInvalidInput) || errors.Is(err, capacity.ErrInvalidRange) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err != nil {
		return internalError(c, "generate capacity", err)
	}
	return c.JSON(http.StatusOK, res)
}
