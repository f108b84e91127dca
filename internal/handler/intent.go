package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/entrance-ticketing/internal/clock"
	"github.com/iliyamo/entrance-ticketing/internal/intent"
	"github.com/iliyamo/entrance-ticketing/internal/model"
)

// IntentHandler stores one booking intent per authenticated user so a
// checkout interrupted by a login redirect can be resumed.
type IntentHandler struct {
	Backend intent.Backend
	Clock   *clock.Authority
	Window  time.Duration
	Now     func() time.Time
}

// NewIntentHandler panics on a nil backend or clock.
func NewIntentHandler(b intent.Backend, clk *clock.Authority, window time.Duration) *IntentHandler {
	if b == nil || clk == nil {
		panic("nil dependency passed to NewIntentHandler")
	}
	return &IntentHandler{Backend: b, Clock: clk, Window: window, Now: clk.Now}
}

func (h *IntentHandler) store(c echo.Context) (*intent.Store, bool) {
	uid, err := getUserID(c)
	if err != nil {
		return nil, false
	}
	return intent.NewStore(h.Backend, "user:"+itoa(uid), h.Window, h.Now), true
}

// Preserve handles POST /v1/booking-intent.
func (h *IntentHandler) Preserve(c echo.Context) error {
	st, ok := h.store(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var in model.BookingIntent
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if in.Date != "" {
		day, err := h.Clock.ParseDateKey(in.Date)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date"})
		}
		in.Date = h.Clock.DateKey(day)
	}
	if in.TimeSlot != nil {
		ts, err := parseSlot(*in.TimeSlot)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid time_slot"})
		}
		in.TimeSlot = ts
	}
	tok, err := st.Preserve(c.Request().Context(), in)
	if errors.Is(err, intent.ErrInvalidIntent) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if err != nil {
		return internalError(c, "preserve booking intent", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"token": tok})
}

// Restore handles GET /v1/booking-intent.  With ?token= the stored intent
// is only returned when it was preserved under that token.
func (h *IntentHandler) Restore(c echo.Context) error {
	st, ok := h.store(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := c.Request().Context()
	var (
		in  *model.BookingIntent
		err error
	)
	if tok := c.QueryParam("token"); tok != "" {
		in, err = st.Resume(ctx, tok)
	} else {
		in, err = st.Restore(ctx)
	}
	if errors.Is(err, intent.ErrTokenMismatch) || (err == nil && in == nil) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no booking intent"})
	}
	if err != nil {
		return internalError(c, "restore booking intent", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"intent":      in,
		"age_seconds": int(h.Now().Sub(in.Timestamp) / time.Second),
	})
}

// Clear handles DELETE /v1/booking-intent.
func (h *IntentHandler) Clear(c echo.Context) error {
	st, ok := h.store(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := st.Clear(c.Request().Context()); err != nil {
		return internalError(c, "clear booking intent", err)
	}
	return c.NoContent(http.StatusNoContent)
}
