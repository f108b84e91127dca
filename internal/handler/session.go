package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/entrance-ticketing/internal/middleware"
	"github.com/iliyamo/entrance-ticketing/internal/session"
)

// Session handles GET /v1/session.  It reports who the bearer token belongs
// to and when it expires; session.RemoteChecker consumes this shape.
func Session(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	out := session.Session{User: session.User{ID: uid, Role: middleware.Role(c)}}
	if exp, ok := c.Get("token_exp").(time.Time); ok {
		out.ExpiresAt = &exp
	}
	return c.JSON(http.StatusOK, out)
}
