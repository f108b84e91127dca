package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/entrance-ticketing/internal/middleware"
	"github.com/iliyamo/entrance-ticketing/internal/model"
)

// RoleAdmin may read any order and generate capacity.
const RoleAdmin = "ADMIN"

// getUserID returns the authenticated user id placed in the context by
// JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	n, err := strconv.ParseUint(middleware.SubjectString(c.Get("user_id")), 10, 64)
	if err != nil || n == 0 {
		return 0, errors.New("invalid user_id in context")
	}
	return n, nil
}

// canSeeOrder reports whether the caller owns o or is an admin.  Guest
// orders are visible to admins only.
func canSeeOrder(c echo.Context, o *model.Order) bool {
	if middleware.Role(c) == RoleAdmin {
		return true
	}
	uid, err := getUserID(c)
	return err == nil && o.UserID != nil && *o.UserID == uid
}

func internalError(c echo.Context, op string, err error) error {
	log.Printf("handler: %s: %v", op, err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func itoa(n uint64) string { return strconv.FormatUint(n, 10) }
