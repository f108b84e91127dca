package middleware

// identity.go holds the helpers that turn the authenticated subject stored
// by JWTAuth into a string.  Tokens minted by this service carry a numeric
// sub, which jwt decodes as float64; other issuers use strings.

import (
	"encoding/json"
	"strconv"

	"github.com/labstack/echo/v4"
)

// SubjectString renders a sub claim value.  It returns "" for nil or an
// unsupported type.
func SubjectString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t < 0 || t != float64(uint64(t)) {
			return ""
		}
		return strconv.FormatUint(uint64(t), 10)
	case json.Number:
		return t.String()
	case uint64:
		return strconv.FormatUint(t, 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	}
	return ""
}

// UserID returns the authenticated subject or "" when the request carries
// none.
func UserID(c echo.Context) string {
	return SubjectString(c.Get("user_id"))
}

// Role returns the role claim stored by JWTAuth.
func Role(c echo.Context) string {
	r, _ := c.Get("role").(string)
	return r
}
