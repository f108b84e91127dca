package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/entrance-ticketing/internal/config"
)

const testSecret = "test-secret"

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func serve(h echo.HandlerFunc, auth string, mw ...echo.MiddlewareFunc) *httptest.ResponseRecorder {
	e := echo.New()
	e.GET("/p", h, mw...)
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	good := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": 42, "role": "ADMIN", "exp": exp.Unix(),
	})
	expired := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub": 42, "exp": time.Now().Add(-time.Minute).Unix(),
	})
	wrongKey := signed(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": 42})
	noSub := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"role": "ADMIN"})

	var gotUser, gotRole string
	var gotExp time.Time
	h := func(c echo.Context) error {
		gotUser, gotRole = UserID(c), Role(c)
		gotExp, _ = c.Get("token_exp").(time.Time)
		return c.NoContent(http.StatusNoContent)
	}

	cases := []struct {
		name   string
		auth   string
		status int
	}{
		{"valid", "Bearer " + good, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"no subject", "Bearer " + noSub, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h, tc.auth, JWTAuth(testSecret))
			if rec.Code != tc.status {
				t.Fatalf("status %d, want %d: %s", rec.Code, tc.status, rec.Body)
			}
		})
	}

	serve(h, "Bearer "+good, JWTAuth(testSecret))
	if gotUser != "42" || gotRole != "ADMIN" || !gotExp.Equal(exp) {
		t.Fatalf("context user=%q role=%q exp=%v", gotUser, gotRole, gotExp)
	}
}

func TestRequireRole(t *testing.T) {
	admin := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u1", "role": "ADMIN"})
	customer := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "u2", "role": "CUSTOMER"})
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	if rec := serve(ok, "Bearer "+admin, JWTAuth(testSecret), RequireRole("ADMIN")); rec.Code != http.StatusNoContent {
		t.Fatalf("admin got %d", rec.Code)
	}
	rec := serve(ok, "Bearer "+customer, JWTAuth(testSecret), RequireRole("ADMIN"))
	if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), "forbidden") {
		t.Fatalf("customer got %d %s", rec.Code, rec.Body)
	}
}

func TestSubjectString(t *testing.T) {
	cases := map[string]struct {
		in   any
		want string
	}{
		"string":   {"abc", "abc"},
		"float":    {float64(7), "7"},
		"fraction": {7.5, ""},
		"negative": {float64(-1), ""},
		"uint":     {uint64(9), "9"},
		"nil":      {nil, ""},
		"bool":     {true, ""},
	}
	for name, tc := range cases {
		if got := SubjectString(tc.in); got != tc.want {
			t.Errorf("%s: got %q, want %q", name, got, tc.want)
		}
	}
}

func TestDisabledLimiterAndCachePassThrough(t *testing.T) {
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	rec := serve(ok, "",
		NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil),
		NewRedisCache(config.CacheConfig{Enabled: true}, nil),
	)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" || rec.Header().Get("X-Cache") != "" {
		t.Fatalf("got %d %q %v", rec.Code, rec.Body, rec.Header())
	}
}

func TestKeysIncludeStrategyParts(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/capacity/3?date=2026-08-01", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/capacity/:resource_id")
	c.Set("user_id", float64(5))

	keys := map[string]string{
		"ip_user":  "rl:ip:10.0.0.1:user:5",
		"ip_route": "rl:ip:10.0.0.1:route:GET /v1/capacity/:resource_id",
		"":         "rl:ip:10.0.0.1:user:5:route:GET /v1/capacity/:resource_id",
	}
	for strategy, want := range keys {
		if got := rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c); got != want {
			t.Errorf("%q: rate key %q, want %q", strategy, got, want)
		}
	}

	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
	first := cacheKey(cfg, c)
	req2 := httptest.NewRequest(http.MethodGet, "/v1/capacity/4?date=2026-08-01", nil)
	c2 := e.NewContext(req2, httptest.NewRecorder())
	c2.SetPath("/v1/capacity/:resource_id")
	if first == cacheKey(cfg, c2) || !strings.HasPrefix(first, "cache:") {
		t.Fatalf("cache keys should differ per resource: %q", first)
	}
}

func TestCaptureWriterStopsAtLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	_, _ = cw.Write([]byte("def"))
	if !cw.overflow || cw.buf.Len() != 0 || rec.Body.String() != "abcdef" {
		t.Fatalf("overflow=%v buf=%q body=%q", cw.overflow, cw.buf.String(), rec.Body)
	}
}
