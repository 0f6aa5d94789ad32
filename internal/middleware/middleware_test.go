package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/storefront-api/internal/apperr"
	"github.com/iliyamo/storefront-api/internal/config"
	"github.com/iliyamo/storefront-api/internal/service"
)

type stubParser map[string]*service.Claims

func (s stubParser) ParseAccessToken(_ context.Context, raw string) (*service.Claims, error) {
	if cl, ok := s[raw]; ok {
		return cl, nil
	}
	return nil, apperr.Unauthorized("invalid access token")
}

func claims(sub string, roles ...string) *service.Claims {
	return &service.Claims{UniqueName: sub, Roles: roles, RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}
}

func newProtected(roles ...string) *echo.Echo {
	e := echo.New()
	parser := stubParser{
		"user-token":  claims("u-1", "User"),
		"admin-token": claims("a-1", "User", "Administrator"),
	}
	mws := []echo.MiddlewareFunc{JWTAuth(parser)}
	if len(roles) > 0 {
		mws = append(mws, RequireRole(roles...))
	}
	e.GET("/x", func(c echo.Context) error {
		a := ActorFrom(c)
		return c.JSON(http.StatusOK, echo.Map{"id": a.ID, "admin": a.IsAdmin()})
	}, mws...)
	return e
}

func do(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := newProtected()

	rec := do(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing bearer token","code":"UNAUTHORIZED"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/x", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid access token")

	rec = do(e, http.MethodGet, "/x", "user-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"u-1","admin":false}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := newProtected("Administrator", "System Administrator")

	rec := do(e, http.MethodGet, "/x", "user-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "FORBIDDEN")

	rec = do(e, http.MethodGet, "/x", "admin-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"a-1","admin":true}`, rec.Body.String())
}

func TestRequireRole_WithoutAuth(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RequireRole("Administrator"))
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/x", "").Code)
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/auth/login")

	cfg := config.RateLimitConfig{Prefix: "rl:auth"}
	for strategy, want := range map[string]string{
		"ip":         "rl:auth:ip:10.0.0.1",
		"user":       "rl:auth:user:anon",
		"ip_route":   "rl:auth:ip:10.0.0.1:route:POST /v1/auth/login",
		"":           "rl:auth:ip:10.0.0.1:user:anon:route:POST /v1/auth/login",
		"user_route": "rl:auth:user:anon:route:POST /v1/auth/login",
	} {
		cfg.KeyStrategy = strategy
		assert.Equal(t, want, buildRateKey(cfg, c), strategy)
	}

	c.Set(ctxUserID, "u-9")
	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:auth:user:u-9", buildRateKey(cfg, c))
}

func TestDisabledMiddlewaresPassThrough(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, nil),
		NewRedisCache(config.CacheConfig{Enabled: true}, nil, "categories", nil))

	rec := do(e, http.MethodGet, "/x", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 1, 0})
	assert.False(t, ok)
}

func TestCacheKeyFrom_GroupsAndParams(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
	key := func(path string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
		c.SetPath("/v1/categories/:id")
		return cacheKeyFrom(cfg, "categories", c)
	}
	a, b := key("/v1/categories/1"), key("/v1/categories/2")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, key("/v1/categories/1"))
	assert.Contains(t, a, "cache:categories:")
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	e := echo.New()
	e.Use(echomw.RequestID(), RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusInternalServerError, "boom") })

	do(e, http.MethodGet, "/ok", "")
	rec := do(e, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "/ok", entries[0].ContextMap()["route"])
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.EqualValues(t, 500, entries[1].ContextMap()["status"])
}

type recordedObservation struct{ method, route, status string }

type recorder struct{ seen []recordedObservation }

func (r *recorder) ObserveRequest(method, route, status string, _ float64) {
	r.seen = append(r.seen, recordedObservation{method, route, status})
}

func TestMetrics(t *testing.T) {
	r := &recorder{}
	e := echo.New()
	e.Use(Metrics(r))
	e.GET("/items/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	do(e, http.MethodGet, "/items/7", "")
	do(e, http.MethodGet, "/nowhere", "")
	require.Len(t, r.seen, 2)
	assert.Equal(t, recordedObservation{"GET", "/items/:id", "200"}, r.seen[0])
	assert.Equal(t, "404", r.seen[1].status)
}
