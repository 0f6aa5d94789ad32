package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-api/internal/apperr"
	"github.com/iliyamo/storefront-api/internal/service"
)

// AccessTokenParser verifies a raw bearer token. *service.TokenService
// implements it.
type AccessTokenParser interface {
	ParseAccessToken(ctx context.Context, raw string) (*service.Claims, error)
}

// JWTAuth rejects requests without a valid bearer access token and stores
// the verified claims, user id and roles in the echo context.
func JWTAuth(tokens AccessTokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			scheme, raw, ok := strings.Cut(auth, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				return deny(c, apperr.Unauthorized("missing bearer token"))
			}
			claims, err := tokens.ParseAccessToken(c.Request().Context(), strings.TrimSpace(raw))
			if err != nil {
				return deny(c, err)
			}
			c.Set(ctxClaims, claims)
			c.Set(ctxUserID, claims.Subject)
			c.Set(ctxRoles, claims.Roles)
			return next(c)
		}
	}
}

// deny writes err in the API error shape. Errors without a code become 401.
func deny(c echo.Context, err error) error {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Unauthorized("unauthorized")
	}
	return c.JSON(ae.HTTPStatus(), echo.Map{"error": ae.Message, "code": ae.Code})
}
