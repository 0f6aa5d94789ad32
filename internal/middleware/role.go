package middleware

import (
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-api/internal/apperr"
)

// RequireRole lets the request through when the caller holds at least one
// of roles. It must run after JWTAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			held, _ := c.Get(ctxRoles).([]string)
			for _, r := range held {
				if slices.Contains(roles, r) {
					return next(c)
				}
			}
			if ClaimsFrom(c) == nil {
				return deny(c, apperr.Unauthorized("authentication required"))
			}
			return deny(c, apperr.Forbidden("forbidden"))
		}
	}
}
