package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/service"
)

// Context keys set by JWTAuth.
const (
	ctxClaims = "claims"
	ctxUserID = "user_id"
	ctxRoles  = "roles"
)

// ClaimsFrom returns the verified access token claims, or nil for
// anonymous requests.
func ClaimsFrom(c echo.Context) *service.Claims {
	cl, _ := c.Get(ctxClaims).(*service.Claims)
	return cl
}

// ActorFrom builds the acting user from the verified claims. Anonymous
// requests yield the zero Actor.
func ActorFrom(c echo.Context) repository.Actor {
	cl := ClaimsFrom(c)
	if cl == nil {
		return repository.Actor{}
	}
	return repository.Actor{ID: cl.Subject, Name: cl.UniqueName, Roles: cl.Roles}
}

// userID is the rate limit and log identity of the caller.
func userID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
