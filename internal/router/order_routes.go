package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-api/internal/handler"
	"github.com/iliyamo/storefront-api/internal/middleware"
	"github.com/iliyamo/storefront-api/internal/model"
)

// RegisterOrders mounts /v1/orders. Every route needs a valid access
// token; listing all orders and editing shipping data is for
// administrators. Ownership of a single order is checked by the service.
func RegisterOrders(e *echo.Echo, h *handler.OrderHandler, d Deps) {
	g := e.Group("/v1/orders", middleware.JWTAuth(d.Tokens))
	admin := middleware.RequireRole(model.AdminRoles...)

	g.GET("", h.List, admin)
	g.GET("/search", h.Search, admin)
	g.GET("/my-orders", h.ListMine)
	g.GET("/my-orders/search", h.SearchMine)
	g.GET("/:id", h.Get)
	g.POST("", h.Place)
	g.PUT("/:id", h.Update, admin)
	g.DELETE("/:id", h.Cancel)
}
