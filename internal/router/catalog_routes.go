package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-api/internal/handler"
	"github.com/iliyamo/storefront-api/internal/middleware"
	"github.com/iliyamo/storefront-api/internal/model"
)

// crud is the handler set shared by the catalog resources.
type crud interface {
	List(c echo.Context) error
	Search(c echo.Context) error
	Get(c echo.Context) error
	Create(c echo.Context) error
	Update(c echo.Context) error
	Delete(c echo.Context) error
}

// RegisterCatalog mounts categories, suppliers and products. Reads are
// public; writes need an administrator. Category and supplier reads are
// served from the response cache, which each group clears on a write.
func RegisterCatalog(e *echo.Echo, cat *handler.CategoryHandler, sup *handler.SupplierHandler,
	prod *handler.ProductHandler, d Deps) {
	admin := []echo.MiddlewareFunc{
		middleware.JWTAuth(d.Tokens),
		middleware.RequireRole(model.AdminRoles...),
	}

	mount(e.Group("/v1/categories", middleware.NewRedisCache(d.Config.Cache, d.Redis, "categories", d.Log)), cat, admin)
	mount(e.Group("/v1/suppliers", middleware.NewRedisCache(d.Config.Cache, d.Redis, "suppliers", d.Log)), sup, admin)
	mount(e.Group("/v1/products"), prod, admin)
}

func mount(g *echo.Group, h crud, admin []echo.MiddlewareFunc) {
	g.GET("", h.List)
	g.GET("/search", h.Search)
	g.GET("/:id", h.Get)
	g.POST("", h.Create, admin...)
	g.PUT("/:id", h.Update, admin...)
	g.DELETE("/:id", h.Delete, admin...)
}
