package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/apperr"
	"github.com/iliyamo/storefront-api/internal/middleware"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/service"
)

type ProductService interface {
	Create(ctx context.Context, actor repository.Actor, in service.ProductInput) (*model.Product, error)
	Update(ctx context.Context, actor repository.Actor, id string, in service.ProductInput) (*model.Product, error)
	Delete(ctx context.Context, actor repository.Actor, id string) error
	GetByID(ctx context.Context, id string) (*model.Product, error)
	List(ctx context.Context, includeInactive bool) ([]model.Product, error)
	Search(ctx context.Context, q repository.ProductSearchParams) (repository.Page[model.Product], error)
}

type ProductHandler struct {
	svc ProductService
	log *zap.Logger
}

func NewProductHandler(svc ProductService, log *zap.Logger) *ProductHandler {
	return &ProductHandler{svc: svc, log: log}
}

type productReq struct {
	Name           string          `json:"name" validate:"required,min=3,max=255"`
	Description    *string         `json:"description" validate:"omitempty,max=2000"`
	Price          decimal.Decimal `json:"price"`
	UnitInStock    int             `json:"unit_in_stock" validate:"min=0"`
	Thumbnail      *string         `json:"thumbnail" validate:"omitempty,max=2000"`
	IsDiscontinued bool            `json:"is_discontinued"`
	CategoryID     *string         `json:"category_id"`
	SupplierID     *string         `json:"supplier_id"`
	IsActive       *bool           `json:"is_active"`
}

func (r productReq) input() service.ProductInput {
	return service.ProductInput{
		Name: r.Name, Description: r.Description, Price: r.Price, UnitInStock: r.UnitInStock,
		Thumbnail: r.Thumbnail, IsDiscontinued: r.IsDiscontinued,
		CategoryID: r.CategoryID, SupplierID: r.SupplierID, IsActive: r.IsActive,
	}
}

func queryDecimal(c echo.Context, name string) (*decimal.Decimal, error) {
	raw := queryString(c, name)
	if raw == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, apperr.Validation("%s must be a number", name)
	}
	return &d, nil
}

func productSearchParams(c echo.Context) (repository.ProductSearchParams, error) {
	var (
		q   repository.ProductSearchParams
		err error
	)
	if q.SearchParams, err = searchParams(c); err != nil {
		return q, err
	}
	q.CategoryID = queryString(c, "category_id")
	q.SupplierID = queryString(c, "supplier_id")
	if q.MinPrice, err = queryDecimal(c, "min_price"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = queryDecimal(c, "max_price"); err != nil {
		return q, err
	}
	if q.IsDiscontinued, err = queryBool(c, "is_discontinued"); err != nil {
		return q, err
	}
	return q, nil
}

func (h *ProductHandler) List(c echo.Context) error {
	inactive, err := includeInactive(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.svc.List(ctx, inactive)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, listView(items, toProductView))
}

func (h *ProductHandler) Search(c echo.Context) error {
	q, err := productSearchParams(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	page, err := h.svc.Search(ctx, q)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, repository.MapPage(page, toProductView))
}

func (h *ProductHandler) Get(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.svc.GetByID(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toProductView(*p))
}

func (h *ProductHandler) Create(c echo.Context) error {
	var req productReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.svc.Create(ctx, middleware.ActorFrom(c), req.input())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toProductView(*p))
}

func (h *ProductHandler) Update(c echo.Context) error {
	var req productReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := h.svc.Update(ctx, middleware.ActorFrom(c), c.Param("id"), req.input())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toProductView(*p))
}

func (h *ProductHandler) Delete(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.svc.Delete(ctx, middleware.ActorFrom(c), c.Param("id")); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
