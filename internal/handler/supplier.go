package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/middleware"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/service"
)

type SupplierService interface {
	Create(ctx context.Context, actor repository.Actor, in service.SupplierInput) (*model.Supplier, error)
	Update(ctx context.Context, actor repository.Actor, id string, in service.SupplierInput) (*model.Supplier, error)
	Delete(ctx context.Context, actor repository.Actor, id string) error
	GetByID(ctx context.Context, id string) (*model.Supplier, error)
	List(ctx context.Context, includeInactive bool) ([]model.Supplier, error)
	Search(ctx context.Context, p repository.SearchParams) (repository.Page[model.Supplier], error)
}

type SupplierHandler struct {
	svc SupplierService
	log *zap.Logger
}

func NewSupplierHandler(svc SupplierService, log *zap.Logger) *SupplierHandler {
	return &SupplierHandler{svc: svc, log: log}
}

type supplierReq struct {
	Name        string  `json:"name" validate:"required,min=3,max=255"`
	Address     *string `json:"address" validate:"omitempty,max=500"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
	IsActive    *bool   `json:"is_active"`
}

func (r supplierReq) input() service.SupplierInput {
	return service.SupplierInput{Name: r.Name, Address: r.Address, PhoneNumber: r.PhoneNumber, IsActive: r.IsActive}
}

func (h *SupplierHandler) List(c echo.Context) error {
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
	return c.JSON(http.StatusOK, listView(items, toSupplierView))
}

func (h *SupplierHandler) Search(c echo.Context) error {
	p, err := searchParams(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	page, err := h.svc.Search(ctx, p)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, repository.MapPage(page, toSupplierView))
}

func (h *SupplierHandler) Get(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	sup, err := h.svc.GetByID(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toSupplierView(*sup))
}

func (h *SupplierHandler) Create(c echo.Context) error {
	var req supplierReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	sup, err := h.svc.Create(ctx, middleware.ActorFrom(c), req.input())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toSupplierView(*sup))
}

func (h *SupplierHandler) Update(c echo.Context) error {
	var req supplierReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	sup, err := h.svc.Update(ctx, middleware.ActorFrom(c), c.Param("id"), req.input())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toSupplierView(*sup))
}

func (h *SupplierHandler) Delete(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.svc.Delete(ctx, middleware.ActorFrom(c), c.Param("id")); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
