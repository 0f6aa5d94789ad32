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

type CategoryService interface {
	Create(ctx context.Context, actor repository.Actor, in service.CategoryInput) (*model.Category, error)
	Update(ctx context.Context, actor repository.Actor, id string, in service.CategoryInput) (*model.Category, error)
	Delete(ctx context.Context, actor repository.Actor, id string) error
	GetByID(ctx context.Context, id string) (*model.Category, error)
	List(ctx context.Context, includeInactive bool) ([]model.Category, error)
	Search(ctx context.Context, p repository.SearchParams) (repository.Page[model.Category], error)
}

type CategoryHandler struct {
	svc CategoryService
	log *zap.Logger
}

func NewCategoryHandler(svc CategoryService, log *zap.Logger) *CategoryHandler {
	return &CategoryHandler{svc: svc, log: log}
}

type categoryReq struct {
	Name        string  `json:"name" validate:"required,min=3,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	IsActive    *bool   `json:"is_active"`
}

func (r categoryReq) input() service.CategoryInput {
	return service.CategoryInput{Name: r.Name, Description: r.Description, IsActive: r.IsActive}
}

func (h *CategoryHandler) List(c echo.Context) error {
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
	return c.JSON(http.StatusOK, listView(items, toCategoryView))
}

func (h *CategoryHandler) Search(c echo.Context) error {
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
	return c.JSON(http.StatusOK, repository.MapPage(page, toCategoryView))
}

func (h *CategoryHandler) Get(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	cat, err := h.svc.GetByID(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toCategoryView(*cat))
}

func (h *CategoryHandler) Create(c echo.Context) error {
	var req categoryReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	cat, err := h.svc.Create(ctx, middleware.ActorFrom(c), req.input())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toCategoryView(*cat))
}

func (h *CategoryHandler) Update(c echo.Context) error {
	var req categoryReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	cat, err := h.svc.Update(ctx, middleware.ActorFrom(c), c.Param("id"), req.input())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toCategoryView(*cat))
}

func (h *CategoryHandler) Delete(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.svc.Delete(ctx, middleware.ActorFrom(c), c.Param("id")); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
