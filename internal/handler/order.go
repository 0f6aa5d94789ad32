package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/middleware"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/service"
)

type OrderService interface {
	Place(ctx context.Context, actor repository.Actor, in service.PlaceOrderInput) (*model.Order, error)
	Cancel(ctx context.Context, actor repository.Actor, orderID string) error
	Update(ctx context.Context, actor repository.Actor, id string, in service.UpdateOrderInput) (*model.Order, error)
	GetByID(ctx context.Context, actor repository.Actor, id string) (*model.Order, error)
	List(ctx context.Context) ([]model.Order, error)
	ListMine(ctx context.Context, actor repository.Actor) ([]model.Order, error)
	Search(ctx context.Context, q repository.OrderSearchParams) (repository.Page[model.Order], error)
	SearchMine(ctx context.Context, actor repository.Actor, q repository.OrderSearchParams) (repository.Page[model.Order], error)
}

type OrderHandler struct {
	svc OrderService
	log *zap.Logger
}

func NewOrderHandler(svc OrderService, log *zap.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, log: log}
}

type orderItemReq struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

// Items is not required here so that an empty list reaches the service and
// gets its specific message.
type placeOrderReq struct {
	ShippedAddress      string         `json:"shipped_address" validate:"required,max=500"`
	PhoneNumber         string         `json:"phone_number" validate:"omitempty,max=20"`
	ExpectedShippedDate *time.Time     `json:"expected_shipped_date"`
	Items               []orderItemReq `json:"items" validate:"dive"`
}

type updateOrderReq struct {
	ShippedAddress      string     `json:"shipped_address" validate:"required,max=500"`
	PhoneNumber         string     `json:"phone_number" validate:"omitempty,max=20"`
	ExpectedShippedDate time.Time  `json:"expected_shipped_date" validate:"required"`
	ActualShippedDate   *time.Time `json:"actual_shipped_date"`
}

func orderSearchParams(c echo.Context) (repository.OrderSearchParams, error) {
	var (
		q   repository.OrderSearchParams
		err error
	)
	if q.SearchParams, err = searchParams(c); err != nil {
		return q, err
	}
	q.UserID = queryString(c, "user_id")
	if q.FromOrderDate, err = queryTime(c, "from_order_date"); err != nil {
		return q, err
	}
	if q.ToOrderDate, err = queryTime(c, "to_order_date"); err != nil {
		return q, err
	}
	if q.HasShipped, err = queryBool(c, "has_shipped"); err != nil {
		return q, err
	}
	return q, nil
}

// Place runs the order placement workflow for the caller.
func (h *OrderHandler) Place(c echo.Context) error {
	var req placeOrderReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	in := service.PlaceOrderInput{
		ShippedAddress:      req.ShippedAddress,
		PhoneNumber:         req.PhoneNumber,
		ExpectedShippedDate: req.ExpectedShippedDate,
		Items:               make([]service.OrderItemInput, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, service.OrderItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	o, err := h.svc.Place(ctx, middleware.ActorFrom(c), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, toOrderView(*o))
}

// Cancel deletes the order and restores its stock.
func (h *OrderHandler) Cancel(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.svc.Cancel(ctx, middleware.ActorFrom(c), c.Param("id")); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *OrderHandler) Update(c echo.Context) error {
	var req updateOrderReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	o, err := h.svc.Update(ctx, middleware.ActorFrom(c), c.Param("id"), service.UpdateOrderInput{
		ShippedAddress:      req.ShippedAddress,
		PhoneNumber:         req.PhoneNumber,
		ExpectedShippedDate: req.ExpectedShippedDate,
		ActualShippedDate:   req.ActualShippedDate,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toOrderView(*o))
}

func (h *OrderHandler) Get(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	o, err := h.svc.GetByID(ctx, middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, toOrderView(*o))
}

func (h *OrderHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.svc.List(ctx)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, listView(items, toOrderView))
}

func (h *OrderHandler) ListMine(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.svc.ListMine(ctx, middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, listView(items, toOrderView))
}

func (h *OrderHandler) Search(c echo.Context) error {
	q, err := orderSearchParams(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	page, err := h.svc.Search(ctx, q)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, repository.MapPage(page, toOrderView))
}

func (h *OrderHandler) SearchMine(c echo.Context) error {
	q, err := orderSearchParams(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	page, err := h.svc.SearchMine(ctx, middleware.ActorFrom(c), q)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, repository.MapPage(page, toOrderView))
}
