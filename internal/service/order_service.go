package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/apperr"
	"github.com/iliyamo/storefront-api/internal/metrics"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/queue"
	"github.com/iliyamo/storefront-api/internal/repository"
)

// DefaultShippingLeadTime is added to the order date when the client does
// not ask for an expected shipping date.
const DefaultShippingLeadTime = 3 * 24 * time.Hour

type OrderItemInput struct {
	ProductID string
	Quantity  int
}

// PlaceOrderInput describes a new order for the acting user.
type PlaceOrderInput struct {
	ShippedAddress      string
	PhoneNumber         string
	ExpectedShippedDate *time.Time
	Items               []OrderItemInput
}

// UpdateOrderInput carries the shipping fields an administrator may edit.
type UpdateOrderInput struct {
	ShippedAddress      string
	PhoneNumber         string
	ExpectedShippedDate time.Time
	ActualShippedDate   *time.Time
}

// OrderService runs the order placement and cancellation transactions and
// the order queries.
type OrderService struct {
	db        TxBeginner
	orders    OrderStore
	products  StockStore
	users     UserStore
	publisher queue.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

func NewOrderService(db TxBeginner, orders OrderStore, products StockStore, users UserStore,
	pub queue.Publisher, m *metrics.Metrics, log *zap.Logger) *OrderService {
	if pub == nil {
		pub = queue.NopPublisher{}
	}
	return &OrderService{db: db, orders: orders, products: products, users: users,
		publisher: pub, metrics: m, log: nopIfNil(log), now: func() time.Time { return time.Now().UTC() }}
}

// mergeItems folds repeated product ids into one line, keeping the order
// in which each product first appeared.
func mergeItems(items []OrderItemInput) []OrderItemInput {
	idx := make(map[string]int, len(items))
	out := make([]OrderItemInput, 0, len(items))
	for _, it := range items {
		id := strings.TrimSpace(it.ProductID)
		if i, ok := idx[id]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[id] = len(out)
		out = append(out, OrderItemInput{ProductID: id, Quantity: it.Quantity})
	}
	return out
}

func validatePlace(in PlaceOrderInput) error {
	if len(in.Items) == 0 {
		return apperr.Validation("at least one product is required for an order")
	}
	for _, it := range in.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return apperr.Validation("product_id is required for every item")
		}
		if it.Quantity < 1 {
			return apperr.Validation("quantity must be at least 1").
				WithDetails(map[string]any{"product_id": it.ProductID, "quantity": it.Quantity})
		}
	}
	if strings.TrimSpace(in.ShippedAddress) == "" {
		return apperr.Validation("shipped_address is required")
	}
	return nil
}

func insufficientStock(p *model.Product, requested int) error {
	return apperr.Validation("Not enough stock for product %s. Available: %d, Requested: %d",
		p.Name, p.UnitInStock, requested).
		WithDetails(map[string]any{"product_id": p.ID, "available": p.UnitInStock, "requested": requested})
}

// Place creates an order for actor. The order header, its lines and every
// stock decrement commit together or not at all.
func (s *OrderService) Place(ctx context.Context, actor repository.Actor, in PlaceOrderInput) (*model.Order, error) {
	if err := validatePlace(in); err != nil {
		s.metrics.OrderFailed("place", string(apperr.CodeOf(err)))
		return nil, err
	}
	items := mergeItems(in.Items)

	if _, err := s.users.GetByID(ctx, actor.ID); err != nil {
		return nil, s.failed("place", storeErr(err, "user"))
	}

	now := s.now()
	o := &model.Order{
		OrderDate:           now,
		ShippedAddress:      strings.TrimSpace(in.ShippedAddress),
		ExpectedShippedDate: now.Add(DefaultShippingLeadTime),
		PhoneNumber:         strings.TrimSpace(in.PhoneNumber),
		UserID:              actor.ID,
	}
	if in.ExpectedShippedDate != nil {
		o.ExpectedShippedDate = in.ExpectedShippedDate.UTC()
	}
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.orders.CreateTx(ctx, tx, actor, o); err != nil {
			return err
		}
		for _, it := range items {
			p, err := s.products.GetByIDTx(ctx, tx, it.ProductID)
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("product %s not found", it.ProductID)
			}
			if err != nil {
				return err
			}
			if p.UnitInStock < it.Quantity {
				return insufficientStock(p, it.Quantity)
			}
			d := model.OrderDetail{
				OrderID:   o.ID,
				ProductID: p.ID,
				Quantity:  it.Quantity,
				Price:     p.Price,
				Discount:  decimal.Zero,
			}
			if err := s.orders.AddDetailTx(ctx, tx, d); err != nil {
				return err
			}
			err = s.products.DecrementStockTx(ctx, tx, actor, p.ID, it.Quantity)
			if errors.Is(err, repository.ErrInsufficientStock) {
				return insufficientStock(p, it.Quantity)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.failed("place", storeErr(err, "order"))
	}

	placed, err := s.orders.GetDetailed(ctx, o.ID)
	if err != nil {
		return nil, storeErr(err, "order")
	}
	s.metrics.OrderPlaced()
	s.log.Info("order placed",
		zap.String("order_id", placed.ID),
		zap.String("user_id", placed.UserID),
		zap.Int("items", placed.TotalItems()),
		zap.String("total", placed.TotalAmount().StringFixed(2)))
	s.publish(ctx, queue.EventOrderPlaced, actor, placed)
	return placed, nil
}

// Cancel removes an order and returns its quantities to stock. Products
// deleted since the order was placed are skipped.
func (s *OrderService) Cancel(ctx context.Context, actor repository.Actor, orderID string) error {
	var cancelled *model.Order
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		o, err := s.orders.GetByIDTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != actor.ID && !actor.IsAdmin() {
			return apperr.Forbidden("you can only cancel your own orders")
		}
		for _, d := range o.Details {
			err := s.products.IncrementStockTx(ctx, tx, actor, d.ProductID, d.Quantity)
			if errors.Is(err, repository.ErrNotFound) {
				s.log.Debug("stock not restored for missing product",
					zap.String("order_id", o.ID), zap.String("product_id", d.ProductID))
				continue
			}
			if err != nil {
				return err
			}
		}
		if err := s.orders.DeleteTx(ctx, tx, o.ID); err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return s.failed("cancel", storeErr(err, "order"))
	}
	s.metrics.OrderCancelled()
	s.log.Info("order cancelled",
		zap.String("order_id", cancelled.ID),
		zap.String("user_id", cancelled.UserID),
		zap.String("actor", actor.ID))
	s.publish(ctx, queue.EventOrderCancelled, actor, cancelled)
	return nil
}

// Update edits the shipping fields of an order.
func (s *OrderService) Update(ctx context.Context, actor repository.Actor, id string, in UpdateOrderInput) (*model.Order, error) {
	if strings.TrimSpace(in.ShippedAddress) == "" {
		return nil, apperr.Validation("shipped_address is required")
	}
	if in.ExpectedShippedDate.IsZero() {
		return nil, apperr.Validation("expected_shipped_date is required")
	}
	o, err := s.orders.GetDetailed(ctx, id)
	if err != nil {
		return nil, storeErr(err, "order")
	}
	o.ShippedAddress = strings.TrimSpace(in.ShippedAddress)
	o.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	o.ExpectedShippedDate = in.ExpectedShippedDate.UTC()
	o.ActualShippedDate = in.ActualShippedDate
	if err := s.orders.UpdateShipping(ctx, actor, o); err != nil {
		return nil, storeErr(err, "order")
	}
	s.log.Info("order updated", zap.String("order_id", id), zap.String("actor", actor.ID))
	updated, err := s.orders.GetDetailed(ctx, id)
	if err != nil {
		return nil, storeErr(err, "order")
	}
	return updated, nil
}

// GetByID returns an order visible to actor: its owner or an administrator.
func (s *OrderService) GetByID(ctx context.Context, actor repository.Actor, id string) (*model.Order, error) {
	o, err := s.orders.GetDetailed(ctx, id)
	if err != nil {
		return nil, storeErr(err, "order")
	}
	if o.UserID != actor.ID && !actor.IsAdmin() {
		return nil, apperr.Forbidden("you can only view your own orders")
	}
	return o, nil
}

func (s *OrderService) List(ctx context.Context) ([]model.Order, error) {
	items, err := s.orders.List(ctx, nil)
	if err != nil {
		return nil, storeErr(err, "order")
	}
	return items, nil
}

func (s *OrderService) ListMine(ctx context.Context, actor repository.Actor) ([]model.Order, error) {
	id := actor.ID
	items, err := s.orders.List(ctx, &id)
	if err != nil {
		return nil, storeErr(err, "order")
	}
	return items, nil
}

func (s *OrderService) Search(ctx context.Context, q repository.OrderSearchParams) (repository.Page[model.Order], error) {
	if q.FromOrderDate != nil && q.ToOrderDate != nil && q.FromOrderDate.After(*q.ToOrderDate) {
		return repository.Page[model.Order]{}, apperr.Validation("from_order_date must not be after to_order_date")
	}
	q.SearchParams = q.SearchParams.Normalize()
	page, err := s.orders.Search(ctx, q)
	if err != nil {
		return page, storeErr(err, "order")
	}
	return page, nil
}

// SearchMine is Search restricted to the actor's own orders.
func (s *OrderService) SearchMine(ctx context.Context, actor repository.Actor, q repository.OrderSearchParams) (repository.Page[model.Order], error) {
	id := actor.ID
	q.UserID = &id
	return s.Search(ctx, q)
}

func (s *OrderService) failed(op string, err error) error {
	code := apperr.CodeOf(err)
	s.metrics.OrderFailed(op, string(code))
	if code == apperr.CodeInternal || code == apperr.CodePersistence {
		s.log.Error("order "+op+" failed", zap.Error(err))
	}
	return err
}

// publish sends the event after commit. Delivery failures are logged and
// never undo the committed order.
func (s *OrderService) publish(ctx context.Context, typ string, actor repository.Actor, o *model.Order) {
	ev := queue.OrderEvent{
		Type:        typ,
		OrderID:     o.ID,
		UserID:      o.UserID,
		UserName:    o.UserName,
		ActorID:     actor.ID,
		TotalAmount: o.TotalAmount().StringFixed(2),
		OccurredAt:  s.now(),
		Items:       make([]queue.OrderEventItem, 0, len(o.Details)),
	}
	for _, d := range o.Details {
		ev.Items = append(ev.Items, queue.OrderEventItem{ProductID: d.ProductID, Quantity: d.Quantity, Price: d.Price.String()})
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("order event not published", zap.String("type", typ), zap.String("order_id", o.ID), zap.Error(err))
	}
}
