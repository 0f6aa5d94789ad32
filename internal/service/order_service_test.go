package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/apperr"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/queue"
	"github.com/iliyamo/storefront-api/internal/repository"
)

type orderFixture struct {
	m        *memDB
	products fakeProducts
	orders   fakeOrders
	pub      *recordingPublisher
	svc      *OrderService
	buyer    repository.Actor
	other    repository.Actor
	admin    repository.Actor
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	db, m := newTestDB(t)
	users := fakeUsers{m}
	mk := func(name string, roles ...string) repository.Actor {
		u := users.add(&model.User{Username: name, Roles: roles})
		u.IsActive = true
		return actorOf(u)
	}
	f := &orderFixture{
		m:        m,
		products: fakeProducts{m},
		orders:   fakeOrders{m},
		pub:      &recordingPublisher{},
		buyer:    mk("buyer", model.RoleUser),
		other:    mk("other", model.RoleUser),
		admin:    mk("admin", model.RoleAdministrator),
	}
	f.svc = NewOrderService(db, f.orders, f.products, users, f.pub, nil, zap.NewNop())
	return f
}

func placeInput(items ...OrderItemInput) PlaceOrderInput {
	return PlaceOrderInput{ShippedAddress: "12 Main St", PhoneNumber: "+15550100", Items: items}
}

func TestPlace_DecrementsStockAndTotals(t *testing.T) {
	f := newOrderFixture(t)
	p := f.products.add("Keyboard", "19.99", 5)

	o, err := f.svc.Place(context.Background(), f.buyer, placeInput(OrderItemInput{ProductID: p.ID, Quantity: 2}))
	require.NoError(t, err)

	assert.Equal(t, 3, f.products.stock(p.ID))
	require.Len(t, o.Details, 1)
	assert.Equal(t, "39.98", o.TotalAmount().StringFixed(2))
	assert.Equal(t, 2, o.TotalItems())
	assert.Equal(t, "buyer", o.UserName)
	assert.True(t, o.Details[0].Discount.IsZero())
	assert.Equal(t, "19.99", o.Details[0].Price.StringFixed(2))
	assert.Equal(t, o.OrderDate.Add(DefaultShippingLeadTime), o.ExpectedShippedDate)
	assert.Equal(t, 1, f.m.commits)
	assert.Equal(t, []string{queue.EventOrderPlaced}, f.pub.types())
	assert.Equal(t, "39.98", f.pub.events[0].TotalAmount)
	requireNoOpenTx(t, f.m)
}

func TestPlace_InsufficientStockRollsBack(t *testing.T) {
	f := newOrderFixture(t)
	p := f.products.add("Monitor", "150.00", 5)

	_, err := f.svc.Place(context.Background(), f.buyer, placeInput(OrderItemInput{ProductID: p.ID, Quantity: 10}))
	require.Error(t, err)

	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.CodeValidation, ae.Code)
	assert.Equal(t, "Not enough stock for product Monitor. Available: 5, Requested: 10", ae.Message)
	assert.Equal(t, 5, ae.Details["available"])
	assert.Equal(t, 10, ae.Details["requested"])
	assert.Equal(t, p.ID, ae.Details["product_id"])

	assert.Equal(t, 5, f.products.stock(p.ID))
	assert.Empty(t, f.m.orders)
	assert.Equal(t, 1, f.m.rollbacks)
	assert.Empty(t, f.pub.types())
	requireNoOpenTx(t, f.m)
}

func TestPlace_LaterItemFailureUndoesEarlierLines(t *testing.T) {
	f := newOrderFixture(t)
	a := f.products.add("Mouse", "10.00", 5)
	b := f.products.add("Cable", "2.50", 1)

	_, err := f.svc.Place(context.Background(), f.buyer, placeInput(
		OrderItemInput{ProductID: a.ID, Quantity: 2},
		OrderItemInput{ProductID: b.ID, Quantity: 3},
	))
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	assert.Equal(t, 5, f.products.stock(a.ID))
	assert.Equal(t, 1, f.products.stock(b.ID))
	assert.Empty(t, f.m.orders)
}

func TestPlace_MergesDuplicateProducts(t *testing.T) {
	f := newOrderFixture(t)
	p := f.products.add("Pen", "1.00", 5)

	o, err := f.svc.Place(context.Background(), f.buyer, placeInput(
		OrderItemInput{ProductID: p.ID, Quantity: 1},
		OrderItemInput{ProductID: p.ID, Quantity: 2},
	))
	require.NoError(t, err)
	require.Len(t, o.Details, 1)
	assert.Equal(t, 3, o.Details[0].Quantity)
	assert.Equal(t, 2, f.products.stock(p.ID))
}

func TestPlace_EmptyItemsFailsBeforeTransaction(t *testing.T) {
	f := newOrderFixture(t)

	_, err := f.svc.Place(context.Background(), f.buyer, placeInput())
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	assert.Equal(t, "at least one product is required for an order", err.Error())
	assert.Zero(t, f.m.commits+f.m.rollbacks)
}

func TestPlace_RejectsBadInput(t *testing.T) {
	f := newOrderFixture(t)
	p := f.products.add("Pen", "1.00", 5)

	cases := map[string]PlaceOrderInput{
		"zero quantity": placeInput(OrderItemInput{ProductID: p.ID, Quantity: 0}),
		"no product id": placeInput(OrderItemInput{Quantity: 1}),
		"no address":    {PhoneNumber: "1", Items: []OrderItemInput{{ProductID: p.ID, Quantity: 1}}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Place(context.Background(), f.buyer, in)
			assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
		})
	}
	assert.Equal(t, 5, f.products.stock(p.ID))
}

func TestPlace_PhoneNumberOptional(t *testing.T) {
	f := newOrderFixture(t)
	p := f.products.add("Pen", "1.00", 5)

	in := placeInput(OrderItemInput{ProductID: p.ID, Quantity: 2})
	in.PhoneNumber = ""
	o, err := f.svc.Place(context.Background(), f.buyer, in)
	require.NoError(t, err)

	assert.Empty(t, o.PhoneNumber)
	assert.Equal(t, 3, f.products.stock(p.ID))
	assert.Len(t, f.m.orders, 1)
}

func TestPlace_UnknownProductRollsBack(t *testing.T) {
	f := newOrderFixture(t)

	_, err := f.svc.Place(context.Background(), f.buyer, placeInput(OrderItemInput{ProductID: "missing", Quantity: 1}))
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
	assert.Empty(t, f.m.orders)
	assert.Equal(t, 1, f.m.rollbacks)
}

func TestPlace_UnknownUser(t *testing.T) {
	f := newOrderFixture(t)
	p := f.products.add("Pen", "1.00", 5)

	_, err := f.svc.Place(context.Background(), repository.Actor{ID: "ghost"}, placeInput(OrderItemInput{ProductID: p.ID, Quantity: 1}))
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
	assert.Zero(t, f.m.commits+f.m.rollbacks)
}

func TestPlace_PublishFailureKeepsOrder(t *testing.T) {
	f := newOrderFixture(t)
	f.pub.err = errors.New("broker down")
	p := f.products.add("Pen", "1.00", 5)

	o, err := f.svc.Place(context.Background(), f.buyer, placeInput(OrderItemInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)
	assert.Contains(t, f.m.orders, o.ID)
}

func TestPlace_BeginFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

	m := newMemDB()
	users := fakeUsers{m}
	u := users.add(&model.User{Username: "buyer"})
	p := fakeProducts{m}.add("Pen", "1.00", 5)
	svc := NewOrderService(db, fakeOrders{m}, fakeProducts{m}, users, nil, nil, nil)

	_, err = svc.Place(context.Background(), actorOf(u), placeInput(OrderItemInput{ProductID: p.ID, Quantity: 1}))
	assert.True(t, apperr.IsCode(err, apperr.CodeInternal))
	assert.Equal(t, 5, fakeProducts{m}.stock(p.ID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlace_FailureRollsBackTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectRollback()

	m := newMemDB()
	users := fakeUsers{m}
	u := users.add(&model.User{Username: "buyer"})
	svc := NewOrderService(db, fakeOrders{m}, fakeProducts{m}, users, nil, nil, nil)

	_, err = svc.Place(context.Background(), actorOf(u), placeInput(OrderItemInput{ProductID: "missing", Quantity: 1}))
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancel_RestoresStockAndDeletesOrder(t *testing.T) {
	f := newOrderFixture(t)
	a := f.products.add("Mouse", "10.00", 5)
	b := f.products.add("Pad", "4.00", 8)
	o, err := f.svc.Place(context.Background(), f.buyer, placeInput(
		OrderItemInput{ProductID: a.ID, Quantity: 2},
		OrderItemInput{ProductID: b.ID, Quantity: 8},
	))
	require.NoError(t, err)
	require.Equal(t, 0, f.products.stock(b.ID))

	require.NoError(t, f.svc.Cancel(context.Background(), f.buyer, o.ID))

	assert.Equal(t, 5, f.products.stock(a.ID))
	assert.Equal(t, 8, f.products.stock(b.ID))
	assert.NotContains(t, f.m.orders, o.ID)
	assert.Equal(t, []string{queue.EventOrderPlaced, queue.EventOrderCancelled}, f.pub.types())
}

func TestCancel_SkipsDeletedProducts(t *testing.T) {
	f := newOrderFixture(t)
	a := f.products.add("Mouse", "10.00", 5)
	b := f.products.add("Pad", "4.00", 5)
	o, err := f.svc.Place(context.Background(), f.buyer, placeInput(
		OrderItemInput{ProductID: a.ID, Quantity: 1},
		OrderItemInput{ProductID: b.ID, Quantity: 1},
	))
	require.NoError(t, err)
	f.m.products[b.ID].IsDeleted = true

	require.NoError(t, f.svc.Cancel(context.Background(), f.buyer, o.ID))
	assert.Equal(t, 5, f.products.stock(a.ID))
	assert.Equal(t, 4, f.m.products[b.ID].UnitInStock)
	assert.NotContains(t, f.m.orders, o.ID)
}

func TestCancel_Authorization(t *testing.T) {
	f := newOrderFixture(t)
	p := f.products.add("Pen", "1.00", 5)
	o, err := f.svc.Place(context.Background(), f.buyer, placeInput(OrderItemInput{ProductID: p.ID, Quantity: 2}))
	require.NoError(t, err)

	err = f.svc.Cancel(context.Background(), f.other, o.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))
	assert.Equal(t, 3, f.products.stock(p.ID))
	assert.Contains(t, f.m.orders, o.ID)

	require.NoError(t, f.svc.Cancel(context.Background(), f.admin, o.ID))
	assert.Equal(t, 5, f.products.stock(p.ID))
}

func TestCancel_NotFound(t *testing.T) {
	f := newOrderFixture(t)
	err := f.svc.Cancel(context.Background(), f.buyer, "missing")
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
	assert.Equal(t, "order not found", err.Error())
}

func TestGetByID_OwnerOrAdmin(t *testing.T) {
	f := newOrderFixture(t)
	p := f.products.add("Pen", "1.00", 5)
	o, err := f.svc.Place(context.Background(), f.buyer, placeInput(OrderItemInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.GetByID(context.Background(), f.buyer, o.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetByID(context.Background(), f.admin, o.ID)
	assert.NoError(t, err)
	_, err = f.svc.GetByID(context.Background(), f.other, o.ID)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))
}

func TestUpdateAndListMine(t *testing.T) {
	f := newOrderFixture(t)
	p := f.products.add("Pen", "1.00", 5)
	o, err := f.svc.Place(context.Background(), f.buyer, placeInput(OrderItemInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.Update(context.Background(), f.admin, o.ID, UpdateOrderInput{ShippedAddress: "7 Side Rd"})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	shipped := o.OrderDate.Add(DefaultShippingLeadTime)
	expected := o.OrderDate.Add(48 * time.Hour)
	updated, err := f.svc.Update(context.Background(), f.admin, o.ID, UpdateOrderInput{
		ShippedAddress: "7 Side Rd", ExpectedShippedDate: expected, ActualShippedDate: &shipped,
	})
	require.NoError(t, err)
	assert.Equal(t, "7 Side Rd", updated.ShippedAddress)
	assert.Empty(t, updated.PhoneNumber)
	assert.True(t, expected.Equal(updated.ExpectedShippedDate))
	require.NotNil(t, updated.ActualShippedDate)

	mine, err := f.svc.ListMine(context.Background(), f.buyer)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	theirs, err := f.svc.ListMine(context.Background(), f.other)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	page, err := f.svc.SearchMine(context.Background(), f.buyer, repository.OrderSearchParams{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.TotalCount)
	assert.Equal(t, repository.DefaultPageSize, page.PageSize)
}

func TestMergeItems(t *testing.T) {
	got := mergeItems([]OrderItemInput{{"a", 1}, {"b", 2}, {" a ", 3}})
	assert.Equal(t, []OrderItemInput{{"a", 4}, {"b", 2}}, got)
}
