package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/queue"
	"github.com/iliyamo/storefront-api/internal/repository"
)

// memDB is an in-memory stand-in for the MySQL schema. Writes made while a
// transaction is open record an undo step, so a rollback through
// database/sql really discards them.
type memDB struct {
	mu        sync.Mutex
	open      bool
	undo      []func()
	commits   int
	rollbacks int

	users      map[string]*model.User
	roles      map[string]bool
	tokens     map[string]*model.RefreshToken
	categories map[string]*model.Category
	suppliers  map[string]*model.Supplier
	products   map[string]*model.Product
	orders     map[string]*model.Order
}

func newMemDB() *memDB {
	return &memDB{
		users:      map[string]*model.User{},
		roles:      map[string]bool{},
		tokens:     map[string]*model.RefreshToken{},
		categories: map[string]*model.Category{},
		suppliers:  map[string]*model.Supplier{},
		products:   map[string]*model.Product{},
		orders:     map[string]*model.Order{},
	}
}

// newTestDB returns a *sql.DB whose transactions drive m.
func newTestDB(t *testing.T) (*sql.DB, *memDB) {
	t.Helper()
	m := newMemDB()
	db := sql.OpenDB(memConnector{m})
	t.Cleanup(func() { _ = db.Close() })
	return db, m
}

func (m *memDB) onUndo(fn func()) {
	if m.open {
		m.undo = append(m.undo, fn)
	}
}

type memConnector struct{ m *memDB }

func (c memConnector) Connect(context.Context) (driver.Conn, error) { return memConn(c), nil }
func (c memConnector) Driver() driver.Driver                        { return memDriver{} }

type memDriver struct{}

func (memDriver) Open(string) (driver.Conn, error) { return nil, errors.New("memdb: use the connector") }

type memConn struct{ m *memDB }

func (memConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("memdb: statements not supported") }
func (memConn) Close() error                        { return nil }

func (c memConn) Begin() (driver.Tx, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.open = true
	c.m.undo = nil
	return memTx(c), nil
}

type memTx struct{ m *memDB }

func (t memTx) Commit() error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.open, t.m.undo = false, nil
	t.m.commits++
	return nil
}

func (t memTx) Rollback() error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for i := len(t.m.undo) - 1; i >= 0; i-- {
		t.m.undo[i]()
	}
	t.m.open, t.m.undo = false, nil
	t.m.rollbacks++
	return nil
}

// ---- users ----

type fakeUsers struct{ *memDB }

func (f fakeUsers) add(u *model.User) *model.User {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	f.users[u.ID] = u
	return u
}

func (f fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.IsDeleted {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username && !u.IsDeleted {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f fakeUsers) Taken(_ context.Context, username, email string) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var un, em bool
	for _, u := range f.users {
		un = un || u.Username == username
		em = em || strings.EqualFold(u.Email, email)
	}
	return un, em, nil
}

func (f fakeUsers) CreateTx(_ context.Context, _ *sql.Tx, actor repository.Actor, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, other := range f.users {
		if other.Username == u.Username || other.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	u.ID = uuid.NewString()
	u.CreatedByID = actor.AuditID()
	cp := *u
	f.users[u.ID] = &cp
	f.onUndo(func() { delete(f.users, cp.ID) })
	return nil
}

func (f fakeUsers) AssignRoleTx(_ context.Context, _ *sql.Tx, userID, roleName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.roles[roleName] {
		return repository.ErrNotFound
	}
	u := f.users[userID]
	prev := u.Roles
	u.Roles = append(append([]string{}, prev...), roleName)
	f.onUndo(func() { u.Roles = prev })
	return nil
}

func (f fakeUsers) EnsureRole(_ context.Context, _ repository.Actor, name, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[name] = true
	return nil
}

// ---- refresh tokens ----

type fakeTokens struct {
	*memDB
	now func() time.Time
}

func (f fakeTokens) Store(_ context.Context, _ repository.Querier, _ repository.Actor, userID, hash string, expires time.Time) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &model.RefreshToken{ID: uuid.NewString(), Token: hash, ExpiryDate: expires, UserID: userID}
	t.CreatedAt = f.now()
	f.tokens[t.ID] = t
	f.onUndo(func() { delete(f.tokens, t.ID) })
	cp := *t
	return &cp, nil
}

func (f fakeTokens) byHash(hash string) (*model.RefreshToken, error) {
	for _, t := range f.tokens {
		if t.Token == hash && !t.IsDeleted {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f fakeTokens) GetByHash(_ context.Context, hash string) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byHash(hash)
}

func (f fakeTokens) GetByHashForUpdateTx(_ context.Context, _ *sql.Tx, hash string) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byHash(hash)
}

func (f fakeTokens) MarkRotated(_ context.Context, _ repository.Querier, _ repository.Actor, id, replacedBy, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[id]
	if !ok || t.IsUsed || t.IsRevoked {
		return repository.ErrNoRowsAffected
	}
	prev := *t
	t.IsUsed, t.IsRevoked = true, true
	t.ReplacedByToken, t.ReasonRevoked = &replacedBy, &reason
	f.onUndo(func() { *t = prev })
	return nil
}

func (f fakeTokens) Revoke(_ context.Context, _ repository.Actor, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[id]
	if !ok || t.IsRevoked {
		return repository.ErrNoRowsAffected
	}
	t.IsRevoked, t.ReasonRevoked = true, &reason
	return nil
}

func (f fakeTokens) RevokeAllForUser(_ context.Context, _ repository.Querier, _ repository.Actor, userID, reason string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.tokens {
		if t.UserID == userID && t.IsActive(f.now()) {
			prev := *t
			t.IsRevoked, t.ReasonRevoked = true, &reason
			f.onUndo(func() { *t = prev })
			n++
		}
	}
	return n, nil
}

func (f fakeTokens) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, t := range f.tokens {
		if (t.IsUsed || t.IsRevoked || !t.ExpiryDate.After(cutoff)) && t.CreatedAt.Before(cutoff) {
			delete(f.tokens, id)
			n++
		}
	}
	return n, nil
}

func (f fakeTokens) active(userID string) []*model.RefreshToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.RefreshToken
	for _, t := range f.tokens {
		if t.UserID == userID && t.IsActive(f.now()) {
			out = append(out, t)
		}
	}
	return out
}

// ---- catalog ----

type fakeCategories struct{ *memDB }

func (f fakeCategories) Create(_ context.Context, _ repository.Actor, c *model.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = uuid.NewString()
	cp := *c
	f.categories[c.ID] = &cp
	return nil
}

func (f fakeCategories) Update(_ context.Context, _ repository.Actor, c *model.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.categories[c.ID]; !ok || cur.IsDeleted {
		return repository.ErrNotFound
	}
	cp := *c
	f.categories[c.ID] = &cp
	return nil
}

func (f fakeCategories) SoftDeleteTx(_ context.Context, _ *sql.Tx, _ repository.Actor, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.categories[id]
	if !ok || c.IsDeleted {
		return repository.ErrNotFound
	}
	c.IsDeleted = true
	f.onUndo(func() { c.IsDeleted = false })
	return nil
}

func (f fakeCategories) GetByID(_ context.Context, id string) (*model.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.categories[id]
	if !ok || c.IsDeleted {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f fakeCategories) NameTaken(_ context.Context, name, excludeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.categories {
		if id != excludeID && !c.IsDeleted && strings.EqualFold(c.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeCategories) List(_ context.Context, includeInactive bool) ([]model.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Category{}
	for _, c := range f.categories {
		if !c.IsDeleted && (includeInactive || c.IsActive) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f fakeCategories) Search(ctx context.Context, p repository.SearchParams) (repository.Page[model.Category], error) {
	all, _ := f.List(ctx, p.IncludeInactive)
	return repository.NewPage(all, int64(len(all)), p), nil
}

type fakeSuppliers struct{ *memDB }

func (f fakeSuppliers) Create(_ context.Context, _ repository.Actor, s *model.Supplier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = uuid.NewString()
	cp := *s
	f.suppliers[s.ID] = &cp
	return nil
}

func (f fakeSuppliers) Update(_ context.Context, _ repository.Actor, s *model.Supplier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.suppliers[s.ID] = &cp
	return nil
}

func (f fakeSuppliers) SoftDeleteTx(_ context.Context, _ *sql.Tx, _ repository.Actor, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.suppliers[id]
	if !ok || s.IsDeleted {
		return repository.ErrNotFound
	}
	s.IsDeleted = true
	f.onUndo(func() { s.IsDeleted = false })
	return nil
}

func (f fakeSuppliers) GetByID(_ context.Context, id string) (*model.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.suppliers[id]
	if !ok || s.IsDeleted {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f fakeSuppliers) NameTaken(_ context.Context, name, excludeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.suppliers {
		if id != excludeID && !s.IsDeleted && strings.EqualFold(s.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeSuppliers) List(_ context.Context, includeInactive bool) ([]model.Supplier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Supplier{}
	for _, s := range f.suppliers {
		if !s.IsDeleted && (includeInactive || s.IsActive) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f fakeSuppliers) Search(ctx context.Context, p repository.SearchParams) (repository.Page[model.Supplier], error) {
	all, _ := f.List(ctx, p.IncludeInactive)
	return repository.NewPage(all, int64(len(all)), p), nil
}

type fakeProducts struct{ *memDB }

func (f fakeProducts) add(name string, price string, stock int) *model.Product {
	p := &model.Product{ID: uuid.NewString(), Name: name, Price: decimal.RequireFromString(price), UnitInStock: stock}
	p.IsActive = true
	f.products[p.ID] = p
	return p
}

func (f fakeProducts) stock(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].UnitInStock
}

func (f fakeProducts) get(id string) (*model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || p.IsDeleted {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f fakeProducts) GetByIDTx(_ context.Context, _ *sql.Tx, id string) (*model.Product, error) {
	return f.get(id)
}

func (f fakeProducts) GetByID(_ context.Context, id string) (*model.Product, error) { return f.get(id) }

func (f fakeProducts) DecrementStockTx(_ context.Context, _ *sql.Tx, _ repository.Actor, id string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || p.IsDeleted || p.UnitInStock < qty {
		return repository.ErrInsufficientStock
	}
	p.UnitInStock -= qty
	f.onUndo(func() { p.UnitInStock += qty })
	return nil
}

func (f fakeProducts) IncrementStockTx(_ context.Context, _ *sql.Tx, _ repository.Actor, id string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || p.IsDeleted {
		return repository.ErrNotFound
	}
	p.UnitInStock += qty
	f.onUndo(func() { p.UnitInStock -= qty })
	return nil
}

func (f fakeProducts) Create(_ context.Context, _ repository.Actor, p *model.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = uuid.NewString()
	cp := *p
	f.products[p.ID] = &cp
	return nil
}

func (f fakeProducts) Update(_ context.Context, _ repository.Actor, p *model.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.products[p.ID] = &cp
	return nil
}

func (f fakeProducts) SoftDelete(_ context.Context, _ repository.Actor, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok || p.IsDeleted {
		return repository.ErrNotFound
	}
	p.IsDeleted = true
	return nil
}

func (f fakeProducts) ClearCategoryTx(_ context.Context, _ *sql.Tx, _ repository.Actor, categoryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.CategoryID != nil && *p.CategoryID == categoryID {
			prev := p.CategoryID
			p.CategoryID = nil
			f.onUndo(func() { p.CategoryID = prev })
		}
	}
	return nil
}

func (f fakeProducts) ClearSupplierTx(_ context.Context, _ *sql.Tx, _ repository.Actor, supplierID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.SupplierID != nil && *p.SupplierID == supplierID {
			prev := p.SupplierID
			p.SupplierID = nil
			f.onUndo(func() { p.SupplierID = prev })
		}
	}
	return nil
}

func (f fakeProducts) List(_ context.Context, includeInactive bool) ([]model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Product{}
	for _, p := range f.products {
		if !p.IsDeleted && (includeInactive || p.IsActive) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f fakeProducts) Search(ctx context.Context, q repository.ProductSearchParams) (repository.Page[model.Product], error) {
	all, _ := f.List(ctx, q.IncludeInactive)
	return repository.NewPage(all, int64(len(all)), q.SearchParams), nil
}

// ---- orders ----

type fakeOrders struct{ *memDB }

func (f fakeOrders) CreateTx(_ context.Context, _ *sql.Tx, actor repository.Actor, o *model.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o.ID = uuid.NewString()
	o.CreatedByID = actor.AuditID()
	o.IsActive = true
	cp := *o
	f.orders[o.ID] = &cp
	f.onUndo(func() { delete(f.orders, cp.ID) })
	return nil
}

func (f fakeOrders) AddDetailTx(_ context.Context, _ *sql.Tx, d model.OrderDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[d.OrderID]
	if !ok {
		return repository.ErrNotFound
	}
	if p, ok := f.products[d.ProductID]; ok {
		d.ProductName = p.Name
	}
	prev := o.Details
	o.Details = append(append([]model.OrderDetail{}, prev...), d)
	f.onUndo(func() { o.Details = prev })
	return nil
}

func (f fakeOrders) get(id string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.IsDeleted {
		return nil, repository.ErrNotFound
	}
	cp := *o
	cp.Details = append([]model.OrderDetail{}, o.Details...)
	if u, ok := f.users[o.UserID]; ok {
		cp.UserName = u.Username
	}
	return &cp, nil
}

func (f fakeOrders) GetByIDTx(_ context.Context, _ *sql.Tx, id string) (*model.Order, error) {
	return f.get(id)
}

func (f fakeOrders) GetDetailed(_ context.Context, id string) (*model.Order, error) { return f.get(id) }

func (f fakeOrders) UpdateShipping(_ context.Context, _ repository.Actor, o *model.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.orders[o.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.ShippedAddress, cur.PhoneNumber = o.ShippedAddress, o.PhoneNumber
	cur.ExpectedShippedDate, cur.ActualShippedDate = o.ExpectedShippedDate, o.ActualShippedDate
	return nil
}

func (f fakeOrders) DeleteTx(_ context.Context, _ *sql.Tx, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return repository.ErrNoRowsAffected
	}
	delete(f.orders, id)
	f.onUndo(func() { f.orders[id] = o })
	return nil
}

func (f fakeOrders) List(_ context.Context, userID *string) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Order{}
	for _, o := range f.orders {
		if userID == nil || o.UserID == *userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f fakeOrders) Search(ctx context.Context, q repository.OrderSearchParams) (repository.Page[model.Order], error) {
	all, _ := f.List(ctx, q.UserID)
	return repository.NewPage(all, int64(len(all)), q.SearchParams), nil
}

// ---- collaborators ----

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type memRevocations struct {
	mu  sync.Mutex
	ids map[string]time.Time
}

func (r *memRevocations) Revoke(_ context.Context, jti string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ids == nil {
		r.ids = map[string]time.Time{}
	}
	r.ids[jti] = until
	return nil
}

func (r *memRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[jti]
	return ok, nil
}

func requireNoOpenTx(t *testing.T, m *memDB) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.False(t, m.open, "transaction left open")
}
