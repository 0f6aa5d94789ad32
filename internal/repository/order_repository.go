package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/storefront-api/internal/model"
)

// OrderRepo reads and writes common_orders and common_order_details.
// Orders are written only inside the placement transaction and removed
// only by cancellation, so the write methods take an explicit *sql.Tx.
type OrderRepo struct{ db *sql.DB }

func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// OrderSearchParams extends SearchParams with order filters. HasShipped
// matches on whether actual_shipped_date is set.
type OrderSearchParams struct {
	SearchParams
	UserID        *string
	FromOrderDate *time.Time
	ToOrderDate   *time.Time
	HasShipped    *bool
}

var orderSearch = searchSpec{
	alias:       "o",
	keywordCols: []string{"o.shipped_address", "o.phone_number"},
	sortCols: map[string]string{
		"orderdate":           "o.order_date",
		"expectedshippeddate": "o.expected_shipped_date",
		"actualshippeddate":   "o.actual_shipped_date",
		"shippedaddress":      "o.shipped_address",
		"createdat":           "o.created_at",
	},
	defaultSort: "o.order_date",
	defaultDesc: true,
	hasActive:   true,
}

const orderSelect = "SELECT o.id, o.order_date, o.shipped_address, o.expected_shipped_date, o.actual_shipped_date, " +
	"o.phone_number, o.user_id, u.username, o.is_active, "

const orderFrom = " FROM common_orders o JOIN security_users u ON u.id = o.user_id"

func scanOrder(sc scanner) (*model.Order, error) {
	var o model.Order
	dest := []any{&o.ID, &o.OrderDate, &o.ShippedAddress, &o.ExpectedShippedDate, &o.ActualShippedDate,
		&o.PhoneNumber, &o.UserID, &o.UserName, &o.IsActive}
	if err := sc.Scan(append(dest, auditDest(&o.Audit)...)...); err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

// CreateTx inserts the order header. ID, OrderDate and the creation audit
// fields are filled in on o.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, actor Actor, o *model.Order) error {
	o.ID = uuid.NewString()
	o.CreatedAt = nowUTC()
	o.CreatedByID = actor.AuditID()
	if o.OrderDate.IsZero() {
		o.OrderDate = o.CreatedAt
	}
	o.IsActive = true
	_, err := tx.ExecContext(ctx,
		`INSERT INTO common_orders (id, order_date, shipped_address, expected_shipped_date, actual_shipped_date,
		 phone_number, user_id, is_active, is_deleted, created_at, created_by_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?)`,
		o.ID, o.OrderDate, o.ShippedAddress, o.ExpectedShippedDate, o.ActualShippedDate,
		o.PhoneNumber, o.UserID, o.CreatedAt, o.CreatedByID)
	return err
}

// AddDetailTx inserts one order line.
func (r *OrderRepo) AddDetailTx(ctx context.Context, tx *sql.Tx, d model.OrderDetail) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO common_order_details (order_id, product_id, quantity, price, discount) VALUES (?, ?, ?, ?, ?)",
		d.OrderID, d.ProductID, d.Quantity, d.Price, d.Discount)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetByIDTx loads a non-deleted order and its details inside tx.
func (r *OrderRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.Order, error) {
	return r.getDetailed(ctx, tx, id)
}

// GetDetailed loads a non-deleted order with its owner's username and its
// details joined to product names.
func (r *OrderRepo) GetDetailed(ctx context.Context, id string) (*model.Order, error) {
	return r.getDetailed(ctx, r.db, id)
}

func (r *OrderRepo) getDetailed(ctx context.Context, q Querier, id string) (*model.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx,
		orderSelect+auditColumns("o")+orderFrom+" WHERE o.id = ? AND o.is_deleted = 0 LIMIT 1", id))
	if err != nil {
		return nil, err
	}
	orders := []model.Order{*o}
	if err := loadDetails(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// UpdateShipping rewrites the shipping columns of a non-deleted order.
func (r *OrderRepo) UpdateShipping(ctx context.Context, actor Actor, o *model.Order) error {
	now := nowUTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE common_orders SET shipped_address = ?, expected_shipped_date = ?, actual_shipped_date = ?,
		 phone_number = ?, updated_at = ?, updated_by_id = ?
		 WHERE id = ? AND is_deleted = 0`,
		o.ShippedAddress, o.ExpectedShippedDate, o.ActualShippedDate, o.PhoneNumber, now, actor.AuditID(), o.ID)
	return mustAffect(res, err, ErrNotFound)
}

// DeleteTx physically removes the order; its details go with it through
// the ON DELETE CASCADE foreign key.
func (r *OrderRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM common_orders WHERE id = ?", id)
	return mustAffect(res, err, ErrNoRowsAffected)
}

// List returns orders newest first, restricted to userID when it is non-nil.
func (r *OrderRepo) List(ctx context.Context, userID *string) ([]model.Order, error) {
	w := orderSearch.base(SearchParams{IncludeInactive: true})
	if userID != nil {
		w.add("o.user_id = ?", *userID)
	}
	rows, err := r.db.QueryContext(ctx,
		orderSelect+auditColumns("o")+orderFrom+w.String()+" ORDER BY o.order_date DESC, o.id ASC", w.args...)
	if err != nil {
		return nil, err
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}
	return orders, loadDetails(ctx, r.db, orders)
}

// Search filters orders by keyword over shipping address and phone plus the
// optional owner, date range and shipped filters.
func (r *OrderRepo) Search(ctx context.Context, q OrderSearchParams) (Page[model.Order], error) {
	w := orderSearch.base(q.SearchParams)
	if q.UserID != nil {
		w.add("o.user_id = ?", *q.UserID)
	}
	if q.FromOrderDate != nil {
		w.add("o.order_date >= ?", q.FromOrderDate.UTC())
	}
	if q.ToOrderDate != nil {
		w.add("o.order_date <= ?", q.ToOrderDate.UTC())
	}
	if q.HasShipped != nil {
		if *q.HasShipped {
			w.add("o.actual_shipped_date IS NOT NULL")
		} else {
			w.add("o.actual_shipped_date IS NULL")
		}
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM common_orders o"+w.String(), w.args...).Scan(&total); err != nil {
		return Page[model.Order]{}, err
	}
	lim, args := limit(q.SearchParams, w.args)
	rows, err := r.db.QueryContext(ctx,
		orderSelect+auditColumns("o")+orderFrom+w.String()+orderSearch.orderBy(q.SearchParams)+lim, args...)
	if err != nil {
		return Page[model.Order]{}, err
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return Page[model.Order]{}, err
	}
	if err := loadDetails(ctx, r.db, orders); err != nil {
		return Page[model.Order]{}, err
	}
	return NewPage(orders, total, q.SearchParams), nil
}

func collectOrders(rows *sql.Rows) ([]model.Order, error) {
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// loadDetails fetches the lines of every order in one query and attaches
// them in place.
func loadDetails(ctx context.Context, q Querier, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	idx := make(map[string]int, len(orders))
	placeholders := make([]string, len(orders))
	args := make([]any, len(orders))
	for i := range orders {
		idx[orders[i].ID] = i
		orders[i].Details = []model.OrderDetail{}
		placeholders[i] = "?"
		args[i] = orders[i].ID
	}
	rows, err := q.QueryContext(ctx,
		`SELECT d.order_id, d.product_id, d.quantity, d.price, d.discount, COALESCE(p.name, '')
		 FROM common_order_details d LEFT JOIN common_products p ON p.id = d.product_id
		 WHERE d.order_id IN (`+strings.Join(placeholders, ",")+`)
		 ORDER BY d.order_id, p.name`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var d model.OrderDetail
		if err := rows.Scan(&d.OrderID, &d.ProductID, &d.Quantity, &d.Price, &d.Discount, &d.ProductName); err != nil {
			return err
		}
		if i, ok := idx[d.OrderID]; ok {
			orders[i].Details = append(orders[i].Details, d)
		}
	}
	return rows.Err()
}
