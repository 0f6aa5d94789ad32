package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/storefront-api/internal/model"
)

// ProductRepo reads and writes common_products. The stock column is also
// adjusted by the order workflow through the *StockTx methods.
type ProductRepo struct{ db *sql.DB }

func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{db: db} }

// ProductSearchParams extends SearchParams with product-only filters.
// Nil filters are not applied.
type ProductSearchParams struct {
	SearchParams
	CategoryID     *string
	SupplierID     *string
	MinPrice       *decimal.Decimal
	MaxPrice       *decimal.Decimal
	IsDiscontinued *bool
}

var productSearch = searchSpec{
	alias:       "p",
	keywordCols: []string{"p.name", "p.description"},
	sortCols: map[string]string{
		"name":        "p.name",
		"price":       "p.price",
		"unitinstock": "p.unit_in_stock",
		"createdat":   "p.created_at",
		"updatedat":   "p.updated_at",
	},
	defaultSort: "p.name",
	hasActive:   true,
}

const productSelect = "SELECT p.id, p.name, p.description, p.price, p.unit_in_stock, p.thumbnail, p.is_discontinued, " +
	"p.category_id, p.supplier_id, c.name, s.name, p.is_active, "

const productFrom = " FROM common_products p" +
	" LEFT JOIN common_categories c ON c.id = p.category_id AND c.is_deleted = 0" +
	" LEFT JOIN common_suppliers s ON s.id = p.supplier_id AND s.is_deleted = 0"

func scanProduct(sc scanner) (*model.Product, error) {
	var p model.Product
	dest := []any{&p.ID, &p.Name, &p.Description, &p.Price, &p.UnitInStock, &p.Thumbnail, &p.IsDiscontinued,
		&p.CategoryID, &p.SupplierID, &p.CategoryName, &p.SupplierName, &p.IsActive}
	if err := sc.Scan(append(dest, auditDest(&p.Audit)...)...); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// Create inserts p and fills in its id and creation audit fields.
func (r *ProductRepo) Create(ctx context.Context, actor Actor, p *model.Product) error {
	p.ID = uuid.NewString()
	p.CreatedAt = nowUTC()
	p.CreatedByID = actor.AuditID()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO common_products (id, name, description, price, unit_in_stock, thumbnail, is_discontinued,
		 category_id, supplier_id, is_active, is_deleted, created_at, created_by_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		p.ID, p.Name, p.Description, p.Price, p.UnitInStock, p.Thumbnail, p.IsDiscontinued,
		p.CategoryID, p.SupplierID, p.IsActive, p.CreatedAt, p.CreatedByID)
	return err
}

// Update rewrites the mutable columns of a non-deleted product.
func (r *ProductRepo) Update(ctx context.Context, actor Actor, p *model.Product) error {
	now := nowUTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE common_products SET name = ?, description = ?, price = ?, unit_in_stock = ?, thumbnail = ?,
		 is_discontinued = ?, category_id = ?, supplier_id = ?, is_active = ?, updated_at = ?, updated_by_id = ?
		 WHERE id = ? AND is_deleted = 0`,
		p.Name, p.Description, p.Price, p.UnitInStock, p.Thumbnail, p.IsDiscontinued,
		p.CategoryID, p.SupplierID, p.IsActive, now, actor.AuditID(), p.ID)
	if err := mustAffect(res, err, ErrNotFound); err != nil {
		return err
	}
	p.UpdatedAt = &now
	p.UpdatedByID = actor.AuditID()
	return nil
}

func (r *ProductRepo) SoftDelete(ctx context.Context, actor Actor, id string) error {
	return softDelete(ctx, r.db, "common_products", id, actor)
}

func (r *ProductRepo) GetByID(ctx context.Context, id string) (*model.Product, error) {
	return scanProduct(r.db.QueryRowContext(ctx,
		productSelect+auditColumns("p")+productFrom+" WHERE p.id = ? AND p.is_deleted = 0 LIMIT 1", id))
}

// GetByIDTx reads a non-deleted product inside tx.
func (r *ProductRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.Product, error) {
	return scanProduct(tx.QueryRowContext(ctx,
		productSelect+auditColumns("p")+productFrom+" WHERE p.id = ? AND p.is_deleted = 0 LIMIT 1", id))
}

// DecrementStockTx removes qty units from stock. The update only matches
// while enough stock remains, so a concurrent order that drained the
// product between read and write yields ErrInsufficientStock instead of
// a negative count.
func (r *ProductRepo) DecrementStockTx(ctx context.Context, tx *sql.Tx, actor Actor, id string, qty int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE common_products SET unit_in_stock = unit_in_stock - ?, updated_at = ?, updated_by_id = ?
		 WHERE id = ? AND is_deleted = 0 AND unit_in_stock >= ?`,
		qty, nowUTC(), actor.AuditID(), id, qty)
	return mustAffect(res, err, ErrInsufficientStock)
}

// IncrementStockTx puts qty units back into stock.
func (r *ProductRepo) IncrementStockTx(ctx context.Context, tx *sql.Tx, actor Actor, id string, qty int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE common_products SET unit_in_stock = unit_in_stock + ?, updated_at = ?, updated_by_id = ?
		 WHERE id = ? AND is_deleted = 0`,
		qty, nowUTC(), actor.AuditID(), id)
	return mustAffect(res, err, ErrNotFound)
}

// ClearCategoryTx detaches every product from a deleted category.
func (r *ProductRepo) ClearCategoryTx(ctx context.Context, tx *sql.Tx, actor Actor, categoryID string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE common_products SET category_id = NULL, updated_at = ?, updated_by_id = ? WHERE category_id = ?",
		nowUTC(), actor.AuditID(), categoryID)
	return err
}

// ClearSupplierTx detaches every product from a deleted supplier.
func (r *ProductRepo) ClearSupplierTx(ctx context.Context, tx *sql.Tx, actor Actor, supplierID string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE common_products SET supplier_id = NULL, updated_at = ?, updated_by_id = ? WHERE supplier_id = ?",
		nowUTC(), actor.AuditID(), supplierID)
	return err
}

func (r *ProductRepo) List(ctx context.Context, includeInactive bool) ([]model.Product, error) {
	w := productSearch.base(SearchParams{IncludeInactive: includeInactive})
	rows, err := r.db.QueryContext(ctx,
		productSelect+auditColumns("p")+productFrom+w.String()+" ORDER BY p.name ASC", w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProducts(rows)
}

// Search applies the keyword over name and description plus the optional
// category, supplier, price range and discontinued filters.
func (r *ProductRepo) Search(ctx context.Context, q ProductSearchParams) (Page[model.Product], error) {
	w := productSearch.base(q.SearchParams)
	if q.CategoryID != nil {
		w.add("p.category_id = ?", *q.CategoryID)
	}
	if q.SupplierID != nil {
		w.add("p.supplier_id = ?", *q.SupplierID)
	}
	if q.MinPrice != nil {
		w.add("p.price >= ?", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		w.add("p.price <= ?", *q.MaxPrice)
	}
	if q.IsDiscontinued != nil {
		w.add("p.is_discontinued = ?", *q.IsDiscontinued)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM common_products p"+w.String(), w.args...).Scan(&total); err != nil {
		return Page[model.Product]{}, err
	}
	lim, args := limit(q.SearchParams, w.args)
	rows, err := r.db.QueryContext(ctx,
		productSelect+auditColumns("p")+productFrom+w.String()+productSearch.orderBy(q.SearchParams)+lim, args...)
	if err != nil {
		return Page[model.Product]{}, err
	}
	defer rows.Close()
	items, err := collectProducts(rows)
	if err != nil {
		return Page[model.Product]{}, err
	}
	return NewPage(items, total, q.SearchParams), nil
}

func collectProducts(rows *sql.Rows) ([]model.Product, error) {
	out := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
