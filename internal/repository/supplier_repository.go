package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/storefront-api/internal/model"
)

type SupplierRepo struct{ db *sql.DB }

func NewSupplierRepo(db *sql.DB) *SupplierRepo { return &SupplierRepo{db: db} }

var supplierSearch = searchSpec{
	alias:       "s",
	keywordCols: []string{"s.name", "s.address", "s.phone_number"},
	sortCols: map[string]string{
		"name":        "s.name",
		"address":     "s.address",
		"phonenumber": "s.phone_number",
		"createdat":   "s.created_at",
		"updatedat":   "s.updated_at",
	},
	defaultSort: "s.name",
	hasActive:   true,
}

const supplierSelect = "SELECT s.id, s.name, s.address, s.phone_number, s.is_active, "

func scanSupplier(sc scanner) (*model.Supplier, error) {
	var s model.Supplier
	dest := []any{&s.ID, &s.Name, &s.Address, &s.PhoneNumber, &s.IsActive}
	if err := sc.Scan(append(dest, auditDest(&s.Audit)...)...); err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// Create inserts s and fills in its id and creation audit fields.
func (r *SupplierRepo) Create(ctx context.Context, actor Actor, s *model.Supplier) error {
	s.ID = uuid.NewString()
	s.CreatedAt = nowUTC()
	s.CreatedByID = actor.AuditID()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO common_suppliers (id, name, address, phone_number, is_active, is_deleted, created_at, created_by_id)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		s.ID, s.Name, s.Address, s.PhoneNumber, s.IsActive, s.CreatedAt, s.CreatedByID)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// Update rewrites the mutable columns of a non-deleted supplier.
func (r *SupplierRepo) Update(ctx context.Context, actor Actor, s *model.Supplier) error {
	now := nowUTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE common_suppliers SET name = ?, address = ?, phone_number = ?, is_active = ?, updated_at = ?, updated_by_id = ?
		 WHERE id = ? AND is_deleted = 0`,
		s.Name, s.Address, s.PhoneNumber, s.IsActive, now, actor.AuditID(), s.ID)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err := mustAffect(res, err, ErrNotFound); err != nil {
		return err
	}
	s.UpdatedAt = &now
	s.UpdatedByID = actor.AuditID()
	return nil
}

// SoftDeleteTx flags the supplier deleted inside tx.
func (r *SupplierRepo) SoftDeleteTx(ctx context.Context, tx *sql.Tx, actor Actor, id string) error {
	return softDelete(ctx, tx, "common_suppliers", id, actor)
}

func (r *SupplierRepo) GetByID(ctx context.Context, id string) (*model.Supplier, error) {
	return scanSupplier(r.db.QueryRowContext(ctx,
		supplierSelect+auditColumns("s")+" FROM common_suppliers s WHERE s.id = ? AND s.is_deleted = 0 LIMIT 1", id))
}

// NameTaken reports whether another non-deleted supplier already uses name.
// excludeID is ignored when empty.
func (r *SupplierRepo) NameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM common_suppliers WHERE LOWER(name) = ? AND id <> ? AND is_deleted = 0",
		strings.ToLower(strings.TrimSpace(name)), excludeID).Scan(&n)
	return n > 0, err
}

// List returns every non-deleted supplier ordered by name.
func (r *SupplierRepo) List(ctx context.Context, includeInactive bool) ([]model.Supplier, error) {
	w := supplierSearch.base(SearchParams{IncludeInactive: includeInactive})
	rows, err := r.db.QueryContext(ctx,
		supplierSelect+auditColumns("s")+" FROM common_suppliers s"+w.String()+" ORDER BY s.name ASC", w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSuppliers(rows)
}

// Search filters by keyword over name, address and phone number.
func (r *SupplierRepo) Search(ctx context.Context, p SearchParams) (Page[model.Supplier], error) {
	w := supplierSearch.base(p)
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM common_suppliers s"+w.String(), w.args...).Scan(&total); err != nil {
		return Page[model.Supplier]{}, err
	}
	lim, args := limit(p, w.args)
	rows, err := r.db.QueryContext(ctx,
		supplierSelect+auditColumns("s")+" FROM common_suppliers s"+w.String()+supplierSearch.orderBy(p)+lim, args...)
	if err != nil {
		return Page[model.Supplier]{}, err
	}
	defer rows.Close()
	items, err := collectSuppliers(rows)
	if err != nil {
		return Page[model.Supplier]{}, err
	}
	return NewPage(items, total, p), nil
}

func collectSuppliers(rows *sql.Rows) ([]model.Supplier, error) {
	out := []model.Supplier{}
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
