package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/storefront-api/internal/model"
)

type CategoryRepo struct{ db *sql.DB }

func NewCategoryRepo(db *sql.DB) *CategoryRepo { return &CategoryRepo{db: db} }

var categorySearch = searchSpec{
	alias:       "c",
	keywordCols: []string{"c.name", "c.description"},
	sortCols: map[string]string{
		"name":      "c.name",
		"createdat": "c.created_at",
		"updatedat": "c.updated_at",
	},
	defaultSort: "c.name",
	hasActive:   true,
}

const categorySelect = "SELECT c.id, c.name, c.description, c.is_active, "

func scanCategory(s scanner) (*model.Category, error) {
	var c model.Category
	dest := []any{&c.ID, &c.Name, &c.Description, &c.IsActive}
	if err := s.Scan(append(dest, auditDest(&c.Audit)...)...); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// Create inserts c and fills in its id and creation audit fields.
func (r *CategoryRepo) Create(ctx context.Context, actor Actor, c *model.Category) error {
	c.ID = uuid.NewString()
	c.CreatedAt = nowUTC()
	c.CreatedByID = actor.AuditID()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO common_categories (id, name, description, is_active, is_deleted, created_at, created_by_id)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		c.ID, c.Name, c.Description, c.IsActive, c.CreatedAt, c.CreatedByID)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// Update rewrites the mutable columns of a non-deleted category.
func (r *CategoryRepo) Update(ctx context.Context, actor Actor, c *model.Category) error {
	now := nowUTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE common_categories SET name = ?, description = ?, is_active = ?, updated_at = ?, updated_by_id = ?
		 WHERE id = ? AND is_deleted = 0`,
		c.Name, c.Description, c.IsActive, now, actor.AuditID(), c.ID)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err := mustAffect(res, err, ErrNotFound); err != nil {
		return err
	}
	c.UpdatedAt = &now
	c.UpdatedByID = actor.AuditID()
	return nil
}

// SoftDeleteTx flags the category deleted inside tx.
func (r *CategoryRepo) SoftDeleteTx(ctx context.Context, tx *sql.Tx, actor Actor, id string) error {
	return softDelete(ctx, tx, "common_categories", id, actor)
}

func (r *CategoryRepo) GetByID(ctx context.Context, id string) (*model.Category, error) {
	return scanCategory(r.db.QueryRowContext(ctx,
		categorySelect+auditColumns("c")+" FROM common_categories c WHERE c.id = ? AND c.is_deleted = 0 LIMIT 1", id))
}

// NameTaken reports whether another non-deleted category already uses name.
// excludeID is ignored when empty.
func (r *CategoryRepo) NameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM common_categories WHERE LOWER(name) = ? AND id <> ? AND is_deleted = 0",
		strings.ToLower(strings.TrimSpace(name)), excludeID).Scan(&n)
	return n > 0, err
}

// List returns every non-deleted category ordered by name.
func (r *CategoryRepo) List(ctx context.Context, includeInactive bool) ([]model.Category, error) {
	w := categorySearch.base(SearchParams{IncludeInactive: includeInactive})
	rows, err := r.db.QueryContext(ctx,
		categorySelect+auditColumns("c")+" FROM common_categories c"+w.String()+" ORDER BY c.name ASC", w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCategories(rows)
}

// Search filters by keyword over name and description.
func (r *CategoryRepo) Search(ctx context.Context, p SearchParams) (Page[model.Category], error) {
	w := categorySearch.base(p)
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM common_categories c"+w.String(), w.args...).Scan(&total); err != nil {
		return Page[model.Category]{}, err
	}
	lim, args := limit(p, w.args)
	rows, err := r.db.QueryContext(ctx,
		categorySelect+auditColumns("c")+" FROM common_categories c"+w.String()+categorySearch.orderBy(p)+lim, args...)
	if err != nil {
		return Page[model.Category]{}, err
	}
	defer rows.Close()
	items, err := collectCategories(rows)
	if err != nil {
		return Page[model.Category]{}, err
	}
	return NewPage(items, total, p), nil
}

func collectCategories(rows *sql.Rows) ([]model.Category, error) {
	out := []model.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
