package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/storefront-api/internal/model"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so the same statement
// can run standalone or inside a caller's transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// nowUTC is swapped in tests that need a fixed clock.
var nowUTC = func() time.Time { return time.Now().UTC().Truncate(time.Second) }

// auditColumns lists the audit columns in the order auditDest scans them.
func auditColumns(alias string) string {
	p := alias + "."
	return p + "is_deleted, " + p + "created_at, " + p + "created_by_id, " + p + "updated_at, " +
		p + "updated_by_id, " + p + "deleted_at, " + p + "deleted_by_id"
}

func auditDest(a *model.Audit) []any {
	return []any{&a.IsDeleted, &a.CreatedAt, &a.CreatedByID, &a.UpdatedAt, &a.UpdatedByID, &a.DeletedAt, &a.DeletedByID}
}

// notFound maps sql.ErrNoRows to ErrNotFound and passes other errors through.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// mustAffect turns a zero-row write into err.
func mustAffect(res sql.Result, err error, none error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
	}
	return nil
}

// softDelete flags a master-data row as deleted. Already-deleted rows are
// reported as ErrNotFound.
func softDelete(ctx context.Context, q Querier, table, id string, actor Actor) error {
	now := nowUTC()
	res, err := q.ExecContext(ctx,
		"UPDATE "+table+" SET is_deleted = 1, deleted_at = ?, deleted_by_id = ?, updated_at = ?, updated_by_id = ? WHERE id = ? AND is_deleted = 0",
		now, actor.AuditID(), now, actor.AuditID(), id)
	return mustAffect(res, err, ErrNotFound)
}
