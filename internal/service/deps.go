// Package service implements the use cases behind the HTTP handlers: one
// method per operation, orchestrating repositories, transactions and the
// token lifecycle. Dependencies are declared here as narrow interfaces and
// satisfied by the repository types.
package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/apperr"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
)

// TxBeginner starts transactions; *sql.DB satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Taken(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error)
	CreateTx(ctx context.Context, tx *sql.Tx, actor repository.Actor, u *model.User) error
	AssignRoleTx(ctx context.Context, tx *sql.Tx, userID, roleName string) error
	EnsureRole(ctx context.Context, actor repository.Actor, name, description string) error
}

type TokenStore interface {
	Store(ctx context.Context, q repository.Querier, actor repository.Actor, userID, hash string, expires time.Time) (*model.RefreshToken, error)
	GetByHash(ctx context.Context, hash string) (*model.RefreshToken, error)
	GetByHashForUpdateTx(ctx context.Context, tx *sql.Tx, hash string) (*model.RefreshToken, error)
	MarkRotated(ctx context.Context, q repository.Querier, actor repository.Actor, id, replacedBy, reason string) error
	Revoke(ctx context.Context, actor repository.Actor, id, reason string) error
	RevokeAllForUser(ctx context.Context, q repository.Querier, actor repository.Actor, userID, reason string) (int64, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type CategoryStore interface {
	Create(ctx context.Context, actor repository.Actor, c *model.Category) error
	Update(ctx context.Context, actor repository.Actor, c *model.Category) error
	SoftDeleteTx(ctx context.Context, tx *sql.Tx, actor repository.Actor, id string) error
	GetByID(ctx context.Context, id string) (*model.Category, error)
	NameTaken(ctx context.Context, name, excludeID string) (bool, error)
	List(ctx context.Context, includeInactive bool) ([]model.Category, error)
	Search(ctx context.Context, p repository.SearchParams) (repository.Page[model.Category], error)
}

type SupplierStore interface {
	Create(ctx context.Context, actor repository.Actor, s *model.Supplier) error
	Update(ctx context.Context, actor repository.Actor, s *model.Supplier) error
	SoftDeleteTx(ctx context.Context, tx *sql.Tx, actor repository.Actor, id string) error
	GetByID(ctx context.Context, id string) (*model.Supplier, error)
	NameTaken(ctx context.Context, name, excludeID string) (bool, error)
	List(ctx context.Context, includeInactive bool) ([]model.Supplier, error)
	Search(ctx context.Context, p repository.SearchParams) (repository.Page[model.Supplier], error)
}

// StockStore is the slice of the product repository the order workflow uses.
type StockStore interface {
	GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.Product, error)
	DecrementStockTx(ctx context.Context, tx *sql.Tx, actor repository.Actor, id string, qty int) error
	IncrementStockTx(ctx context.Context, tx *sql.Tx, actor repository.Actor, id string, qty int) error
}

type ProductStore interface {
	StockStore
	Create(ctx context.Context, actor repository.Actor, p *model.Product) error
	Update(ctx context.Context, actor repository.Actor, p *model.Product) error
	SoftDelete(ctx context.Context, actor repository.Actor, id string) error
	GetByID(ctx context.Context, id string) (*model.Product, error)
	ClearCategoryTx(ctx context.Context, tx *sql.Tx, actor repository.Actor, categoryID string) error
	ClearSupplierTx(ctx context.Context, tx *sql.Tx, actor repository.Actor, supplierID string) error
	List(ctx context.Context, includeInactive bool) ([]model.Product, error)
	Search(ctx context.Context, q repository.ProductSearchParams) (repository.Page[model.Product], error)
}

type OrderStore interface {
	CreateTx(ctx context.Context, tx *sql.Tx, actor repository.Actor, o *model.Order) error
	AddDetailTx(ctx context.Context, tx *sql.Tx, d model.OrderDetail) error
	GetByIDTx(ctx context.Context, tx *sql.Tx, id string) (*model.Order, error)
	GetDetailed(ctx context.Context, id string) (*model.Order, error)
	UpdateShipping(ctx context.Context, actor repository.Actor, o *model.Order) error
	DeleteTx(ctx context.Context, tx *sql.Tx, id string) error
	List(ctx context.Context, userID *string) ([]model.Order, error)
	Search(ctx context.Context, q repository.OrderSearchParams) (repository.Page[model.Order], error)
}

// inTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise. The error from fn is returned unchanged.
func inTx(ctx context.Context, db TxBeginner, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Internal(err, "begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Internal(err, "commit transaction")
	}
	committed = true
	return nil
}

// storeErr translates repository sentinels into typed errors. what names
// the entity for not-found messages.
func storeErr(err error, what string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("%s not found", what)
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Conflict("%s already exists", what)
	case errors.Is(err, repository.ErrNoRowsAffected):
		return apperr.Persistence("%s was not modified", what)
	}
	return apperr.Internal(err, "storage failure")
}

func nopIfNil(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
