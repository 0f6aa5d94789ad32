package service

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/apperr"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
)

// SupplierInput is the writable part of a supplier.
type SupplierInput struct {
	Name        string
	Address     *string
	PhoneNumber *string
	IsActive    *bool
}

type SupplierService struct {
	db        TxBeginner
	suppliers SupplierStore
	products  ProductStore
	log       *zap.Logger
}

func NewSupplierService(db TxBeginner, suppliers SupplierStore, products ProductStore, log *zap.Logger) *SupplierService {
	return &SupplierService{db: db, suppliers: suppliers, products: products, log: nopIfNil(log)}
}

func (s *SupplierService) Create(ctx context.Context, actor repository.Actor, in SupplierInput) (*model.Supplier, error) {
	name := strings.TrimSpace(in.Name)
	if err := s.ensureNameFree(ctx, name, ""); err != nil {
		return nil, err
	}
	sp := &model.Supplier{Name: name, Address: in.Address, PhoneNumber: in.PhoneNumber}
	sp.IsActive = in.IsActive == nil || *in.IsActive
	if err := s.suppliers.Create(ctx, actor, sp); err != nil {
		return nil, storeErr(err, "supplier")
	}
	s.log.Info("supplier created", zap.String("supplier_id", sp.ID), zap.String("actor", actor.ID))
	return sp, nil
}

func (s *SupplierService) Update(ctx context.Context, actor repository.Actor, id string, in SupplierInput) (*model.Supplier, error) {
	sp, err := s.suppliers.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "supplier")
	}
	name := strings.TrimSpace(in.Name)
	if !strings.EqualFold(name, sp.Name) {
		if err := s.ensureNameFree(ctx, name, id); err != nil {
			return nil, err
		}
	}
	sp.Name = name
	sp.Address = in.Address
	sp.PhoneNumber = in.PhoneNumber
	if in.IsActive != nil {
		sp.IsActive = *in.IsActive
	}
	if err := s.suppliers.Update(ctx, actor, sp); err != nil {
		return nil, storeErr(err, "supplier")
	}
	return sp, nil
}

// Delete soft-deletes the supplier and detaches its products in one
// transaction.
func (s *SupplierService) Delete(ctx context.Context, actor repository.Actor, id string) error {
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.suppliers.SoftDeleteTx(ctx, tx, actor, id); err != nil {
			return err
		}
		return s.products.ClearSupplierTx(ctx, tx, actor, id)
	})
	if err != nil {
		return storeErr(err, "supplier")
	}
	s.log.Info("supplier deleted", zap.String("supplier_id", id), zap.String("actor", actor.ID))
	return nil
}

func (s *SupplierService) GetByID(ctx context.Context, id string) (*model.Supplier, error) {
	sp, err := s.suppliers.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "supplier")
	}
	return sp, nil
}

func (s *SupplierService) List(ctx context.Context, includeInactive bool) ([]model.Supplier, error) {
	items, err := s.suppliers.List(ctx, includeInactive)
	if err != nil {
		return nil, storeErr(err, "supplier")
	}
	return items, nil
}

func (s *SupplierService) Search(ctx context.Context, p repository.SearchParams) (repository.Page[model.Supplier], error) {
	page, err := s.suppliers.Search(ctx, p.Normalize())
	if err != nil {
		return page, storeErr(err, "supplier")
	}
	return page, nil
}

func (s *SupplierService) ensureNameFree(ctx context.Context, name, excludeID string) error {
	taken, err := s.suppliers.NameTaken(ctx, name, excludeID)
	if err != nil {
		return storeErr(err, "supplier")
	}
	if taken {
		return apperr.Conflict("supplier %q already exists", name)
	}
	return nil
}
