package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/apperr"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
)

// ProductInput is the writable part of a product.
type ProductInput struct {
	Name           string
	Description    *string
	Price          decimal.Decimal
	UnitInStock    int
	Thumbnail      *string
	IsDiscontinued bool
	CategoryID     *string
	SupplierID     *string
	IsActive       *bool
}

type ProductService struct {
	products   ProductStore
	categories CategoryStore
	suppliers  SupplierStore
	log        *zap.Logger
}

func NewProductService(products ProductStore, categories CategoryStore, suppliers SupplierStore, log *zap.Logger) *ProductService {
	return &ProductService{products: products, categories: categories, suppliers: suppliers, log: nopIfNil(log)}
}

// validate checks value ranges and that referenced category and supplier
// exist.
func (s *ProductService) validate(ctx context.Context, in *ProductInput) error {
	in.Name = strings.TrimSpace(in.Name)
	if !in.Price.IsPositive() {
		return apperr.Validation("price must be greater than 0").WithDetails(map[string]any{"price": in.Price.String()})
	}
	if in.UnitInStock < 0 {
		return apperr.Validation("unit_in_stock must not be negative").WithDetails(map[string]any{"unit_in_stock": in.UnitInStock})
	}
	if id := deref(in.CategoryID); id != "" {
		if _, err := s.categories.GetByID(ctx, id); err != nil {
			return storeErr(err, "category")
		}
	} else {
		in.CategoryID = nil
	}
	if id := deref(in.SupplierID); id != "" {
		if _, err := s.suppliers.GetByID(ctx, id); err != nil {
			return storeErr(err, "supplier")
		}
	} else {
		in.SupplierID = nil
	}
	return nil
}

func (s *ProductService) Create(ctx context.Context, actor repository.Actor, in ProductInput) (*model.Product, error) {
	if err := s.validate(ctx, &in); err != nil {
		return nil, err
	}
	p := &model.Product{}
	apply(p, in)
	p.IsActive = in.IsActive == nil || *in.IsActive
	if err := s.products.Create(ctx, actor, p); err != nil {
		return nil, storeErr(err, "product")
	}
	s.log.Info("product created", zap.String("product_id", p.ID), zap.String("actor", actor.ID))
	return s.GetByID(ctx, p.ID)
}

func (s *ProductService) Update(ctx context.Context, actor repository.Actor, id string, in ProductInput) (*model.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "product")
	}
	if err := s.validate(ctx, &in); err != nil {
		return nil, err
	}
	apply(p, in)
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if err := s.products.Update(ctx, actor, p); err != nil {
		return nil, storeErr(err, "product")
	}
	return s.GetByID(ctx, id)
}

func apply(p *model.Product, in ProductInput) {
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price
	p.UnitInStock = in.UnitInStock
	p.Thumbnail = in.Thumbnail
	p.IsDiscontinued = in.IsDiscontinued
	p.CategoryID = in.CategoryID
	p.SupplierID = in.SupplierID
}

func (s *ProductService) Delete(ctx context.Context, actor repository.Actor, id string) error {
	if err := s.products.SoftDelete(ctx, actor, id); err != nil {
		return storeErr(err, "product")
	}
	s.log.Info("product deleted", zap.String("product_id", id), zap.String("actor", actor.ID))
	return nil
}

func (s *ProductService) GetByID(ctx context.Context, id string) (*model.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "product")
	}
	return p, nil
}

func (s *ProductService) List(ctx context.Context, includeInactive bool) ([]model.Product, error) {
	items, err := s.products.List(ctx, includeInactive)
	if err != nil {
		return nil, storeErr(err, "product")
	}
	return items, nil
}

func (s *ProductService) Search(ctx context.Context, q repository.ProductSearchParams) (repository.Page[model.Product], error) {
	if q.MinPrice != nil && q.MaxPrice != nil && q.MinPrice.GreaterThan(*q.MaxPrice) {
		return repository.Page[model.Product]{}, apperr.Validation("min_price must not exceed max_price")
	}
	q.SearchParams = q.SearchParams.Normalize()
	page, err := s.products.Search(ctx, q)
	if err != nil {
		return page, storeErr(err, "product")
	}
	return page, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
