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

// CategoryInput is the writable part of a category.
type CategoryInput struct {
	Name        string
	Description *string
	IsActive    *bool
}

type CategoryService struct {
	db         TxBeginner
	categories CategoryStore
	products   ProductStore
	log        *zap.Logger
}

func NewCategoryService(db TxBeginner, categories CategoryStore, products ProductStore, log *zap.Logger) *CategoryService {
	return &CategoryService{db: db, categories: categories, products: products, log: nopIfNil(log)}
}

func (s *CategoryService) Create(ctx context.Context, actor repository.Actor, in CategoryInput) (*model.Category, error) {
	name := strings.TrimSpace(in.Name)
	if err := s.ensureNameFree(ctx, name, ""); err != nil {
		return nil, err
	}
	c := &model.Category{Name: name, Description: in.Description}
	c.IsActive = in.IsActive == nil || *in.IsActive
	if err := s.categories.Create(ctx, actor, c); err != nil {
		return nil, storeErr(err, "category")
	}
	s.log.Info("category created", zap.String("category_id", c.ID), zap.String("actor", actor.ID))
	return c, nil
}

func (s *CategoryService) Update(ctx context.Context, actor repository.Actor, id string, in CategoryInput) (*model.Category, error) {
	c, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "category")
	}
	name := strings.TrimSpace(in.Name)
	if !strings.EqualFold(name, c.Name) {
		if err := s.ensureNameFree(ctx, name, id); err != nil {
			return nil, err
		}
	}
	c.Name = name
	c.Description = in.Description
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}
	if err := s.categories.Update(ctx, actor, c); err != nil {
		return nil, storeErr(err, "category")
	}
	return c, nil
}

// Delete soft-deletes the category and detaches its products in one
// transaction.
func (s *CategoryService) Delete(ctx context.Context, actor repository.Actor, id string) error {
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.categories.SoftDeleteTx(ctx, tx, actor, id); err != nil {
			return err
		}
		return s.products.ClearCategoryTx(ctx, tx, actor, id)
	})
	if err != nil {
		return storeErr(err, "category")
	}
	s.log.Info("category deleted", zap.String("category_id", id), zap.String("actor", actor.ID))
	return nil
}

func (s *CategoryService) GetByID(ctx context.Context, id string) (*model.Category, error) {
	c, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "category")
	}
	return c, nil
}

func (s *CategoryService) List(ctx context.Context, includeInactive bool) ([]model.Category, error) {
	items, err := s.categories.List(ctx, includeInactive)
	if err != nil {
		return nil, storeErr(err, "category")
	}
	return items, nil
}

func (s *CategoryService) Search(ctx context.Context, p repository.SearchParams) (repository.Page[model.Category], error) {
	page, err := s.categories.Search(ctx, p.Normalize())
	if err != nil {
		return page, storeErr(err, "category")
	}
	return page, nil
}

func (s *CategoryService) ensureNameFree(ctx context.Context, name, excludeID string) error {
	taken, err := s.categories.NameTaken(ctx, name, excludeID)
	if err != nil {
		return storeErr(err, "category")
	}
	if taken {
		return apperr.Conflict("category %q already exists", name)
	}
	return nil
}
