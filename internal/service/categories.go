package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/splitledger/internal/models"
)

// ListCategories returns the categories of a list.
func (s *LedgerService) ListCategories(ctx context.Context, actor, listID string) ([]models.Category, error) {
	if _, err := memberList(ctx, s.store, actor, listID); err != nil {
		return nil, err
	}
	return s.store.ListCategories(ctx, listID)
}

// CreateCategory adds a category name to a list.
func (s *LedgerService) CreateCategory(ctx context.Context, actor, listID, name string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", models.ErrInvalidInput)
	}

	unlock := s.listLocks.Lock(listID)
	defer unlock()

	if _, err := memberList(ctx, s.store, actor, listID); err != nil {
		return nil, err
	}
	category := &models.Category{ListID: listID, Name: name, CreatedBy: actor}
	if err := s.store.CreateCategory(ctx, category); err != nil {
		slog.Warn("CreateCategory failed", "list_id", listID, "name", name, "error", err)
		return nil, err
	}

	slog.Info("Category created", "category_id", category.ID, "list_id", listID)
	s.recordChange(ctx, listID, actor, models.ActionCategoryAdded, name)
	return category, nil
}

// DeleteCategory removes a category from its list.
func (s *LedgerService) DeleteCategory(ctx context.Context, actor, categoryID string) error {
	category, err := s.store.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}

	unlock := s.listLocks.Lock(category.ListID)
	defer unlock()

	if _, err := memberList(ctx, s.store, actor, category.ListID); err != nil {
		return err
	}
	if err := s.store.DeleteCategory(ctx, categoryID); err != nil {
		return err
	}

	slog.Info("Category deleted", "category_id", categoryID, "list_id", category.ListID)
	s.recordChange(ctx, category.ListID, actor, models.ActionCategoryRemoved, category.Name)
	return nil
}
