package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
)

// ListCategories returns the categories of a list ordered by name.
func (s *SQLiteStore) ListCategories(ctx context.Context, listID string) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, list_id, name, created_by, created_at FROM categories WHERE list_id = ? ORDER BY name",
		listID,
	)
	if err != nil {
		return nil, models.Unavailable("list categories", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, models.Unavailable("scan category", err)
		}
		categories = append(categories, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("iterate categories", err)
	}
	return categories, nil
}

// CreateCategory inserts a category name for a list.
func (s *SQLiteStore) CreateCategory(ctx context.Context, category *models.Category) error {
	if category.ID == "" {
		category.ID = uuid.New().String()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = now()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO categories (id, list_id, name, created_by, created_at) VALUES (?, ?, ?, ?, ?)",
		category.ID, category.ListID, category.Name, category.CreatedBy, toMillis(category.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: category %q already exists", models.ErrConflict, category.Name)
	}
	if err != nil {
		return models.Unavailable("insert category", err)
	}
	return nil
}

// GetCategory retrieves a category by ID.
func (s *SQLiteStore) GetCategory(ctx context.Context, categoryID string) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, list_id, name, created_by, created_at FROM categories WHERE id = ?",
		categoryID,
	)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("category")
	}
	if err != nil {
		return nil, models.Unavailable("get category", err)
	}
	return c, nil
}

// DeleteCategory removes a category. Expenses keep their category label.
func (s *SQLiteStore) DeleteCategory(ctx context.Context, categoryID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", categoryID)
	if err != nil {
		return models.Unavailable("delete category", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.NotFound("category")
	}
	return nil
}

func scanCategory(row scanner) (*models.Category, error) {
	c := &models.Category{}
	var createdAt int64
	if err := row.Scan(&c.ID, &c.ListID, &c.Name, &c.CreatedBy, &createdAt); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}
