package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/utils"
)

var (
	errDefaultCategory = utils.Forbidden("Default categories cannot be modified")
	errCategoryInUse   = utils.Conflict("Category type cannot change while transactions or budgets use it")
)

type CategoryStore struct {
	db *sql.DB
}

func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

const categoryColumns = `id, user_id, name, type, COALESCE(icon, ''), COALESCE(color, ''),
	user_id IS NULL, created_at, updated_at`

func scanCategory(row interface{ Scan(...interface{}) error }) (models.Category, error) {
	var c models.Category
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &c.Icon, &c.Color, &c.IsDefault, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// List returns the user's categories plus the shared defaults, optionally
// filtered by type.
func (s *CategoryStore) List(ctx context.Context, userID, categoryType string) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE (user_id = $1 OR user_id IS NULL) AND ($2::text = '' OR type = $2::text)
		ORDER BY user_id NULLS FIRST, type, name`, userID, categoryType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Get returns a category visible to the user (own or default).
func (s *CategoryStore) Get(ctx context.Context, userID, id string) (models.Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE id = $1 AND (user_id = $2 OR user_id IS NULL)`, id, userID))
	return c, utils.FromDBError(err, "Category not found")
}

func (s *CategoryStore) Create(ctx context.Context, userID string, req models.CategoryRequest) (models.Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx, `
		INSERT INTO categories (user_id, name, type, icon, color)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		RETURNING `+categoryColumns,
		userID, req.Name, req.Type, req.Icon, req.Color))
	if err != nil {
		return models.Category{}, conflictAs(utils.FromDBError(err, "Category not found"),
			"A category with this name and type already exists")
	}
	return c, nil
}

// Update rewrites an owned category. The type only changes when no
// transaction or budget references the category, so stored transactions keep
// matching their category type and budgets stay on expense categories.
func (s *CategoryStore) Update(ctx context.Context, userID, id string, req models.CategoryRequest) (models.Category, error) {
	current, err := s.ensureOwned(ctx, userID, id)
	if err != nil {
		return models.Category{}, err
	}

	c, err := scanCategory(s.db.QueryRowContext(ctx, `
		UPDATE categories
		SET name = $3, type = $4, icon = NULLIF($5, ''), color = NULLIF($6, ''), updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		  AND (type = $4 OR NOT (
		    EXISTS (SELECT 1 FROM transactions WHERE category_id = $1) OR
		    EXISTS (SELECT 1 FROM budgets WHERE category_id = $1)))
		RETURNING `+categoryColumns,
		id, userID, req.Name, req.Type, req.Icon, req.Color))
	if errors.Is(err, sql.ErrNoRows) && current.Type != req.Type {
		return models.Category{}, errCategoryInUse
	}
	if err != nil {
		return models.Category{}, conflictAs(utils.FromDBError(err, "Category not found"),
			"A category with this name and type already exists")
	}
	return c, nil
}

func (s *CategoryStore) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.ensureOwned(ctx, userID, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1 AND user_id = $2`, id, userID)
	return utils.FromDBError(err, "Category not found")
}

func (s *CategoryStore) ensureOwned(ctx context.Context, userID, id string) (models.Category, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return models.Category{}, err
	}
	if c.IsDefault {
		return models.Category{}, errDefaultCategory
	}
	return c, nil
}
