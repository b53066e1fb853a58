package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-resto/internal/catalog"
)

const menuItemColumns = `id, category_id, name, description, price, badges, allergens,
	is_available, is_featured, preparation_mins, sort_order, created_at, updated_at`

func scanMenuItem(row pgx.Row) (catalog.MenuItem, error) {
	var m catalog.MenuItem
	err := row.Scan(
		&m.ID, &m.CategoryID, &m.Name, &m.Description, &m.Price, &m.Badges,
		&m.Allergens, &m.IsAvailable, &m.IsFeatured, &m.PreparationMins,
		&m.SortOrder, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

func collectMenuItems(rows pgx.Rows) ([]catalog.MenuItem, error) {
	defer rows.Close()
	var out []catalog.MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (q *Queries) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, name, description, is_active, sort_order
		FROM categories
		WHERE is_active
		ORDER BY sort_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.Category
	for rows.Next() {
		var c catalog.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const menuItemFilter = `
	($1 = '' OR name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')
	AND ($2::uuid IS NULL OR category_id = $2)
	AND ($3::boolean IS NULL OR is_featured = $3)`

func (q *Queries) CountMenuItems(ctx context.Context, arg catalog.ListParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx,
		`SELECT count(*) FROM menu_items WHERE `+menuItemFilter,
		arg.Query, arg.CategoryID, arg.Featured,
	).Scan(&n)
	return n, err
}

func (q *Queries) ListMenuItems(ctx context.Context, arg catalog.ListParams) ([]catalog.MenuItem, error) {
	offset := 0
	if arg.Page > 1 {
		offset = (arg.Page - 1) * arg.Limit
	}
	rows, err := q.db.Query(ctx, `
		SELECT `+menuItemColumns+`
		FROM menu_items
		WHERE `+menuItemFilter+`
		ORDER BY sort_order, name
		LIMIT $4 OFFSET $5`,
		arg.Query, arg.CategoryID, arg.Featured, arg.Limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return collectMenuItems(rows)
}

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (catalog.MenuItem, error) {
	row := q.db.QueryRow(ctx, `SELECT `+menuItemColumns+` FROM menu_items WHERE id = $1`, id)
	return scanMenuItem(row)
}

func (q *Queries) GetMenuItems(ctx context.Context, ids []uuid.UUID) ([]catalog.MenuItem, error) {
	rows, err := q.db.Query(ctx, `SELECT `+menuItemColumns+` FROM menu_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return collectMenuItems(rows)
}
