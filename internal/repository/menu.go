package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusbite/campusbite-api/internal/domain/menu"
)

const (
	getFoodItemsByIDsSQL = `SELECT id, name, price, category, is_available, is_out_of_stock
		FROM food_items WHERE id = ANY($1)`

	upsertFoodItemSQL = `INSERT INTO food_items (id, name, price, category, is_available, is_out_of_stock)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			is_available = EXCLUDED.is_available,
			is_out_of_stock = EXCLUDED.is_out_of_stock`
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository implements menu.Repository backed by PostgreSQL.
type MenuRepository struct {
	pool *pgxpool.Pool
}

// NewMenuRepository returns a MenuRepository that uses the given pool.
func NewMenuRepository(pool *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

// GetByIDs returns food items matching any of the given IDs. Unknown IDs are
// omitted from the result.
func (r *MenuRepository) GetByIDs(ctx context.Context, ids []string) ([]menu.FoodItem, error) {
	rows, err := r.pool.Query(ctx, getFoodItemsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get food items by ids")
	}
	return pgx.CollectRows(rows, scanFoodItem)
}

// Upsert inserts or replaces catalog entries in one batch.
func (r *MenuRepository) Upsert(ctx context.Context, items []menu.FoodItem) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(upsertFoodItemSQL, it.ID, it.Name, it.Price, it.Category, it.IsAvailable, it.IsOutOfStock)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "upsert food items")
	}
	return nil
}

func scanFoodItem(row pgx.CollectableRow) (menu.FoodItem, error) {
	var f menu.FoodItem
	err := row.Scan(&f.ID, &f.Name, &f.Price, &f.Category, &f.IsAvailable, &f.IsOutOfStock)
	return f, err
}
