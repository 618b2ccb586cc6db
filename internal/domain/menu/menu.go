package menu

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested food item does not exist.
var ErrNotFound = errors.New("food item not found")

// FoodItem is the subset of the catalog entry the order pipeline relies on.
// The catalog itself is owned by the menu administration service.
type FoodItem struct {
	ID           string
	Name         string
	Price        decimal.Decimal
	Category     string
	IsAvailable  bool
	IsOutOfStock bool
}

// Orderable reports whether the item can currently be added to an order.
func (f FoodItem) Orderable() bool {
	return f.IsAvailable && !f.IsOutOfStock
}

// Repository defines read operations for the food catalog.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) ([]FoodItem, error)
}
