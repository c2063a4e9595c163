package repositories

import (
	"context"
	"time"

	"products/internal/models"
)

// ProductRepository defines the interface for product data access.
// Every read and write is scoped to active products; a logically deleted
// product behaves exactly like a missing one and yields models.ErrNotFound.
type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id string) (*models.Product, error)
	List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int64, error)
	Update(ctx context.Context, id string, changes models.ProductChanges, at time.Time) (*models.Product, error)
	Deactivate(ctx context.Context, id string, at time.Time) error
	// AdjustStock adds delta to the stock in one atomic step. It returns
	// models.ErrInvalidStock, leaving the row untouched, when the result
	// would be negative.
	AdjustStock(ctx context.Context, id string, delta int, at time.Time) (*models.Product, error)
}
