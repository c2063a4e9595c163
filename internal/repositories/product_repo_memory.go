package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"products/internal/models"
)

var _ ProductRepository = (*InMemoryProductRepository)(nil)

// InMemoryProductRepository is an in-memory implementation of ProductRepository.
// It backs the "memory" database driver and keeps the same semantics as the
// GORM repository.
type InMemoryProductRepository struct {
	products map[string]models.Product
	mu       sync.RWMutex
}

// NewInMemoryProductRepository creates a new instance of InMemoryProductRepository.
func NewInMemoryProductRepository() *InMemoryProductRepository {
	return &InMemoryProductRepository{
		products: make(map[string]models.Product),
	}
}

// Create adds a new product.
func (r *InMemoryProductRepository) Create(_ context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if _, ok := r.products[product.ID]; ok {
		return errors.Errorf("product with ID %s already exists", product.ID)
	}
	r.products[product.ID] = *product
	return nil
}

// GetByID returns an active product by its ID.
func (r *InMemoryProductRepository) GetByID(_ context.Context, id string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, err := r.activeLocked(id)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *InMemoryProductRepository) activeLocked(id string) (models.Product, error) {
	product, ok := r.products[id]
	if !ok || !product.IsActive {
		return models.Product{}, errors.Wrapf(models.ErrNotFound, "product with ID %s", id)
	}
	return product, nil
}

// List returns a page of active products matching the filter, newest first.
func (r *InMemoryProductRepository) List(_ context.Context, filter models.ProductFilter) ([]models.Product, int64, error) {
	filter = filter.Normalize()

	r.mu.RLock()
	matched := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		if matches(p, filter) {
			matched = append(matched, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	start := filter.Offset()
	if start >= len(matched) {
		return []models.Product{}, total, nil
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func matches(p models.Product, f models.ProductFilter) bool {
	if !p.IsActive {
		return false
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Name), term) &&
			!strings.Contains(strings.ToLower(p.Description), term) {
			return false
		}
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.SellerID != "" && p.SellerID != f.SellerID {
		return false
	}
	return true
}

// Update merges the non-nil fields of changes into an active product.
func (r *InMemoryProductRepository) Update(_ context.Context, id string, changes models.ProductChanges, at time.Time) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, err := r.activeLocked(id)
	if err != nil {
		return nil, err
	}
	if changes.Name != nil {
		product.Name = *changes.Name
	}
	if changes.Description != nil {
		product.Description = *changes.Description
	}
	if changes.Price != nil {
		product.Price = *changes.Price
	}
	if changes.Stock != nil {
		product.Stock = *changes.Stock
	}
	if changes.Category != nil {
		product.Category = *changes.Category
	}
	if changes.ImageURL != nil {
		url := *changes.ImageURL
		product.ImageURL = &url
	}
	product.UpdatedAt = at
	r.products[id] = product
	return &product, nil
}

// Deactivate soft-deletes an active product.
func (r *InMemoryProductRepository) Deactivate(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, err := r.activeLocked(id)
	if err != nil {
		return err
	}
	product.IsActive = false
	product.UpdatedAt = at
	r.products[id] = product
	return nil
}

// AdjustStock applies delta under the write lock.
func (r *InMemoryProductRepository) AdjustStock(_ context.Context, id string, delta int, at time.Time) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, err := r.activeLocked(id)
	if err != nil {
		return nil, err
	}
	if delta < -models.MaxStock || delta > models.MaxStock {
		return nil, errors.Wrapf(models.ErrInvalidStock, "delta %d out of range for product %s", delta, id)
	}
	if next := product.Stock + delta; next < 0 || next > models.MaxStock {
		return nil, errors.Wrapf(models.ErrInvalidStock, "product %s", id)
	}
	product.Stock += delta
	product.UpdatedAt = at
	r.products[id] = product
	return &product, nil
}
