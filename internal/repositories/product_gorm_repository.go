package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"products/internal/database"
	"products/internal/models"
)

var _ ProductRepository = (*GORMProductRepository)(nil)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

func (r *GORMProductRepository) active(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Product{}).Where("is_active = ?", true)
}

// Create inserts a new product, generating its ID when empty.
func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return errors.Wrap(err, "failed to create product")
	}
	return nil
}

// GetByID retrieves a single active product.
func (r *GORMProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.active(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(models.ErrNotFound, "product with ID %s", id)
		}
		return nil, errors.Wrapf(err, "failed to get product by ID %s", id)
	}
	return &product, nil
}

// List returns one page of active products matching the filter, newest
// first, together with the number of matches before pagination.
func (r *GORMProductRepository) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int64, error) {
	filter = filter.Normalize()
	// A fresh session so Count and Find each start from the same predicates.
	query := applyFilter(r.active(ctx), filter).Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "failed to count products")
	}

	products := make([]models.Product, 0, filter.Limit)
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(filter.Offset()).
		Limit(filter.Limit).
		Find(&products).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list products")
	}
	return products, total, nil
}

func applyFilter(query *gorm.DB, filter models.ProductFilter) *gorm.DB {
	if filter.Search != "" {
		fold := "LOWER"
		if query.Dialector.Name() == "sqlite" {
			fold = database.CaseFoldFunc
		}
		pattern := "%" + escapeLike(strings.ToLower(filter.Search)) + "%"
		query = query.Where(
			fmt.Sprintf(`(%[1]s(name) LIKE ? ESCAPE '\' OR %[1]s(description) LIKE ? ESCAPE '\')`, fold),
			pattern, pattern,
		)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.MinPrice != nil {
		query = query.Where("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		query = query.Where("price <= ?", *filter.MaxPrice)
	}
	if filter.SellerID != "" {
		query = query.Where("seller_id = ?", filter.SellerID)
	}
	return query
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Update merges the non-nil fields of changes into an active product.
func (r *GORMProductRepository) Update(ctx context.Context, id string, changes models.ProductChanges, at time.Time) (*models.Product, error) {
	values := map[string]interface{}{"updated_at": at}
	if changes.Name != nil {
		values["name"] = *changes.Name
	}
	if changes.Description != nil {
		values["description"] = *changes.Description
	}
	if changes.Price != nil {
		values["price"] = *changes.Price
	}
	if changes.Stock != nil {
		values["stock"] = *changes.Stock
	}
	if changes.Category != nil {
		values["category"] = *changes.Category
	}
	if changes.ImageURL != nil {
		values["image_url"] = *changes.ImageURL
	}

	res := r.active(ctx).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "failed to update product %s", id)
	}
	if res.RowsAffected == 0 {
		return nil, errors.Wrapf(models.ErrNotFound, "update product with ID %s", id)
	}
	return r.GetByID(ctx, id)
}

// Deactivate soft-deletes an active product.
func (r *GORMProductRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	res := r.active(ctx).Where("id = ?", id).Updates(map[string]interface{}{
		"is_active":  false,
		"updated_at": at,
	})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "failed to delete product %s", id)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(models.ErrNotFound, "delete product with ID %s", id)
	}
	return nil
}

// AdjustStock applies delta with a single conditional UPDATE so concurrent
// adjustments of the same product cannot overwrite each other.
func (r *GORMProductRepository) AdjustStock(ctx context.Context, id string, delta int, at time.Time) (*models.Product, error) {
	if delta < -models.MaxStock || delta > models.MaxStock {
		return nil, errors.Wrapf(models.ErrInvalidStock, "delta %d out of range for product %s", delta, id)
	}
	res := r.active(ctx).
		Where("id = ? AND stock + ? BETWEEN 0 AND ?", id, delta, models.MaxStock).
		Updates(map[string]interface{}{
			"stock":      gorm.Expr("stock + ?", delta),
			"updated_at": at,
		})
	if res.Error != nil {
		return nil, errors.Wrapf(res.Error, "failed to adjust stock of product %s", id)
	}
	if res.RowsAffected == 0 {
		// Either the product is gone or the guard rejected the delta.
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(models.ErrInvalidStock, "product %s", id)
	}
	return r.GetByID(ctx, id)
}
