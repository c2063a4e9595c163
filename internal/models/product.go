package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices go over the wire as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Product represents a product listed by a seller in the marketplace.
// Deletion is logical: IsActive is cleared and the row is kept.
type Product struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name        string          `json:"name" gorm:"type:varchar(255);not null"`
	Description string          `json:"description" gorm:"type:text"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null;check:chk_products_price_non_negative,price >= 0"`
	Stock       int             `json:"stock" gorm:"not null;default:0;check:chk_products_stock_non_negative,stock >= 0"`
	Category    string          `json:"category" gorm:"type:varchar(100);not null;index"`
	ImageURL    *string         `json:"imageUrl" gorm:"type:varchar(500)"`
	SellerID    string          `json:"sellerId" gorm:"type:varchar(36);not null;index"`
	IsActive    bool            `json:"isActive" gorm:"not null;default:true;index"`
	CreatedAt   time.Time       `json:"createdAt" gorm:"index"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TableName pins the table name regardless of naming strategy.
func (Product) TableName() string {
	return "products"
}

// NewProduct carries the fields a seller supplies when listing a product.
// The owning seller is never part of it; it comes from the caller's session.
type NewProduct struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
	ImageURL    *string
}

// ProductChanges is a partial update. Nil fields are left untouched.
// It deliberately has no seller or status field.
type ProductChanges struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
	Category    *string
	ImageURL    *string
}

// IsEmpty reports whether the patch carries no field at all.
func (c ProductChanges) IsEmpty() bool {
	return c.Name == nil && c.Description == nil && c.Price == nil &&
		c.Stock == nil && c.Category == nil && c.ImageURL == nil
}

// MaxStock is the largest stock a product may hold and the largest magnitude
// of a single stock adjustment.
const MaxStock = math.MaxInt32

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ProductFilter is a conjunction of optional predicates plus pagination.
// Only active products are ever matched.
type ProductFilter struct {
	Search   string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	SellerID string
	Page     int
	Limit    int
}

// Normalize applies the pagination defaults and bounds.
func (f ProductFilter) Normalize() ProductFilter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

// Offset is the number of rows skipped before the current page.
func (f ProductFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// ProductPage is one page of a filtered listing. Total counts every matching
// row before pagination.
type ProductPage struct {
	Products []Product `json:"products"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
}
