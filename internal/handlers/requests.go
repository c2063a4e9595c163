package handlers

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"products/internal/models"
)

// CreateProductRequest represents the request body for creating a product.
// A sellerId or isActive sent by the client is not part of it and is dropped.
type CreateProductRequest struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Stock       *int             `json:"stock" validate:"required,min=0"`
	Category    string           `json:"category" validate:"required,max=100"`
	ImageURL    *string          `json:"imageUrl" validate:"omitempty,max=500"`
}

func (r CreateProductRequest) toModel() models.NewProduct {
	return models.NewProduct{
		Name:        r.Name,
		Description: r.Description,
		Price:       *r.Price,
		Stock:       *r.Stock,
		Category:    r.Category,
		ImageURL:    r.ImageURL,
	}
}

// UpdateProductRequest represents a partial update. Absent fields are left
// untouched; sellerId and isActive are never accepted.
type UpdateProductRequest struct {
	Name        *string          `json:"name" validate:"omitempty,max=255"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock" validate:"omitempty,min=0"`
	Category    *string          `json:"category" validate:"omitempty,max=100"`
	ImageURL    *string          `json:"imageUrl" validate:"omitempty,max=500"`
}

func (r UpdateProductRequest) toModel() models.ProductChanges {
	return models.ProductChanges{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		Category:    r.Category,
		ImageURL:    r.ImageURL,
	}
}

// UpdateStockRequest represents the request body for a stock adjustment.
type UpdateStockRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// ProductQuery holds the listing query parameters. Prices stay strings until
// toFilter parses them as decimals, so non-finite floats never get through.
type ProductQuery struct {
	Page     *int   `query:"page" validate:"omitempty,min=1"`
	Limit    *int   `query:"limit" validate:"omitempty,min=1,max=100"`
	Search   string `query:"search"`
	Category string `query:"category"`
	MinPrice string `query:"minPrice" validate:"omitempty,numeric"`
	MaxPrice string `query:"maxPrice" validate:"omitempty,numeric"`
	SellerID string `query:"sellerId"`
}

func (q ProductQuery) toFilter() (models.ProductFilter, error) {
	filter := models.ProductFilter{
		Search:   q.Search,
		Category: q.Category,
		SellerID: q.SellerID,
	}
	if q.Page != nil {
		filter.Page = *q.Page
	}
	if q.Limit != nil {
		filter.Limit = *q.Limit
	}

	verr := &models.ValidationError{}
	filter.MinPrice = parsePriceBound(verr, "minPrice", q.MinPrice)
	filter.MaxPrice = parsePriceBound(verr, "maxPrice", q.MaxPrice)
	if !verr.Empty() {
		return models.ProductFilter{}, verr
	}
	return filter.Normalize(), nil
}

func parsePriceBound(verr *models.ValidationError, field, raw string) *decimal.Decimal {
	if raw == "" {
		return nil
	}
	price, err := decimal.NewFromString(raw)
	switch {
	case err != nil:
		verr.Add(field, "must be a decimal number")
		return nil
	case price.IsNegative():
		verr.Add(field, "must be greater than or equal to 0")
		return nil
	}
	return &price
}

// bind parses the body (or the query string when fromQuery is set) into out
// and validates it. A non-nil error is already written to the response.
func (h *ProductHandler) bind(c *fiber.Ctx, out interface{}, fromQuery bool) (bool, error) {
	var err error
	if fromQuery {
		err = c.QueryParser(out)
	} else {
		err = c.BodyParser(out)
	}
	if err != nil {
		h.log.WithError(err).WithField("path", c.Path()).Debug("Error parsing request")
		what := "request body"
		if fromQuery {
			what = "query parameters"
		}
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid " + what,
			"error":   err.Error(),
		})
	}

	if err := h.validate.Struct(out); err != nil {
		errorMessages := make(map[string]string)
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, e := range validationErrors {
				errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
			}
		}
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  errorMessages,
		})
	}
	return true, nil
}
