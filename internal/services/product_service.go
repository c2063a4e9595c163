package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"products/internal/events"
	"products/internal/models"
	"products/internal/policy"
	"products/internal/repositories"
)

// EventNotifier receives best-effort notifications after committed mutations.
type EventNotifier interface {
	ProductEvent(ctx context.Context, eventType string, data interface{})
}

// UserDirectory looks up user profiles in the users service.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// ProductService handles business logic related to products.
type ProductService struct {
	repo   repositories.ProductRepository
	events EventNotifier
	users  UserDirectory
	now    func() time.Time
}

// NewProductService creates a new ProductService.
func NewProductService(repo repositories.ProductRepository, notifier EventNotifier, users UserDirectory) *ProductService {
	return &ProductService{
		repo:   repo,
		events: notifier,
		users:  users,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used for timestamps.
func (s *ProductService) WithClock(now func() time.Time) *ProductService {
	s.now = now
	return s
}

// CreateProduct lists a new product owned by the calling seller.
func (s *ProductService) CreateProduct(ctx context.Context, caller policy.Caller, input models.NewProduct) (*models.Product, error) {
	if err := policy.Authorize(caller, policy.ActionCreate, ""); err != nil {
		return nil, err
	}
	if err := validateNewProduct(input); err != nil {
		return nil, err
	}

	now := s.now()
	product := &models.Product{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Price:       input.Price.Round(2),
		Stock:       input.Stock,
		Category:    strings.TrimSpace(input.Category),
		ImageURL:    input.ImageURL,
		SellerID:    caller.ID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, err
	}

	s.notify(ctx, events.ProductCreated, product)
	return product, nil
}

// GetProduct retrieves a single active product by its ID.
func (s *ProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.repo.GetByID(ctx, id)
}

// ListProducts returns a page of active products matching filter.
func (s *ProductService) ListProducts(ctx context.Context, filter models.ProductFilter) (*models.ProductPage, error) {
	filter = filter.Normalize()
	products, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &models.ProductPage{
		Products: products,
		Total:    total,
		Page:     filter.Page,
		Limit:    filter.Limit,
	}, nil
}

// ListSellerProducts lists the products of sellerID. The seller always
// overrides any seller already present in filter.
func (s *ProductService) ListSellerProducts(ctx context.Context, sellerID string, filter models.ProductFilter) (*models.ProductPage, error) {
	filter.SellerID = sellerID
	return s.ListProducts(ctx, filter)
}

// ListMyProducts lists the calling seller's own products.
func (s *ProductService) ListMyProducts(ctx context.Context, caller policy.Caller, filter models.ProductFilter) (*models.ProductPage, error) {
	if err := policy.Authorize(caller, policy.ActionListOwn, ""); err != nil {
		return nil, err
	}
	return s.ListSellerProducts(ctx, caller.ID, filter)
}

// UpdateProduct merges changes into a product owned by the caller.
func (s *ProductService) UpdateProduct(ctx context.Context, caller policy.Caller, id string, changes models.ProductChanges) (*models.Product, error) {
	if _, err := s.ownedProduct(ctx, caller, policy.ActionUpdate, id); err != nil {
		return nil, err
	}
	if err := validateChanges(changes); err != nil {
		return nil, err
	}

	if changes.Price != nil {
		rounded := changes.Price.Round(2)
		changes.Price = &rounded
	}
	product, err := s.repo.Update(ctx, id, changes, s.now())
	if err != nil {
		return nil, err
	}

	s.notify(ctx, events.ProductUpdated, product)
	return product, nil
}

// DeleteProduct soft-deletes a product owned by the caller.
func (s *ProductService) DeleteProduct(ctx context.Context, caller policy.Caller, id string) error {
	product, err := s.ownedProduct(ctx, caller, policy.ActionDelete, id)
	if err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id, s.now()); err != nil {
		return err
	}

	s.notify(ctx, events.ProductDeleted, map[string]string{
		"id":       product.ID,
		"sellerId": product.SellerID,
	})
	return nil
}

// StockChange is the payload of a stock event.
type StockChange struct {
	ID            string `json:"id"`
	SellerID      string `json:"sellerId"`
	PreviousStock int    `json:"previousStock"`
	Stock         int    `json:"stock"`
	Quantity      int    `json:"quantity"`
}

// AdjustStock adds quantity (negative to consume) to a product owned by the
// caller. The stored stock stays within [0, models.MaxStock].
func (s *ProductService) AdjustStock(ctx context.Context, caller policy.Caller, id string, quantity int) (*models.Product, error) {
	if _, err := s.ownedProduct(ctx, caller, policy.ActionAdjustStock, id); err != nil {
		return nil, err
	}
	if quantity < -models.MaxStock || quantity > models.MaxStock {
		return nil, models.NewValidationError("quantity", fmt.Sprintf("must be between %d and %d", -models.MaxStock, models.MaxStock))
	}

	product, err := s.repo.AdjustStock(ctx, id, quantity, s.now())
	if err != nil {
		return nil, err
	}

	s.notify(ctx, events.ProductStockUpdated, StockChange{
		ID:            product.ID,
		SellerID:      product.SellerID,
		PreviousStock: product.Stock - quantity,
		Stock:         product.Stock,
		Quantity:      quantity,
	})
	return product, nil
}

// GetSeller returns the public profile of the seller owning a product.
func (s *ProductService) GetSeller(ctx context.Context, productID string) (*models.SellerProfile, error) {
	product, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if s.users == nil {
		return nil, errors.Wrap(models.ErrUpstreamUnavailable, "no users directory configured")
	}

	user, err := s.users.GetUser(ctx, product.SellerID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.Wrapf(models.ErrNotFound, "seller %s of product %s", product.SellerID, productID)
	}
	profile := user.PublicProfile()
	return &profile, nil
}

// ownedProduct loads an active product and checks the caller may perform
// action on it. A missing product is reported before any ownership check.
func (s *ProductService) ownedProduct(ctx context.Context, caller policy.Caller, action policy.Action, id string) (*models.Product, error) {
	if !caller.Authenticated() {
		return nil, errors.Wrapf(models.ErrUnauthorized, "%s requires a session", action)
	}
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(caller, action, product.SellerID); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *ProductService) notify(ctx context.Context, eventType string, data interface{}) {
	if s.events == nil {
		return
	}
	s.events.ProductEvent(ctx, eventType, data)
}

func validateNewProduct(input models.NewProduct) error {
	verr := &models.ValidationError{}
	if strings.TrimSpace(input.Name) == "" {
		verr.Add("name", "must not be empty")
	}
	if strings.TrimSpace(input.Category) == "" {
		verr.Add("category", "must not be empty")
	}
	checkPrice(verr, input.Price)
	checkStock(verr, input.Stock)
	if verr.Empty() {
		return nil
	}
	return verr
}

func validateChanges(changes models.ProductChanges) error {
	verr := &models.ValidationError{}
	if changes.Name != nil && strings.TrimSpace(*changes.Name) == "" {
		verr.Add("name", "must not be empty")
	}
	if changes.Category != nil && strings.TrimSpace(*changes.Category) == "" {
		verr.Add("category", "must not be empty")
	}
	if changes.Price != nil {
		checkPrice(verr, *changes.Price)
	}
	if changes.Stock != nil {
		checkStock(verr, *changes.Stock)
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

var maxPrice = decimal.New(1, 8) // numeric(10,2) holds up to 99999999.99

func checkPrice(verr *models.ValidationError, price decimal.Decimal) {
	switch {
	case price.IsNegative():
		verr.Add("price", "must be greater than or equal to 0")
	case price.Round(2).GreaterThanOrEqual(maxPrice):
		verr.Add("price", "must be less than 100000000")
	}
}

func checkStock(verr *models.ValidationError, stock int) {
	switch {
	case stock < 0:
		verr.Add("stock", "must be greater than or equal to 0")
	case stock > models.MaxStock:
		verr.Add("stock", fmt.Sprintf("must be less than or equal to %d", models.MaxStock))
	}
}
