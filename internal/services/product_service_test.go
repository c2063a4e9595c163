package services_test

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"products/internal/events"
	"products/internal/models"
	"products/internal/policy"
	"products/internal/repositories"
	"products/internal/services"
)

// MockProductRepository is a mock implementation of repositories.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) Create(ctx context.Context, product *models.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductRepository) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.Product), args.Get(1).(int64), args.Error(2)
}

func (m *MockProductRepository) Update(ctx context.Context, id string, changes models.ProductChanges, at time.Time) (*models.Product, error) {
	args := m.Called(ctx, id, changes, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockProductRepository) AdjustStock(ctx context.Context, id string, delta int, at time.Time) (*models.Product, error) {
	args := m.Called(ctx, id, delta, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

// MockNotifier records product events.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) ProductEvent(ctx context.Context, eventType string, data interface{}) {
	m.Called(ctx, eventType, data)
}

// MockUserDirectory is a mock implementation of services.UserDirectory
type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

var (
	fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seller   = policy.Caller{ID: "seller-1", Role: models.RoleSeller}
	stranger = policy.Caller{ID: "seller-2", Role: models.RoleSeller}
	buyer    = policy.Caller{ID: "buyer-1", Role: "buyer"}
)

func newService(repo repositories.ProductRepository, notifier services.EventNotifier, users services.UserDirectory) *services.ProductService {
	return services.NewProductService(repo, notifier, users).WithClock(func() time.Time { return fixedNow })
}

func ownedProduct() *models.Product {
	return &models.Product{
		ID:       "p-1",
		Name:     "Lamp",
		Price:    decimal.RequireFromString("19.99"),
		Stock:    10,
		Category: "home",
		SellerID: seller.ID,
		IsActive: true,
	}
}

func TestProductService_CreateProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("seller creates a product", func(t *testing.T) {
		mockRepo := new(MockProductRepository)
		notifier := new(MockNotifier)
		service := newService(mockRepo, notifier, nil)

		mockRepo.On("Create", ctx, mock.AnythingOfType("*models.Product")).Return(nil).Once()
		notifier.On("ProductEvent", ctx, events.ProductCreated, mock.AnythingOfType("*models.Product")).Once()

		product, err := service.CreateProduct(ctx, seller, models.NewProduct{
			Name:     "  Lamp ",
			Price:    decimal.RequireFromString("19.994"),
			Stock:    3,
			Category: "home",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, product.ID)
		assert.Equal(t, "Lamp", product.Name)
		assert.Equal(t, seller.ID, product.SellerID)
		assert.True(t, product.IsActive)
		assert.True(t, product.Price.Equal(decimal.RequireFromString("19.99")))
		assert.Equal(t, fixedNow, product.CreatedAt)
		assert.Equal(t, fixedNow, product.UpdatedAt)
		mockRepo.AssertExpectations(t)
		notifier.AssertExpectations(t)
	})

	t.Run("non-seller is forbidden", func(t *testing.T) {
		mockRepo := new(MockProductRepository)
		notifier := new(MockNotifier)
		service := newService(mockRepo, notifier, nil)

		_, err := service.CreateProduct(ctx, buyer, models.NewProduct{Name: "Lamp", Category: "home"})
		assert.ErrorIs(t, err, models.ErrForbidden)
		mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		notifier.AssertNotCalled(t, "ProductEvent", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid input", func(t *testing.T) {
		mockRepo := new(MockProductRepository)
		service := newService(mockRepo, new(MockNotifier), nil)

		_, err := service.CreateProduct(ctx, seller, models.NewProduct{
			Name:  " ",
			Price: decimal.NewFromInt(-1),
			Stock: -2,
		})
		require.ErrorIs(t, err, models.ErrValidation)
		var verr *models.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Contains(t, verr.Fields, "name")
		assert.Contains(t, verr.Fields, "category")
		assert.Contains(t, verr.Fields, "price")
		assert.Contains(t, verr.Fields, "stock")
		mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("store failure emits nothing", func(t *testing.T) {
		mockRepo := new(MockProductRepository)
		notifier := new(MockNotifier)
		service := newService(mockRepo, notifier, nil)

		mockRepo.On("Create", ctx, mock.Anything).Return(fmt.Errorf("database error")).Once()
		_, err := service.CreateProduct(ctx, seller, models.NewProduct{Name: "Lamp", Category: "home"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "database error")
		notifier.AssertNotCalled(t, "ProductEvent", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestProductService_ListProducts(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockProductRepository)
	service := newService(mockRepo, nil, nil)

	expected := []models.Product{*ownedProduct()}
	mockRepo.On("List", ctx, models.ProductFilter{Page: 1, Limit: 100}).Return(expected, int64(1), nil).Once()

	page, err := service.ListProducts(ctx, models.ProductFilter{Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, expected, page.Products)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.Limit)
	mockRepo.AssertExpectations(t)
}

func TestProductService_ListSellerProducts_OverridesFilterSeller(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockProductRepository)
	service := newService(mockRepo, nil, nil)

	want := models.ProductFilter{SellerID: "seller-1", Category: "home", Page: 2, Limit: 10}
	mockRepo.On("List", ctx, want).Return([]models.Product{}, int64(0), nil).Once()

	_, err := service.ListSellerProducts(ctx, "seller-1", models.ProductFilter{SellerID: "seller-9", Category: "home", Page: 2})
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestProductService_ListMyProducts(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockProductRepository)
	service := newService(mockRepo, nil, nil)

	mockRepo.On("List", ctx, models.ProductFilter{SellerID: seller.ID, Page: 1, Limit: 10}).
		Return([]models.Product{}, int64(0), nil).Once()
	_, err := service.ListMyProducts(ctx, seller, models.ProductFilter{SellerID: "someone-else"})
	require.NoError(t, err)

	_, err = service.ListMyProducts(ctx, buyer, models.ProductFilter{})
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = service.ListMyProducts(ctx, policy.Caller{}, models.ProductFilter{})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	mockRepo.AssertExpectations(t)
}

func TestProductService_UpdateProduct(t *testing.T) {
	ctx := context.Background()
	name := "Desk lamp"
	price := decimal.RequireFromString("25.5")

	t.Run("owner updates", func(t *testing.T) {
		mockRepo := new(MockProductRepository)
		notifier := new(MockNotifier)
		service := newService(mockRepo, notifier, nil)

		updated := ownedProduct()
		updated.Name = name
		updated.Price = price
		changes := models.ProductChanges{Name: &name, Price: &price}

		mockRepo.On("GetByID", ctx, "p-1").Return(ownedProduct(), nil).Once()
		mockRepo.On("Update", ctx, "p-1", mock.AnythingOfType("models.ProductChanges"), fixedNow).Return(updated, nil).Once()
		notifier.On("ProductEvent", ctx, events.ProductUpdated, updated).Once()

		product, err := service.UpdateProduct(ctx, seller, "p-1", changes)
		require.NoError(t, err)
		assert.Equal(t, name, product.Name)
		mockRepo.AssertExpectations(t)
		notifier.AssertExpectations(t)
	})

	t.Run("non-owner is forbidden, not told not found", func(t *testing.T) {
		mockRepo := new(MockProductRepository)
		notifier := new(MockNotifier)
		service := newService(mockRepo, notifier, nil)

		mockRepo.On("GetByID", ctx, "p-1").Return(ownedProduct(), nil).Once()
		_, err := service.UpdateProduct(ctx, stranger, "p-1", models.ProductChanges{Name: &name})
		assert.ErrorIs(t, err, models.ErrForbidden)
		assert.NotErrorIs(t, err, models.ErrNotFound)
		mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		notifier.AssertNotCalled(t, "ProductEvent", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing product", func(t *testing.T) {
		mockRepo := new(MockProductRepository)
		service := newService(mockRepo, nil, nil)

		mockRepo.On("GetByID", ctx, "nope").Return(nil, errors.Wrap(models.ErrNotFound, "product with ID nope")).Once()
		_, err := service.UpdateProduct(ctx, stranger, "nope", models.ProductChanges{Name: &name})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("empty name rejected for the owner", func(t *testing.T) {
		mockRepo := new(MockProductRepository)
		service := newService(mockRepo, nil, nil)

		blank := ""
		mockRepo.On("GetByID", ctx, "p-1").Return(ownedProduct(), nil).Once()
		_, err := service.UpdateProduct(ctx, seller, "p-1", models.ProductChanges{Name: &blank})
		assert.ErrorIs(t, err, models.ErrValidation)
		mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid changes from a non-owner are forbidden", func(t *testing.T) {
		mockRepo := new(MockProductRepository)
		service := newService(mockRepo, nil, nil)

		blank := ""
		mockRepo.On("GetByID", ctx, "p-1").Return(ownedProduct(), nil).Once()
		_, err := service.UpdateProduct(ctx, stranger, "p-1", models.ProductChanges{Name: &blank})
		assert.ErrorIs(t, err, models.ErrForbidden)
		assert.NotErrorIs(t, err, models.ErrValidation)
	})

	t.Run("stock above the maximum", func(t *testing.T) {
		mockRepo := new(MockProductRepository)
		service := newService(mockRepo, nil, nil)

		huge := models.MaxStock + 1
		mockRepo.On("GetByID", ctx, "p-1").Return(ownedProduct(), nil).Once()
		_, err := service.UpdateProduct(ctx, seller, "p-1", models.ProductChanges{Stock: &huge})
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestProductService_DeleteProduct(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockProductRepository)
	notifier := new(MockNotifier)
	service := newService(mockRepo, notifier, nil)

	mockRepo.On("GetByID", ctx, "p-1").Return(ownedProduct(), nil).Twice()
	mockRepo.On("Deactivate", ctx, "p-1", fixedNow).Return(nil).Once()
	notifier.On("ProductEvent", ctx, events.ProductDeleted, map[string]string{"id": "p-1", "sellerId": seller.ID}).Once()

	err := service.DeleteProduct(ctx, stranger, "p-1")
	assert.ErrorIs(t, err, models.ErrForbidden)

	err = service.DeleteProduct(ctx, seller, "p-1")
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestProductService_AdjustStock_Event(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockProductRepository)
	notifier := new(MockNotifier)
	service := newService(mockRepo, notifier, nil)

	after := ownedProduct()
	after.Stock = 7
	mockRepo.On("GetByID", ctx, "p-1").Return(ownedProduct(), nil).Once()
	mockRepo.On("AdjustStock", ctx, "p-1", -3, fixedNow).Return(after, nil).Once()
	notifier.On("ProductEvent", ctx, events.ProductStockUpdated, services.StockChange{
		ID: "p-1", SellerID: seller.ID, PreviousStock: 10, Stock: 7, Quantity: -3,
	}).Once()

	product, err := service.AdjustStock(ctx, seller, "p-1", -3)
	require.NoError(t, err)
	assert.Equal(t, 7, product.Stock)
	mockRepo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestProductService_AdjustStock_Scenario(t *testing.T) {
	ctx := context.Background()
	service := newService(repositories.NewInMemoryProductRepository(), nil, nil)

	product, err := service.CreateProduct(ctx, seller, models.NewProduct{
		Name: "Mug", Price: decimal.NewFromInt(5), Stock: 10, Category: "kitchen",
	})
	require.NoError(t, err)

	product, err = service.AdjustStock(ctx, seller, product.ID, -5)
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)

	_, err = service.AdjustStock(ctx, seller, product.ID, -20)
	assert.ErrorIs(t, err, models.ErrInvalidStock)
	assert.ErrorIs(t, err, models.ErrValidation)

	product, err = service.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)

	_, err = service.AdjustStock(ctx, stranger, product.ID, 1)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = service.AdjustStock(ctx, seller, "missing", 1)
	assert.ErrorIs(t, err, models.ErrNotFound)

	for _, quantity := range []int{math.MaxInt, math.MinInt, models.MaxStock + 1} {
		_, err = service.AdjustStock(ctx, seller, product.ID, quantity)
		assert.ErrorIs(t, err, models.ErrValidation, quantity)
	}

	_, err = service.AdjustStock(ctx, seller, product.ID, models.MaxStock)
	assert.ErrorIs(t, err, models.ErrInvalidStock)

	product, err = service.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)
}

func TestProductService_AdjustStock_Concurrent(t *testing.T) {
	ctx := context.Background()
	service := newService(repositories.NewInMemoryProductRepository(), nil, nil)

	product, err := service.CreateProduct(ctx, seller, models.NewProduct{
		Name: "Mug", Price: decimal.NewFromInt(5), Stock: 50, Category: "kitchen",
	})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		rejected int
	)
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.AdjustStock(ctx, seller, product.ID, -1); err != nil {
				mu.Lock()
				rejected++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	product, err = service.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, product.Stock)
	assert.Equal(t, 30, rejected)
}

func TestProductService_DeletedProductIsGone(t *testing.T) {
	ctx := context.Background()
	service := newService(repositories.NewInMemoryProductRepository(), nil, nil)

	product, err := service.CreateProduct(ctx, seller, models.NewProduct{Name: "Mug", Category: "kitchen"})
	require.NoError(t, err)
	require.NoError(t, service.DeleteProduct(ctx, seller, product.ID))

	_, err = service.GetProduct(ctx, product.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = service.DeleteProduct(ctx, seller, product.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	page, err := service.ListProducts(ctx, models.ProductFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Products)
	assert.Equal(t, int64(0), page.Total)
}

func TestProductService_GetSeller(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockProductRepository)
	users := new(MockUserDirectory)
	service := newService(mockRepo, nil, users)

	mockRepo.On("GetByID", ctx, "p-1").Return(ownedProduct(), nil)
	users.On("GetUser", ctx, seller.ID).Return(&models.User{
		ID: seller.ID, Email: "private@example.com", FirstName: "Ada", LastName: "Lovelace", Status: "active",
	}, nil).Once()

	profile, err := service.GetSeller(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, models.SellerProfile{ID: seller.ID, FirstName: "Ada", LastName: "Lovelace", Status: "active"}, *profile)

	users.On("GetUser", ctx, seller.ID).Return(nil, nil).Once()
	_, err = service.GetSeller(ctx, "p-1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	users.On("GetUser", ctx, seller.ID).Return(nil, errors.Wrap(models.ErrUpstreamUnavailable, "down")).Once()
	_, err = service.GetSeller(ctx, "p-1")
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
	users.AssertExpectations(t)
}
