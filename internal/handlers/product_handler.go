package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"products/internal/middleware"
	"products/internal/services"
)

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	service  *services.ProductService
	validate *validator.Validate
	log      logrus.FieldLogger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.ProductService, log logrus.FieldLogger) *ProductHandler {
	return &ProductHandler{
		service:  service,
		validate: validator.New(),
		log:      log.WithField("component", "products"),
	}
}

// RegisterRoutes registers the product routes. auth guards every route that
// needs a session. Literal sub-paths go before /:id so they are not captured.
func (h *ProductHandler) RegisterRoutes(router fiber.Router, auth fiber.Handler) {
	productRoutes := router.Group("/products")
	productRoutes.Post("/", auth, h.HandleCreateProduct)
	productRoutes.Get("/", h.HandleGetProducts)
	productRoutes.Get("/my-products", auth, h.HandleGetMyProducts)
	productRoutes.Get("/seller/:sellerId", h.HandleGetSellerProducts)
	productRoutes.Get("/:id", h.HandleGetProductByID)
	productRoutes.Get("/:id/seller", h.HandleGetProductSeller)
	productRoutes.Patch("/:id", auth, h.HandleUpdateProduct)
	productRoutes.Delete("/:id", auth, h.HandleDeleteProduct)
	productRoutes.Patch("/:id/stock", auth, h.HandleUpdateStock)
}

// HandleCreateProduct lists a new product for the calling seller.
func (h *ProductHandler) HandleCreateProduct(c *fiber.Ctx) error {
	caller := middleware.CallerFrom(c)
	if !caller.IsSeller() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"message": "Only sellers can create products",
		})
	}

	var req CreateProductRequest
	if ok, err := h.bind(c, &req, false); !ok {
		return err
	}

	product, err := h.service.CreateProduct(c.UserContext(), caller, req.toModel())
	if err != nil {
		return respondError(c, h.log, err, "Could not create product")
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

// HandleGetProducts lists active products matching the query.
func (h *ProductHandler) HandleGetProducts(c *fiber.Ctx) error {
	var query ProductQuery
	if ok, err := h.bind(c, &query, true); !ok {
		return err
	}
	filter, err := query.toFilter()
	if err != nil {
		return respondError(c, h.log, err, "Invalid query parameters")
	}

	page, err := h.service.ListProducts(c.UserContext(), filter)
	if err != nil {
		return respondError(c, h.log, err, "Could not retrieve products")
	}
	return c.JSON(page)
}

// HandleGetMyProducts lists the calling seller's products.
func (h *ProductHandler) HandleGetMyProducts(c *fiber.Ctx) error {
	var query ProductQuery
	if ok, err := h.bind(c, &query, true); !ok {
		return err
	}
	filter, err := query.toFilter()
	if err != nil {
		return respondError(c, h.log, err, "Invalid query parameters")
	}

	page, err := h.service.ListMyProducts(c.UserContext(), middleware.CallerFrom(c), filter)
	if err != nil {
		return respondError(c, h.log, err, "Could not retrieve products")
	}
	return c.JSON(page)
}

// HandleGetSellerProducts lists the products of the seller in the path.
func (h *ProductHandler) HandleGetSellerProducts(c *fiber.Ctx) error {
	var query ProductQuery
	if ok, err := h.bind(c, &query, true); !ok {
		return err
	}
	filter, err := query.toFilter()
	if err != nil {
		return respondError(c, h.log, err, "Invalid query parameters")
	}

	page, err := h.service.ListSellerProducts(c.UserContext(), c.Params("sellerId"), filter)
	if err != nil {
		return respondError(c, h.log, err, "Could not retrieve products")
	}
	return c.JSON(page)
}

// HandleGetProductByID retrieves a single active product.
func (h *ProductHandler) HandleGetProductByID(c *fiber.Ctx) error {
	product, err := h.service.GetProduct(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err, "Product not found")
	}
	return c.JSON(product)
}

// HandleGetProductSeller returns the public profile of a product's seller.
func (h *ProductHandler) HandleGetProductSeller(c *fiber.Ctx) error {
	profile, err := h.service.GetSeller(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err, "Could not retrieve seller")
	}
	return c.JSON(profile)
}

// HandleUpdateProduct applies a partial update to a product the caller owns.
func (h *ProductHandler) HandleUpdateProduct(c *fiber.Ctx) error {
	var req UpdateProductRequest
	if ok, err := h.bind(c, &req, false); !ok {
		return err
	}

	product, err := h.service.UpdateProduct(c.UserContext(), middleware.CallerFrom(c), c.Params("id"), req.toModel())
	if err != nil {
		return respondError(c, h.log, err, "Could not update product")
	}
	return c.JSON(product)
}

// HandleDeleteProduct soft-deletes a product the caller owns.
func (h *ProductHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	if err := h.service.DeleteProduct(c.UserContext(), middleware.CallerFrom(c), c.Params("id")); err != nil {
		return respondError(c, h.log, err, "Could not delete product")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleUpdateStock adjusts the stock of a product the caller owns.
func (h *ProductHandler) HandleUpdateStock(c *fiber.Ctx) error {
	var req UpdateStockRequest
	if ok, err := h.bind(c, &req, false); !ok {
		return err
	}

	product, err := h.service.AdjustStock(c.UserContext(), middleware.CallerFrom(c), c.Params("id"), *req.Quantity)
	if err != nil {
		return respondError(c, h.log, err, "Could not update stock")
	}
	return c.JSON(product)
}
