package handlers

import (
	"github.com/gofiber/fiber/v2"

	"shopsense/internal/models"
	"shopsense/internal/services"
)

// ProductHandler serves the hot-product cache.
type ProductHandler struct {
	cache *services.ProductCacheService
}

// NewProductHandler creates a new product handler
func NewProductHandler(cache *services.ProductCacheService) *ProductHandler {
	return &ProductHandler{cache: cache}
}

// HotProducts returns the cached hot list. An empty list just means the
// cache is cold; the next refresh fills it.
func (h *ProductHandler) HotProducts(c *fiber.Ctx) error {
	return c.JSON(models.OK(h.cache.HotProducts()))
}

// Detail returns one cached product.
func (h *ProductHandler) Detail(c *fiber.Ctx) error {
	product, ok := h.cache.ProductDetail(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(models.Fail("product not cached"))
	}
	return c.JSON(models.OK(product))
}

// Warm replaces the hot list from the request body. Used by the catalog
// pipeline after bulk updates instead of waiting for the next refresh.
func (h *ProductHandler) Warm(c *fiber.Ctx) error {
	var products []models.Product
	if err := c.BodyParser(&products); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("invalid request body"))
	}
	h.cache.WarmHotProducts(products)
	return c.JSON(models.OKMessage("hot products warmed", fiber.Map{"count": len(products)}))
}
