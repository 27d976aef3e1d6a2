package services

import (
	"context"
	"log"
	"time"

	"github.com/patrickmn/go-cache"

	"shopsense/internal/models"
)

const hotProductsKey = "hot_products"
const productDetailPrefix = "product_detail:"

// ProductSource supplies the current hot-product list; the catalog itself
// lives outside this service.
type ProductSource interface {
	HotProducts(ctx context.Context) ([]models.Product, error)
}

// ProductCacheService keeps the hot-product list and per-product details in
// an in-process TTL cache, warmed at startup and refreshed on a schedule.
type ProductCacheService struct {
	cache     *cache.Cache
	listTTL   time.Duration
	detailTTL time.Duration
}

// NewProductCacheService creates the cache with separate TTLs for the hot
// list and individual product details.
func NewProductCacheService(listTTL, detailTTL time.Duration) *ProductCacheService {
	return &ProductCacheService{
		cache:     cache.New(listTTL, 10*time.Minute),
		listTTL:   listTTL,
		detailTTL: detailTTL,
	}
}

// WarmHotProducts replaces the hot list and caches each product's detail.
func (s *ProductCacheService) WarmHotProducts(products []models.Product) {
	s.cache.Set(hotProductsKey, products, s.listTTL)
	for _, p := range products {
		s.cache.Set(productDetailPrefix+p.ProductID, p, s.detailTTL)
	}
	log.Printf("🔥 [PRODUCT-CACHE] Warmed %d hot products", len(products))
}

// HotProducts returns the cached hot list, empty when cold or expired.
func (s *ProductCacheService) HotProducts() []models.Product {
	if v, ok := s.cache.Get(hotProductsKey); ok {
		if products, ok := v.([]models.Product); ok {
			return products
		}
	}
	return []models.Product{}
}

// SetProductDetail caches one product's detail.
func (s *ProductCacheService) SetProductDetail(p models.Product) {
	s.cache.Set(productDetailPrefix+p.ProductID, p, s.detailTTL)
}

// ProductDetail returns a cached product, reporting whether it was present.
func (s *ProductCacheService) ProductDetail(productID string) (models.Product, bool) {
	if v, ok := s.cache.Get(productDetailPrefix + productID); ok {
		if p, ok := v.(models.Product); ok {
			return p, true
		}
	}
	return models.Product{}, false
}

// InvalidateProduct drops one product's detail entry.
func (s *ProductCacheService) InvalidateProduct(productID string) {
	s.cache.Delete(productDetailPrefix + productID)
}

// InvalidateAll drops the hot list and every detail entry.
func (s *ProductCacheService) InvalidateAll() {
	s.cache.Flush()
}

// Refresh pulls the current hot list from the source and re-warms the cache.
// Failures leave the existing entries to age out on their own TTL.
func (s *ProductCacheService) Refresh(ctx context.Context, source ProductSource) error {
	products, err := source.HotProducts(ctx)
	if err != nil {
		log.Printf("⚠️ [PRODUCT-CACHE] Refresh failed, keeping stale entries: %v", err)
		return err
	}
	s.WarmHotProducts(products)
	return nil
}
