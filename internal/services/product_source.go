package services

import (
	"context"
	"encoding/json"
	"fmt"

	"shopsense/internal/models"
)

const hotProductsFetchSize = 20

// ESProductSource reads the hot-product list from the products search index.
type ESProductSource struct {
	search *SearchService
	index  string
}

// NewESProductSource creates a product source over a products index.
func NewESProductSource(search *SearchService, index string) *ESProductSource {
	return &ESProductSource{search: search, index: index}
}

// HotProducts returns products flagged is_hot, skipping documents that fail
// to parse.
func (s *ESProductSource) HotProducts(ctx context.Context) ([]models.Product, error) {
	hits, err := s.search.TermQuery(ctx, s.index, "is_hot", true, hotProductsFetchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query hot products: %w", err)
	}

	products := make([]models.Product, 0, len(hits))
	for _, hit := range hits {
		var p models.Product
		if err := json.Unmarshal(hit.Source, &p); err != nil {
			continue
		}
		products = append(products, p)
	}
	return products, nil
}
