package models

// Product is the cached projection of a catalog product. The catalog itself
// lives outside this service; only the hot-list cache and behavior records
// reference products.
type Product struct {
	ProductID      string  `json:"product_id"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	Category       string  `json:"category"`
	Brand          string  `json:"brand"`
	Specifications string  `json:"specifications,omitempty"`
	Description    string  `json:"description,omitempty"`
	Stock          int     `json:"stock"`
	IsHot          bool    `json:"is_hot"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}
