package models

import "time"

// CatalogProduct is one product in a store's catalog.
type CatalogProduct struct {
	ID      string `json:"id"`
	StoreID string `json:"store_id"`
	Name    string `json:"name"`

	SKU     *string `json:"sku"`
	Barcode *string `json:"barcode"`

	CostPrice    float64 `json:"cost_price"`
	SellingPrice float64 `json:"selling_price"`

	// IsUnmatched marks a product auto-created by sales ingestion because no
	// catalog entry could be resolved. The owner is expected to review it.
	IsUnmatched bool `json:"is_unmatched"`

	// InitialStock is tri-state: nil means the owner has not confirmed a
	// starting count yet, and sales never decrement inventory until they do.
	InitialStock *float64 `json:"initial_stock"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InventorySnapshot is a timestamped quantity-on-hand record for one product.
// The ledger is append-only on the invoice path; the sales path updates the
// newest snapshot in place.
type InventorySnapshot struct {
	ProductID  string    `json:"product_id"`
	StoreID    string    `json:"store_id"`
	Quantity   float64   `json:"quantity"`
	RecordedAt time.Time `json:"recorded_at"`
}

// SalesRow is one raw line from a POS sales CSV export.
type SalesRow struct {
	ReceiptID   string     `json:"receipt_id"`
	Barcode     string     `json:"barcode"`
	ProductName string     `json:"product_name"`
	Quantity    float64    `json:"quantity"`
	UnitPrice   float64    `json:"unit_price"`
	SoldAt      *time.Time `json:"sold_at"`
}

// SaleLine is one resolved line of a recorded sale.
type SaleLine struct {
	ProductID string  `json:"product_id"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Sale groups the rows of one receipt into a single recorded sale.
type Sale struct {
	ID        string     `json:"id"`
	StoreID   string     `json:"store_id"`
	ReceiptID string     `json:"receipt_id"`
	Total     float64    `json:"total"`
	Lines     []SaleLine `json:"lines"`
	SoldAt    *time.Time `json:"sold_at"`
	CreatedAt time.Time  `json:"created_at"`
}
