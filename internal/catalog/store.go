// Package catalog defines the persistence interfaces the pipeline consumes:
// the product catalog, the inventory ledger and the invoice record store.
// Implementations live in the memory and postgres subpackages.
package catalog

import (
	"context"
	"errors"

	"shopcore/pkg/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidProduct = errors.New("invalid product")
	ErrInvalidStock   = errors.New("invalid stock value")
)

// CatalogStore provides the product reads and writes the core needs. The
// invoice path never creates or deletes products; only the sales ingester
// creates (flagged) ones.
type CatalogStore interface {
	FindByID(ctx context.Context, id string) (*models.CatalogProduct, error)
	FindByBarcode(ctx context.Context, storeID, barcode string) (*models.CatalogProduct, error)
	// FindByName matches the product name case-insensitively.
	FindByName(ctx context.Context, storeID, name string) (*models.CatalogProduct, error)
	ListAll(ctx context.Context, storeID string) ([]models.CatalogProduct, error)
	UpdateCostPrice(ctx context.Context, id string, value float64) error
	// UpdateBarcode back-fills a barcode onto a product that had none.
	UpdateBarcode(ctx context.Context, id, barcode string) error
	Create(ctx context.Context, product models.CatalogProduct) (*models.CatalogProduct, error)
}

// InventoryLedger is the time series of quantity-on-hand per product. The
// invoice path appends immutably; the sales path updates the newest snapshot
// in place.
type InventoryLedger interface {
	// LatestSnapshot returns the most recent snapshot for the product, or
	// ErrNotFound when none has ever been recorded.
	LatestSnapshot(ctx context.Context, productID string) (*models.InventorySnapshot, error)
	AppendSnapshot(ctx context.Context, storeID, productID string, quantity float64) (*models.InventorySnapshot, error)
	// UpdateLatest overwrites the quantity of the newest snapshot. Used only
	// by the sales decrement path.
	UpdateLatest(ctx context.Context, productID string, quantity float64) error
}

// InvoiceStore persists invoice records and their pipeline results.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, invoice models.Invoice) (*models.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
	SetInvoiceStatus(ctx context.Context, id string, status models.InvoiceStatus) error
	// SaveInvoiceResult stores a pipeline result together with the status
	// transition it produced.
	SaveInvoiceResult(ctx context.Context, id string, status models.InvoiceStatus, result *models.InvoiceParseResult) error
	// FindInvoiceByNumber looks up a prior non-ERROR invoice with the same
	// supplier and invoice number, for duplicate detection.
	FindInvoiceByNumber(ctx context.Context, storeID, supplier, number string) (*models.Invoice, error)
}

// SalesStore records sales produced by CSV ingestion.
type SalesStore interface {
	CreateSale(ctx context.Context, sale models.Sale) (*models.Sale, error)
}

// Store aggregates everything a full deployment persists.
type Store interface {
	CatalogStore
	InventoryLedger
	InvoiceStore
	SalesStore
}
