// Package memory is the in-memory catalog store used by tests and the demo
// CLI when no DATABASE_URL is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"shopcore/internal/catalog"
	"shopcore/pkg/models"
)

type Store struct {
	mu        sync.RWMutex
	products  map[string]models.CatalogProduct
	snapshots map[string][]models.InventorySnapshot // productID -> ordered oldest first
	invoices  map[string]models.Invoice
	sales     map[string]models.Sale
	now       func() time.Time
}

func New() *Store {
	return &Store{
		products:  make(map[string]models.CatalogProduct),
		snapshots: make(map[string][]models.InventorySnapshot),
		invoices:  make(map[string]models.Invoice),
		sales:     make(map[string]models.Sale),
		now:       time.Now,
	}
}

// NewSeeded returns a store preloaded with a small demo catalog.
func NewSeeded(storeID string) *Store {
	s := New()
	barcode := func(b string) *string { return &b }
	stock := func(q float64) *float64 { return &q }
	seed := []models.CatalogProduct{
		{ID: uuid.NewString(), StoreID: storeID, Name: "Cola 12oz", SKU: strPtr("COLA-12"), Barcode: barcode("049000000443"), CostPrice: 0.55, SellingPrice: 1.25, InitialStock: stock(48)},
		{ID: uuid.NewString(), StoreID: storeID, Name: "Red Bull 8oz", SKU: strPtr("RB-8"), Barcode: barcode("611269991000"), CostPrice: 1.45, SellingPrice: 2.79, InitialStock: stock(24)},
		{ID: uuid.NewString(), StoreID: storeID, Name: "Potato Chips BBQ", SKU: strPtr("CHIP-BBQ"), Barcode: barcode("028400090896"), CostPrice: 1.10, SellingPrice: 2.49, InitialStock: stock(30)},
		{ID: uuid.NewString(), StoreID: storeID, Name: "Bottled Water 500ml", SKU: strPtr("WATER-500"), Barcode: barcode("786162338006"), CostPrice: 0.20, SellingPrice: 0.99},
	}
	ctx := context.Background()
	for _, p := range seed {
		created, _ := s.Create(ctx, p)
		if p.InitialStock != nil {
			_, _ = s.AppendSnapshot(ctx, storeID, created.ID, *p.InitialStock)
		}
	}
	return s
}

func strPtr(v string) *string { return &v }

// ---- CatalogStore ----

func (s *Store) FindByID(ctx context.Context, id string) (*models.CatalogProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	clone := p
	return &clone, nil
}

func (s *Store) FindByBarcode(ctx context.Context, storeID, barcode string) (*models.CatalogProduct, error) {
	if barcode == "" {
		return nil, catalog.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.StoreID == storeID && p.Barcode != nil && *p.Barcode == barcode {
			clone := p
			return &clone, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (s *Store) FindByName(ctx context.Context, storeID, name string) (*models.CatalogProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.StoreID == storeID && strings.EqualFold(p.Name, name) {
			clone := p
			return &clone, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (s *Store) ListAll(ctx context.Context, storeID string) ([]models.CatalogProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CatalogProduct, 0, len(s.products))
	for _, p := range s.products {
		if p.StoreID == storeID {
			out = append(out, p)
		}
	}
	// Deterministic order for tests and tie-break stability.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateCostPrice(ctx context.Context, id string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.ErrNotFound
	}
	p.CostPrice = value
	p.UpdatedAt = s.now()
	s.products[id] = p
	return nil
}

func (s *Store) UpdateBarcode(ctx context.Context, id, barcode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.ErrNotFound
	}
	p.Barcode = &barcode
	p.UpdatedAt = s.now()
	s.products[id] = p
	return nil
}

func (s *Store) Create(ctx context.Context, product models.CatalogProduct) (*models.CatalogProduct, error) {
	if product.Name == "" || product.StoreID == "" {
		return nil, catalog.ErrInvalidProduct
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := s.now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = product
	clone := product
	return &clone, nil
}

// ---- InventoryLedger ----

func (s *Store) LatestSnapshot(ctx context.Context, productID string) (*models.InventorySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.snapshots[productID]
	if len(history) == 0 {
		return nil, catalog.ErrNotFound
	}
	clone := history[len(history)-1]
	return &clone, nil
}

func (s *Store) AppendSnapshot(ctx context.Context, storeID, productID string, quantity float64) (*models.InventorySnapshot, error) {
	if quantity < 0 {
		return nil, catalog.ErrInvalidStock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := models.InventorySnapshot{
		ProductID:  productID,
		StoreID:    storeID,
		Quantity:   quantity,
		RecordedAt: s.now(),
	}
	s.snapshots[productID] = append(s.snapshots[productID], snap)
	clone := snap
	return &clone, nil
}

func (s *Store) UpdateLatest(ctx context.Context, productID string, quantity float64) error {
	if quantity < 0 {
		return catalog.ErrInvalidStock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.snapshots[productID]
	if len(history) == 0 {
		return catalog.ErrNotFound
	}
	history[len(history)-1].Quantity = quantity
	return nil
}

// SnapshotCount reports the length of one product's snapshot history. Test
// helper for idempotency assertions.
func (s *Store) SnapshotCount(productID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots[productID])
}

// ---- InvoiceStore ----

func (s *Store) CreateInvoice(ctx context.Context, invoice models.Invoice) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := s.now()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	s.invoices[invoice.ID] = invoice
	clone := invoice
	return &clone, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	clone := inv
	return &clone, nil
}

func (s *Store) SetInvoiceStatus(ctx context.Context, id string, status models.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return catalog.ErrNotFound
	}
	inv.Status = status
	inv.UpdatedAt = s.now()
	s.invoices[id] = inv
	return nil
}

func (s *Store) SaveInvoiceResult(ctx context.Context, id string, status models.InvoiceStatus, result *models.InvoiceParseResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return catalog.ErrNotFound
	}
	inv.Status = status
	inv.Result = result
	inv.UpdatedAt = s.now()
	s.invoices[id] = inv
	return nil
}

func (s *Store) FindInvoiceByNumber(ctx context.Context, storeID, supplier, number string) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invoices {
		if inv.StoreID != storeID || inv.Status == models.StatusError || inv.Result == nil {
			continue
		}
		md := inv.Result.Metadata
		if md.SupplierName == nil || md.InvoiceNumber == nil {
			continue
		}
		if strings.EqualFold(*md.SupplierName, supplier) && strings.EqualFold(*md.InvoiceNumber, number) {
			clone := inv
			return &clone, nil
		}
	}
	return nil, catalog.ErrNotFound
}

// ---- SalesStore ----

func (s *Store) CreateSale(ctx context.Context, sale models.Sale) (*models.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	sale.CreatedAt = s.now()
	s.sales[sale.ID] = sale
	clone := sale
	return &clone, nil
}

// SaleCount reports the number of recorded sales. Test helper.
func (s *Store) SaleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sales)
}

// Sales returns the recorded sales ordered by creation time. Test helper.
func (s *Store) Sales() []models.Sale {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
