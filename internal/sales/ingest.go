package sales

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shopcore/internal/cache"
	"shopcore/internal/catalog"
	"shopcore/internal/logger"
	"shopcore/pkg/models"
)

// estimatedCostRatio approximates a cost price for products first seen on a
// receipt, pending the owner entering the real cost.
const estimatedCostRatio = 0.7

// Summary reports what one ingestion run did.
type Summary struct {
	Sales           int
	RowsIngested    int
	ProductsCreated int
	StockAdjusted   int
}

// Ingester turns parsed sales rows into recorded sales. Rows are grouped by
// receipt into one sale each. Products are resolved by barcode, then by name,
// and finally auto-created with an IsUnmatched flag so the owner can review
// them later.
type Ingester struct {
	reader *Reader
	store  catalog.Store
	cache  cache.CatalogCache
	log    zerolog.Logger
}

func NewIngester(store catalog.Store, catalogCache cache.CatalogCache) *Ingester {
	if catalogCache == nil {
		catalogCache = cache.NoopCatalogCache{}
	}
	return &Ingester{
		reader: NewReader(),
		store:  store,
		cache:  catalogCache,
		log:    logger.WithComponent("sales-ingester"),
	}
}

// IngestFile reads the CSV at path and ingests every parseable row.
func (g *Ingester) IngestFile(ctx context.Context, path, storeID string) (*Summary, error) {
	const op = "IngestFile"

	rows, err := g.reader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return g.Ingest(ctx, storeID, rows)
}

// Ingest records the rows as sales and adjusts inventory. Inventory is only
// decremented for products whose initial stock has been set; everything else
// is treated as "not tracked yet". Quantities clamp at zero rather than
// going negative.
func (g *Ingester) Ingest(ctx context.Context, storeID string, rows []models.SalesRow) (*Summary, error) {
	const op = "Ingest"

	for _, row := range rows {
		if row.Quantity < 0 || row.UnitPrice < 0 {
			return nil, fmt.Errorf("%s: row for %q: %w", op, row.ProductName, ErrInvalidStock)
		}
	}

	summary := &Summary{}
	catalogChanged := false
	for _, group := range groupByReceipt(rows) {
		sale := models.Sale{
			StoreID:   storeID,
			ReceiptID: group.receiptID,
		}

		for _, row := range group.rows {
			product, created, changed, err := g.resolveProduct(ctx, storeID, row)
			if err != nil {
				return summary, fmt.Errorf("%s: resolving %q: %w", op, row.ProductName, err)
			}
			if created {
				summary.ProductsCreated++
			}
			if changed {
				catalogChanged = true
			}

			adjusted, err := g.decrementStock(ctx, storeID, product, row.Quantity)
			if err != nil {
				return summary, fmt.Errorf("%s: adjusting stock for %q: %w", op, product.Name, err)
			}
			if adjusted {
				summary.StockAdjusted++
			}

			sale.Lines = append(sale.Lines, models.SaleLine{
				ProductID: product.ID,
				Quantity:  row.Quantity,
				UnitPrice: row.UnitPrice,
			})
			sale.Total += row.Quantity * row.UnitPrice
			if sale.SoldAt == nil && row.SoldAt != nil {
				sale.SoldAt = row.SoldAt
			}
			summary.RowsIngested++
		}

		if _, err := g.store.CreateSale(ctx, sale); err != nil {
			return summary, fmt.Errorf("%s: recording sale %s: %w", op, sale.ReceiptID, err)
		}
		summary.Sales++
	}

	if catalogChanged {
		if err := g.cache.Invalidate(ctx, storeID); err != nil {
			g.log.Warn().Err(err).Str("store_id", storeID).Msg("failed to invalidate catalog cache")
		}
	}

	g.log.Info().
		Str("store_id", storeID).
		Int("sales", summary.Sales).
		Int("rows", summary.RowsIngested).
		Int("products_created", summary.ProductsCreated).
		Int("stock_adjusted", summary.StockAdjusted).
		Msg("sales export ingested")
	return summary, nil
}

// resolveProduct finds the catalog product for a row: exact barcode first,
// then case-insensitive name. A name match back-fills the barcode when the
// row carries one the product lacks. When nothing matches a new product is
// created flagged IsUnmatched, with an estimated cost and a stable
// synthesized barcode. changed reports whether the catalog was mutated, so
// the caller knows to invalidate any cached copy.
func (g *Ingester) resolveProduct(ctx context.Context, storeID string, row models.SalesRow) (product *models.CatalogProduct, created, changed bool, err error) {
	if row.Barcode != "" {
		product, err := g.store.FindByBarcode(ctx, storeID, row.Barcode)
		if err == nil {
			return product, false, false, nil
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, false, false, err
		}
	}

	if row.ProductName != "" {
		product, err := g.store.FindByName(ctx, storeID, row.ProductName)
		if err == nil {
			if row.Barcode != "" && product.Barcode == nil {
				if err := g.store.UpdateBarcode(ctx, product.ID, row.Barcode); err != nil {
					return nil, false, false, err
				}
				product.Barcode = &row.Barcode
				return product, false, true, nil
			}
			return product, false, false, nil
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return nil, false, false, err
		}
	}

	barcode := row.Barcode
	if barcode == "" {
		barcode = synthesizeBarcode(row.ProductName)
	}
	name := row.ProductName
	if name == "" {
		name = "Unknown item " + row.Barcode
	}

	product, err = g.store.Create(ctx, models.CatalogProduct{
		StoreID:      storeID,
		Name:         name,
		Barcode:      &barcode,
		CostPrice:    row.UnitPrice * estimatedCostRatio,
		SellingPrice: row.UnitPrice,
		IsUnmatched:  true,
	})
	if err != nil {
		return nil, false, false, err
	}

	g.log.Info().
		Str("product", name).
		Str("barcode", barcode).
		Msg("created unmatched product from sales row")
	return product, true, true, nil
}

// decrementStock lowers the latest quantity in place. Products without a
// confirmed initial stock are never decremented. Reports whether the stock
// was adjusted.
func (g *Ingester) decrementStock(ctx context.Context, storeID string, product *models.CatalogProduct, sold float64) (bool, error) {
	if product.InitialStock == nil {
		return false, nil
	}

	previous := *product.InitialStock
	snap, err := g.store.LatestSnapshot(ctx, product.ID)
	switch {
	case err == nil:
		previous = snap.Quantity
	case errors.Is(err, catalog.ErrNotFound):
		// Fall back to the confirmed initial stock and seed the ledger.
		if _, err := g.store.AppendSnapshot(ctx, storeID, product.ID, previous); err != nil {
			return false, err
		}
	default:
		return false, err
	}

	remaining := previous - sold
	if remaining < 0 {
		remaining = 0
	}
	return true, g.store.UpdateLatest(ctx, product.ID, remaining)
}

type receiptGroup struct {
	receiptID string
	rows      []models.SalesRow
}

// groupByReceipt buckets rows per receipt, preserving file order. Rows
// without a receipt identifier each become their own single-row sale under a
// generated one.
func groupByReceipt(rows []models.SalesRow) []receiptGroup {
	index := make(map[string]int)
	groups := make([]receiptGroup, 0, len(rows))

	for _, row := range rows {
		key := row.ReceiptID
		if key == "" {
			key = uuid.NewString()
		}
		at, ok := index[key]
		if !ok {
			at = len(groups)
			index[key] = at
			groups = append(groups, receiptGroup{receiptID: key})
		}
		groups[at].rows = append(groups[at].rows, row)
	}
	return groups
}

// synthesizeBarcode derives a stable pseudo-barcode from the product name so
// repeated imports of the same unknown product resolve to one catalog entry.
func synthesizeBarcode(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(name))))
	return fmt.Sprintf("UNM-%08X", h.Sum32())
}
