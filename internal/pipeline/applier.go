package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"shopcore/internal/cache"
	"shopcore/internal/catalog"
	"shopcore/internal/logger"
	"shopcore/pkg/models"
)

// Applier commits a confirmed invoice to the catalog: it overwrites each
// matched product's cost price with the invoiced unit cost and appends an
// inventory snapshot with the received quantity on top of the latest count.
//
// Apply has no idempotency guard of its own. The orchestrator's CONFIRMED
// state transition is what prevents a second application of the same invoice.
type Applier struct {
	products catalog.CatalogStore
	ledger   catalog.InventoryLedger
	cache    cache.CatalogCache
	log      zerolog.Logger
}

func NewApplier(products catalog.CatalogStore, ledger catalog.InventoryLedger, catalogCache cache.CatalogCache) *Applier {
	if catalogCache == nil {
		catalogCache = cache.NoopCatalogCache{}
	}
	return &Applier{
		products: products,
		ledger:   ledger,
		cache:    catalogCache,
		log:      logger.WithComponent("applier"),
	}
}

// Apply processes items grouped by matched product so that duplicate lines
// for one product run in order against the same snapshot chain. Unmatched
// items are skipped; the caller resolves them before confirming or accepts
// that they are not received into inventory.
func (a *Applier) Apply(ctx context.Context, storeID string, items []models.MatchedLineItem) ([]models.AppliedUpdate, error) {
	const op = "Apply"

	groups := groupByProduct(items)
	updates := make([]models.AppliedUpdate, 0, len(items))

	for _, group := range groups {
		for _, item := range group.items {
			update, err := a.applyItem(ctx, storeID, group.productID, item)
			if err != nil {
				return updates, WrapPipelineError(op, err, "product "+group.productID)
			}
			updates = append(updates, *update)
		}
	}

	if len(updates) > 0 {
		if err := a.cache.Invalidate(ctx, storeID); err != nil {
			a.log.Warn().Err(err).Str("store_id", storeID).Msg("failed to invalidate catalog cache")
		}
	}

	a.log.Info().
		Str("store_id", storeID).
		Int("applied", len(updates)).
		Int("skipped", len(items)-len(updates)).
		Msg("inventory reconciliation applied")
	return updates, nil
}

func (a *Applier) applyItem(ctx context.Context, storeID, productID string, item models.MatchedLineItem) (*models.AppliedUpdate, error) {
	if err := a.products.UpdateCostPrice(ctx, productID, item.UnitCost); err != nil {
		return nil, err
	}

	previous := 0.0
	snap, err := a.ledger.LatestSnapshot(ctx, productID)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return nil, err
	}
	if snap != nil {
		previous = snap.Quantity
	}

	newQuantity := previous + item.Quantity
	if _, err := a.ledger.AppendSnapshot(ctx, storeID, productID, newQuantity); err != nil {
		return nil, err
	}

	name := ""
	if item.MatchedProductName != nil {
		name = *item.MatchedProductName
	}
	return &models.AppliedUpdate{
		ProductID:     productID,
		ProductName:   name,
		QuantityAdded: item.Quantity,
		NewCost:       item.UnitCost,
		NewQuantity:   newQuantity,
	}, nil
}

type productGroup struct {
	productID string
	items     []models.MatchedLineItem
}

// groupByProduct buckets matched items by product while preserving line
// order, so repeated lines for the same product stay serialized against the
// read-latest-then-append snapshot sequence. Unmatched items are dropped.
func groupByProduct(items []models.MatchedLineItem) []productGroup {
	index := make(map[string]int)
	groups := make([]productGroup, 0, len(items))

	for _, item := range items {
		if item.MatchedProductID == nil {
			continue
		}
		id := *item.MatchedProductID
		at, ok := index[id]
		if !ok {
			at = len(groups)
			index[id] = at
			groups = append(groups, productGroup{productID: id})
		}
		groups[at].items = append(groups[at].items, item)
	}
	return groups
}
