package cache

import (
	"context"
	"time"

	"shopcore/pkg/models"
)

// CatalogCache caches a store's full product list so repeated matching runs
// do not reload the catalog on every invoice.
type CatalogCache interface {
	Get(ctx context.Context, storeID string) ([]models.CatalogProduct, bool, error)
	Set(ctx context.Context, storeID string, products []models.CatalogProduct, ttl time.Duration) error
	Invalidate(ctx context.Context, storeID string) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string) ([]models.CatalogProduct, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ []models.CatalogProduct, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
