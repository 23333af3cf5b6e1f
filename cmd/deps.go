package cmd

import (
	"context"
	"fmt"

	"shopcore/internal/cache"
	"shopcore/internal/catalog"
	"shopcore/internal/catalog/memory"
	"shopcore/internal/catalog/postgres"
	"shopcore/internal/config"
	"shopcore/internal/extract"
	"shopcore/internal/logger"
	"shopcore/internal/ocr"
	"shopcore/internal/pipeline"
)

// deps bundles everything a command needs, plus close functions for the
// backends that hold connections.
type deps struct {
	cfg     *config.Config
	store   catalog.Store
	cache   cache.CatalogCache
	service *pipeline.Service
	closers []func() error
}

func (d *deps) Close() {
	log := logger.WithComponent("cmd")
	for _, closeFn := range d.closers {
		if err := closeFn(); err != nil {
			log.Warn().Err(err).Msg("failed to close backend")
		}
	}
}

// buildStoreDeps wires the catalog store (postgres, or the in-memory demo
// catalog when DATABASE_URL is unset) and the optional Redis catalog cache.
// Commands that never run extraction (sales, confirm) stop here and need no
// Google or OpenAI credentials.
func buildStoreDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	d := &deps{cfg: cfg}

	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		d.store = pg
		d.closers = append(d.closers, pg.Close)
	} else {
		log := logger.WithComponent("cmd")
		log.Warn().
			Str("store_id", cfg.DefaultStoreID).
			Msg("DATABASE_URL not set, using the in-memory demo catalog")
		d.store = memory.NewSeeded(cfg.DefaultStoreID)
	}

	d.cache = cache.NoopCatalogCache{}
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCatalogCache(cfg.RedisAddr, "", 0)
		if err := redisCache.Ping(ctx); err != nil {
			log := logger.WithComponent("cmd")
			log.Warn().Err(err).Msg("Redis unavailable, running without catalog cache")
		} else {
			d.cache = redisCache
			d.closers = append(d.closers, redisCache.Close)
		}
	}

	// Extractors are nil here. The confirm path only uses the state guard
	// and the applier, which never touch them.
	d.service = pipeline.NewService(nil, nil, d.store, d.cache, cfg.Thresholds)
	return d, nil
}

// buildPipelineDeps extends buildStoreDeps with Google Vision OCR and the
// configured structured extractor, for the commands that process documents.
func buildPipelineDeps(ctx context.Context) (*deps, error) {
	d, err := buildStoreDeps(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.cfg.ValidateExtraction(); err != nil {
		return nil, err
	}

	vision, err := ocr.NewGoogleVisionExtractor(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing Vision OCR: %w", err)
	}
	d.closers = append(d.closers, vision.Close)

	structured, err := buildStructuredExtractor(ctx, d.cfg)
	if err != nil {
		return nil, err
	}

	d.service = pipeline.NewService(vision, structured, d.store, d.cache, d.cfg.Thresholds)
	return d, nil
}

func buildStructuredExtractor(ctx context.Context, cfg *config.Config) (extract.StructuredExtractor, error) {
	switch cfg.Extractor {
	case "documentai":
		extractor, err := extract.NewDocumentAIExtractor(ctx, extract.DocumentAIConfig{
			ProjectID:   cfg.GoogleCloudProject,
			Location:    cfg.GoogleCloudLocation,
			ProcessorID: cfg.DocumentAIProcessorID,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing Document AI extractor: %w", err)
		}
		return extractor, nil
	default:
		completion := extract.DefaultCompletionConfig()
		if cfg.OpenAIModel != "" {
			completion.Model = cfg.OpenAIModel
		}
		completion.Temperature = cfg.OpenAITemperature

		extractor, err := extract.NewOpenAIExtractor(cfg.OpenAIAPIKey, completion)
		if err != nil {
			return nil, fmt.Errorf("initializing OpenAI extractor: %w", err)
		}
		return extractor, nil
	}
}
