// Package pipeline runs the invoice reconciliation flow: OCR text extraction,
// structured parsing, catalog matching, pricing alerts, total validation,
// insight generation, and the explicit confirm step that commits the result
// to inventory.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shopcore/internal/cache"
	"shopcore/internal/catalog"
	"shopcore/internal/config"
	"shopcore/internal/extract"
	"shopcore/internal/logger"
	"shopcore/internal/ocr"
	"shopcore/pkg/models"
)

// Weights combining OCR quality and match quality into one overall score.
const (
	ocrConfidenceWeight   = 0.4
	matchConfidenceWeight = 0.6

	catalogCacheTTL = 5 * time.Minute
)

// Service orchestrates the invoice state machine:
//
//	PROCESSING -> PARSED | NEEDS_REVIEW | ERROR -> CONFIRMED (terminal)
//
// Reprocessing is allowed from any non-CONFIRMED state and discards the
// previous run's result. Confirm is the only transition that writes to the
// catalog and the ledger, and it is rejected once an invoice is CONFIRMED.
type Service struct {
	ocr        ocr.TextExtractor
	extractor  extract.StructuredExtractor
	store      catalog.Store
	cache      cache.CatalogCache
	applier    *Applier
	alerts     *AlertEngine
	thresholds config.Thresholds
	log        zerolog.Logger
}

func NewService(textExtractor ocr.TextExtractor, structured extract.StructuredExtractor, store catalog.Store, catalogCache cache.CatalogCache, thresholds config.Thresholds) *Service {
	if catalogCache == nil {
		catalogCache = cache.NoopCatalogCache{}
	}
	return &Service{
		ocr:        textExtractor,
		extractor:  structured,
		store:      store,
		cache:      catalogCache,
		applier:    NewApplier(store, store, catalogCache),
		alerts:     NewAlertEngine(thresholds),
		thresholds: thresholds,
		log:        logger.WithComponent("pipeline"),
	}
}

// ProcessInvoice registers a new invoice for the document at path and runs the
// full pipeline against it. The returned invoice carries the final status; on
// adapter failure the status is ERROR and the error is also returned.
func (s *Service) ProcessInvoice(ctx context.Context, path, storeID string) (*models.Invoice, error) {
	const op = "ProcessInvoice"

	invoice, err := s.store.CreateInvoice(ctx, models.Invoice{
		StoreID:    storeID,
		SourcePath: path,
		Status:     models.StatusProcessing,
	})
	if err != nil {
		return nil, WrapPipelineError(op, err, "creating invoice record")
	}

	return s.run(ctx, op, invoice)
}

// Reprocess discards the previous result and re-runs the pipeline against the
// invoice's stored source document. Rejected once the invoice is CONFIRMED.
func (s *Service) Reprocess(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	const op = "Reprocess"

	invoice, err := s.getInvoice(ctx, op, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == models.StatusConfirmed {
		return nil, WrapPipelineError(op, ErrInvoiceConfirmed, "invoice "+invoiceID)
	}

	// Discard the previous run's result before re-running so a failed
	// re-run cannot leave stale line items behind.
	invoice.Result = nil
	if err := s.store.SaveInvoiceResult(ctx, invoice.ID, models.StatusProcessing, nil); err != nil {
		return nil, WrapPipelineError(op, err, "resetting invoice state")
	}
	invoice.Status = models.StatusProcessing

	return s.run(ctx, op, invoice)
}

// Confirm applies a parsed invoice to the catalog and the inventory ledger,
// then transitions it to CONFIRMED. When items is non-nil it replaces the
// stored line items, letting the caller resolve unmatched lines before
// committing. A second confirm is rejected here; the applier itself performs
// no idempotency check.
func (s *Service) Confirm(ctx context.Context, invoiceID string, items []models.MatchedLineItem) ([]models.AppliedUpdate, error) {
	const op = "Confirm"

	invoice, err := s.getInvoice(ctx, op, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == models.StatusConfirmed {
		return nil, WrapPipelineError(op, ErrInvoiceConfirmed, "invoice "+invoiceID)
	}
	if invoice.Result == nil || invoice.Status == models.StatusProcessing || invoice.Status == models.StatusError {
		return nil, WrapPipelineError(op, ErrInvoiceNotParsed, "invoice "+invoiceID)
	}

	if items != nil {
		invoice.Result.LineItems = items
	}

	updates, err := s.applier.Apply(ctx, invoice.StoreID, invoice.Result.LineItems)
	if err != nil {
		return updates, WrapPipelineError(op, err, "applying inventory updates")
	}
	invoice.Result.InventoryUpdates = updates

	if err := s.store.SaveInvoiceResult(ctx, invoice.ID, models.StatusConfirmed, invoice.Result); err != nil {
		return updates, WrapPipelineError(op, err, "persisting confirmation")
	}

	s.log.Info().
		Str("invoice_id", invoice.ID).
		Int("updates", len(updates)).
		Msg("invoice confirmed")
	return updates, nil
}

// GetInvoice returns the current state of one invoice.
func (s *Service) GetInvoice(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	return s.getInvoice(ctx, "GetInvoice", invoiceID)
}

// MatchProducts resolves items against the store's current catalog.
func (s *Service) MatchProducts(ctx context.Context, storeID string, items []models.ExtractedLineItem) ([]models.MatchedLineItem, error) {
	products, err := s.loadCatalog(ctx, storeID)
	if err != nil {
		return nil, WrapPipelineError("MatchProducts", err, "loading catalog")
	}
	return MatchItems(items, products), nil
}

// DetectPricingAlerts evaluates matched items against the catalog baseline.
func (s *Service) DetectPricingAlerts(ctx context.Context, storeID string, items []models.MatchedLineItem) ([]models.PricingAlert, error) {
	products, err := s.loadCatalog(ctx, storeID)
	if err != nil {
		return nil, WrapPipelineError("DetectPricingAlerts", err, "loading catalog")
	}
	return s.alerts.DetectAlerts(items, products), nil
}

// ValidateTotals cross-checks invoice arithmetic.
func (s *Service) ValidateTotals(metadata models.InvoiceMetadata, items []models.MatchedLineItem) []models.Anomaly {
	return s.alerts.ValidateTotals(metadata, items)
}

// GenerateInsights summarizes matched items and alerts into actionable suggestions.
func (s *Service) GenerateInsights(items []models.MatchedLineItem, alerts []models.PricingAlert) []models.BusinessInsight {
	return GenerateInsights(items, alerts)
}

// run executes the pipeline steps for an invoice already in PROCESSING state.
func (s *Service) run(ctx context.Context, op string, invoice *models.Invoice) (*models.Invoice, error) {
	result, err := s.execute(ctx, invoice)
	if err != nil {
		if stErr := s.store.SetInvoiceStatus(ctx, invoice.ID, models.StatusError); stErr != nil {
			s.log.Error().Err(stErr).Str("invoice_id", invoice.ID).Msg("failed to record ERROR state")
		}
		invoice.Status = models.StatusError
		return invoice, WrapPipelineError(op, err, "invoice "+invoice.ID)
	}

	status := models.StatusParsed
	if result.NeedsReview {
		status = models.StatusNeedsReview
	}
	if err := s.store.SaveInvoiceResult(ctx, invoice.ID, status, result); err != nil {
		return invoice, WrapPipelineError(op, err, "persisting result")
	}
	invoice.Status = status
	invoice.Result = result

	s.log.Info().
		Str("invoice_id", invoice.ID).
		Str("status", string(status)).
		Float64("confidence", result.Confidence).
		Int("line_items", len(result.LineItems)).
		Int("anomalies", len(result.Anomalies)).
		Msg("invoice processed")
	return invoice, nil
}

// execute runs extract -> parse -> match -> alerts -> totals -> insights.
// Only the two adapter calls can fail; everything after them is pure
// computation over already-extracted data.
func (s *Service) execute(ctx context.Context, invoice *models.Invoice) (*models.InvoiceParseResult, error) {
	document, err := os.ReadFile(invoice.SourcePath)
	if err != nil {
		return nil, err
	}

	ocrResult, err := s.ocr.ExtractText(ctx, bytes.NewReader(document))
	if err != nil {
		return nil, err
	}

	parsed, err := s.extractor.ParseStructured(ctx, extract.Input{
		RawText:  ocrResult.Text,
		Document: document,
	})
	if err != nil {
		return nil, err
	}

	products, err := s.loadCatalog(ctx, invoice.StoreID)
	if err != nil {
		return nil, err
	}

	matched := MatchItems(parsed.Items, products)
	alerts := s.alerts.DetectAlerts(matched, products)
	anomalies := s.alerts.ValidateTotals(parsed.Metadata, matched)
	anomalies = append(anomalies, s.duplicateCheck(ctx, invoice, parsed.Metadata)...)
	insights := GenerateInsights(matched, alerts)

	confidence := overallConfidence(ocrResult.Confidence, matched)
	return &models.InvoiceParseResult{
		Metadata:         parsed.Metadata,
		LineItems:        matched,
		PricingAlerts:    alerts,
		Anomalies:        anomalies,
		Insights:         insights,
		RawText:          ocrResult.Text,
		Confidence:       confidence,
		NeedsReview:      confidence < s.thresholds.Review || len(anomalies) > 0,
		InventoryUpdates: []models.AppliedUpdate{},
	}, nil
}

// duplicateCheck flags an invoice whose supplier and invoice number already
// exist on a previous non-ERROR invoice for the same store.
func (s *Service) duplicateCheck(ctx context.Context, invoice *models.Invoice, metadata models.InvoiceMetadata) []models.Anomaly {
	if metadata.SupplierName == nil || metadata.InvoiceNumber == nil {
		return nil
	}

	prior, err := s.store.FindInvoiceByNumber(ctx, invoice.StoreID, *metadata.SupplierName, *metadata.InvoiceNumber)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			s.log.Warn().Err(err).Str("invoice_id", invoice.ID).Msg("duplicate lookup failed")
		}
		return nil
	}
	if prior.ID == invoice.ID {
		return nil
	}

	return []models.Anomaly{{
		Type: models.AnomalyDuplicateInvoice,
		Message: "invoice " + *metadata.InvoiceNumber + " from " +
			strings.TrimSpace(*metadata.SupplierName) + " was already processed",
		Severity: models.SeverityHigh,
	}}
}

func (s *Service) getInvoice(ctx context.Context, op, invoiceID string) (*models.Invoice, error) {
	invoice, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, WrapPipelineError(op, ErrInvoiceNotFound, "invoice "+invoiceID)
		}
		return nil, WrapPipelineError(op, err, "loading invoice")
	}
	return invoice, nil
}

// loadCatalog reads the store's product list, preferring the cache. A cache
// failure falls back to the store; matching never fails on cache trouble.
func (s *Service) loadCatalog(ctx context.Context, storeID string) ([]models.CatalogProduct, error) {
	products, hit, err := s.cache.Get(ctx, storeID)
	if err != nil {
		s.log.Warn().Err(err).Str("store_id", storeID).Msg("catalog cache read failed")
	}
	if hit {
		return products, nil
	}

	products, err = s.store.ListAll(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, storeID, products, catalogCacheTTL); err != nil {
		s.log.Warn().Err(err).Str("store_id", storeID).Msg("catalog cache write failed")
	}
	return products, nil
}

// overallConfidence blends OCR quality with how well the line items matched.
// With no line items the average match confidence is zero and the score is
// driven entirely by OCR quality.
func overallConfidence(ocrConfidence float64, items []models.MatchedLineItem) float64 {
	avg := 0.0
	if len(items) > 0 {
		sum := 0.0
		for _, item := range items {
			sum += item.Confidence
		}
		avg = sum / float64(len(items))
	}
	return ocrConfidence*ocrConfidenceWeight + avg*matchConfidenceWeight
}
