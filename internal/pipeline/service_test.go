package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopcore/internal/catalog/memory"
	"shopcore/internal/config"
	"shopcore/internal/extract"
	"shopcore/internal/ocr"
	"shopcore/pkg/models"
)

type fakeOCR struct {
	text       string
	confidence float64
	err        error
}

func (f *fakeOCR) ExtractText(_ context.Context, _ io.Reader) (*ocr.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ocr.Result{Text: f.text, Confidence: f.confidence}, nil
}

type fakeParser struct {
	output *extract.Output
	err    error
}

func (f *fakeParser) ParseStructured(_ context.Context, _ extract.Input) (*extract.Output, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func writeDoc(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoice.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test document"), 0o644))
	return path
}

func findByBarcode(t *testing.T, store *memory.Store, barcode string) *models.CatalogProduct {
	t.Helper()
	p, err := store.FindByBarcode(context.Background(), "s1", barcode)
	require.NoError(t, err)
	return p
}

func TestProcessInvoiceParsedWhenConfident(t *testing.T) {
	store := memory.NewSeeded("s1")
	parser := &fakeParser{output: &extract.Output{
		Items: []models.ExtractedLineItem{
			{Description: "Cola 12oz case", UPC: strPtr("049000000443"), Quantity: 10, UnitCost: 0.55, LineTotal: 5.50},
			{Description: "Red Bull", UPC: strPtr("611269991000"), Quantity: 4, UnitCost: 1.45, LineTotal: 5.80},
		},
	}}
	svc := NewService(&fakeOCR{text: "raw invoice text", confidence: 0.95}, parser, store, nil, config.DefaultThresholds())

	invoice, err := svc.ProcessInvoice(context.Background(), writeDoc(t), "s1")
	require.NoError(t, err)
	require.NotNil(t, invoice.Result)

	assert.Equal(t, models.StatusParsed, invoice.Status)
	assert.False(t, invoice.Result.NeedsReview)
	// 0.95*0.4 + 0.99*0.6
	assert.InDelta(t, 0.974, invoice.Result.Confidence, 0.001)
	assert.Empty(t, invoice.Result.Anomalies)
	assert.Equal(t, "raw invoice text", invoice.Result.RawText)

	stored, err := store.GetInvoice(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusParsed, stored.Status)
}

func TestProcessInvoiceNeedsReviewOnLowConfidence(t *testing.T) {
	store := memory.NewSeeded("s1")
	parser := &fakeParser{output: &extract.Output{
		Items: []models.ExtractedLineItem{
			{Description: "Cola 12oz case", UPC: strPtr("049000000443"), Quantity: 10, UnitCost: 0.55, LineTotal: 5.50},
			{Description: "Imported Mystery Snack", Quantity: 6, UnitCost: 2.00, LineTotal: 12.00},
		},
	}}
	svc := NewService(&fakeOCR{text: "blurry scan", confidence: 0.8}, parser, store, nil, config.DefaultThresholds())

	invoice, err := svc.ProcessInvoice(context.Background(), writeDoc(t), "s1")
	require.NoError(t, err)
	require.NotNil(t, invoice.Result)

	assert.Equal(t, models.StatusNeedsReview, invoice.Status)
	assert.True(t, invoice.Result.NeedsReview)
	// 0.8*0.4 + ((0.99+0)/2)*0.6
	assert.InDelta(t, 0.617, invoice.Result.Confidence, 0.001)

	require.Len(t, invoice.Result.PricingAlerts, 1)
	assert.Equal(t, models.AlertNewProduct, invoice.Result.PricingAlerts[0].Type)
	require.Len(t, invoice.Result.Insights, 1)
	assert.Equal(t, models.InsightReorderSuggestion, invoice.Result.Insights[0].Type)
}

func TestProcessInvoiceOCRFailureIsTerminal(t *testing.T) {
	store := memory.NewSeeded("s1")
	svc := NewService(&fakeOCR{err: ocr.ErrExtractionFailed}, &fakeParser{output: &extract.Output{}}, store, nil, config.DefaultThresholds())

	invoice, err := svc.ProcessInvoice(context.Background(), writeDoc(t), "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ocr.ErrExtractionFailed)
	require.NotNil(t, invoice)
	assert.Equal(t, models.StatusError, invoice.Status)

	stored, getErr := store.GetInvoice(context.Background(), invoice.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusError, stored.Status)
}

func TestProcessInvoiceParserFailureIsTerminal(t *testing.T) {
	store := memory.NewSeeded("s1")
	svc := NewService(&fakeOCR{text: "text", confidence: 0.9}, &fakeParser{err: extract.ErrCompletionFailed}, store, nil, config.DefaultThresholds())

	invoice, err := svc.ProcessInvoice(context.Background(), writeDoc(t), "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, extract.ErrCompletionFailed)
	assert.Equal(t, models.StatusError, invoice.Status)
}

func TestProcessInvoiceFlagsDuplicate(t *testing.T) {
	store := memory.NewSeeded("s1")
	parser := &fakeParser{output: &extract.Output{
		Metadata: models.InvoiceMetadata{
			SupplierName:  strPtr("Acme Foods"),
			InvoiceNumber: strPtr("INV-100"),
		},
	}}
	svc := NewService(&fakeOCR{text: "text", confidence: 0.9}, parser, store, nil, config.DefaultThresholds())

	first, err := svc.ProcessInvoice(context.Background(), writeDoc(t), "s1")
	require.NoError(t, err)
	assert.Empty(t, first.Result.Anomalies)

	second, err := svc.ProcessInvoice(context.Background(), writeDoc(t), "s1")
	require.NoError(t, err)
	require.Len(t, second.Result.Anomalies, 1)
	assert.Equal(t, models.AnomalyDuplicateInvoice, second.Result.Anomalies[0].Type)
	assert.Equal(t, models.SeverityHigh, second.Result.Anomalies[0].Severity)
	assert.True(t, second.Result.NeedsReview)
}

func TestConfirmAppliesAndLocksInvoice(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSeeded("s1")
	parser := &fakeParser{output: &extract.Output{
		Items: []models.ExtractedLineItem{
			{Description: "Cola 12oz", UPC: strPtr("049000000443"), Quantity: 24, UnitCost: 0.60, LineTotal: 14.40},
		},
	}}
	svc := NewService(&fakeOCR{text: "text", confidence: 0.95}, parser, store, nil, config.DefaultThresholds())

	invoice, err := svc.ProcessInvoice(ctx, writeDoc(t), "s1")
	require.NoError(t, err)

	updates, err := svc.Confirm(ctx, invoice.ID, nil)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, 72.0, updates[0].NewQuantity) // 48 seeded + 24 received

	cola := findByBarcode(t, store, "049000000443")
	assert.Equal(t, 0.60, cola.CostPrice)

	stored, err := store.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	require.NotNil(t, stored.Result)
	assert.Len(t, stored.Result.InventoryUpdates, 1)

	snapshots := store.SnapshotCount(cola.ID)

	_, err = svc.Confirm(ctx, invoice.ID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvoiceConfirmed)
	assert.Equal(t, snapshots, store.SnapshotCount(cola.ID))
}

func TestConfirmWithResolvedItems(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSeeded("s1")
	parser := &fakeParser{output: &extract.Output{
		Items: []models.ExtractedLineItem{
			{Description: "mystery line", Quantity: 12, UnitCost: 1.50, LineTotal: 18.00},
		},
	}}
	svc := NewService(&fakeOCR{text: "text", confidence: 0.9}, parser, store, nil, config.DefaultThresholds())

	invoice, err := svc.ProcessInvoice(ctx, writeDoc(t), "s1")
	require.NoError(t, err)
	assert.Nil(t, invoice.Result.LineItems[0].MatchedProductID)

	// The owner resolves the unmatched line to a real product before confirming.
	chips := findByBarcode(t, store, "028400090896")
	resolved := invoice.Result.LineItems
	resolved[0].MatchedProductID = &chips.ID
	resolved[0].MatchedProductName = &chips.Name

	updates, err := svc.Confirm(ctx, invoice.ID, resolved)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, chips.ID, updates[0].ProductID)
	assert.Equal(t, 42.0, updates[0].NewQuantity) // 30 seeded + 12 received
}

func TestConfirmRejectsUnparsedInvoice(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSeeded("s1")
	svc := NewService(&fakeOCR{err: ocr.ErrExtractionFailed}, &fakeParser{output: &extract.Output{}}, store, nil, config.DefaultThresholds())

	invoice, err := svc.ProcessInvoice(ctx, writeDoc(t), "s1")
	require.Error(t, err)

	_, err = svc.Confirm(ctx, invoice.ID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvoiceNotParsed)
}

func TestConfirmUnknownInvoice(t *testing.T) {
	store := memory.NewSeeded("s1")
	svc := NewService(&fakeOCR{}, &fakeParser{}, store, nil, config.DefaultThresholds())

	_, err := svc.Confirm(context.Background(), "no-such-id", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestReprocessReplacesResult(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSeeded("s1")
	parser := &fakeParser{output: &extract.Output{}}
	svc := NewService(&fakeOCR{text: "text", confidence: 0.9}, parser, store, nil, config.DefaultThresholds())

	invoice, err := svc.ProcessInvoice(ctx, writeDoc(t), "s1")
	require.NoError(t, err)
	assert.Empty(t, invoice.Result.LineItems)

	// A better extraction pass finds the line item the first run missed.
	parser.output = &extract.Output{
		Items: []models.ExtractedLineItem{
			{Description: "Red Bull 8oz", UPC: strPtr("611269991000"), Quantity: 6, UnitCost: 1.45, LineTotal: 8.70},
		},
	}

	reprocessed, err := svc.Reprocess(ctx, invoice.ID)
	require.NoError(t, err)
	require.Len(t, reprocessed.Result.LineItems, 1)
	assert.Equal(t, invoice.ID, reprocessed.ID)
	assert.Equal(t, models.StatusParsed, reprocessed.Status)
}

func TestReprocessRejectedOnceConfirmed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSeeded("s1")
	parser := &fakeParser{output: &extract.Output{
		Items: []models.ExtractedLineItem{
			{Description: "Cola 12oz", UPC: strPtr("049000000443"), Quantity: 1, UnitCost: 0.55, LineTotal: 0.55},
		},
	}}
	svc := NewService(&fakeOCR{text: "text", confidence: 0.95}, parser, store, nil, config.DefaultThresholds())

	invoice, err := svc.ProcessInvoice(ctx, writeDoc(t), "s1")
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, invoice.ID, nil)
	require.NoError(t, err)

	_, err = svc.Reprocess(ctx, invoice.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvoiceConfirmed)

	var pipeErr *PipelineError
	assert.True(t, errors.As(err, &pipeErr))
}

func TestOverallConfidenceNoItems(t *testing.T) {
	assert.InDelta(t, 0.36, overallConfidence(0.9, nil), 0.001)
}

func TestServiceGenerateInsights(t *testing.T) {
	store := memory.NewSeeded("s1")
	svc := NewService(&fakeOCR{}, &fakeParser{}, store, nil, config.DefaultThresholds())

	items := []models.MatchedLineItem{
		{ExtractedLineItem: models.ExtractedLineItem{Description: "Mystery snack", Quantity: 2, UnitCost: 1.10, LineTotal: 2.20}},
	}
	alerts := []models.PricingAlert{
		{Type: models.AlertMarginCompression, Severity: models.SeverityMedium},
	}

	insights := svc.GenerateInsights(items, alerts)
	require.Len(t, insights, 2)
	assert.Equal(t, models.InsightReorderSuggestion, insights[0].Type)
	assert.Equal(t, models.InsightMarginAlert, insights[1].Type)
}
