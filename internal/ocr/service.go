// Package ocr wraps an OCR engine behind a small capability interface so the
// invoice pipeline never depends on a concrete engine client.
//
// The production implementation uses Google Cloud Vision document text
// detection and supports scanned PDFs as well as photographed invoices
// (JPEG/PNG). Confidence is the engine's native quality score normalized to
// the 0.0-1.0 range.
//
// Required Environment Variables (Google Vision implementation):
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//
// Cloud Vision API Limitations:
//   - Maximum file size: 20MB for synchronous processing
//   - Maximum pages: 5 pages for synchronous PDF processing
package ocr

import (
	"context"
	"io"
	"time"
)

// TextExtractor turns a scanned or photographed document into raw text plus
// a scalar confidence. A failure here is terminal for the invoice pipeline;
// there is no automatic retry.
type TextExtractor interface {
	// ExtractText reads one document and returns the recognized text with
	// metadata. The document is read fully into memory.
	ExtractText(ctx context.Context, doc io.Reader) (*Result, error)
}

// Result contains the outcome of one text extraction.
type Result struct {
	// Text is the recognized text from all pages, concatenated in reading
	// order.
	Text string `json:"text"`

	// Confidence is the average recognition confidence normalized to
	// 0.0-1.0. Higher values indicate more reliable text detection.
	Confidence float64 `json:"confidence"`

	// PageCount is the number of pages that were processed (1 for images).
	PageCount int `json:"page_count"`

	// LanguageCodes contains the languages detected in the document.
	LanguageCodes []string `json:"language_codes,omitempty"`

	// ProcessedAt is the timestamp when the extraction completed.
	ProcessedAt time.Time `json:"processed_at"`

	// ProcessingDuration is how long the extraction took.
	ProcessingDuration time.Duration `json:"processing_duration"`
}
