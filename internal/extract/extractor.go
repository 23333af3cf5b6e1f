// Package extract turns raw invoice text into typed metadata and line items.
//
// Two implementations are provided: an OpenAI chat-completion extractor that
// prompts a language model for a JSON payload, and a Google Document AI
// extractor that walks the invoice processor's entities. Both are tolerant of
// partial data; every metadata field is independently nullable.
package extract

import (
	"context"
	"errors"
	"fmt"

	"shopcore/pkg/models"
)

// Input carries the material available to a structured extractor. RawText is
// always set after OCR; Document holds the original bytes for extractors that
// reprocess the source directly (Document AI).
type Input struct {
	RawText  string
	Document []byte
	MimeType string
}

// Output is the result of one structured extraction pass.
type Output struct {
	Metadata models.InvoiceMetadata
	Items    []models.ExtractedLineItem

	// Degraded is set when the underlying model responded but its output
	// could not be decoded, and the extractor fell back to empty results.
	// The pipeline continues; confidence drops naturally.
	Degraded bool
}

// StructuredExtractor parses invoice text into typed data. A returned error
// means the underlying service call itself failed and the pipeline run must
// abort; malformed-but-received output is never an error, it degrades to an
// empty Output with Degraded set.
type StructuredExtractor interface {
	ParseStructured(ctx context.Context, in Input) (*Output, error)
}

// Common extraction errors
var (
	// ErrCompletionFailed is returned when the language model call fails
	// after all retries. Fatal to the current pipeline run.
	ErrCompletionFailed = errors.New("structured extraction call failed")

	// ErrMalformedOutput marks model output that could not be decoded as the
	// expected JSON payload. It is handled inside the extractors and only
	// surfaces in logs, never to callers.
	ErrMalformedOutput = errors.New("malformed structured output")

	// ErrMissingAPIKey is returned when no OpenAI API key is configured.
	ErrMissingAPIKey = errors.New("missing OpenAI API key: set OPENAI_API_KEY environment variable")
)

// ExtractorError wraps errors with additional context about the extraction
// failure.
type ExtractorError struct {
	// Op is the operation that failed (e.g., "ParseStructured").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *ExtractorError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("extract: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("extract: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExtractorError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is.
func (e *ExtractorError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapExtractorError wraps an error as an ExtractorError if it isn't already one.
func WrapExtractorError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var exErr *ExtractorError
	if errors.As(err, &exErr) {
		return err
	}

	return &ExtractorError{Op: op, Err: err, Details: details}
}

// EmptyOutput returns a degraded Output with all-null metadata and no items.
func EmptyOutput() *Output {
	return &Output{Metadata: models.InvoiceMetadata{}, Items: nil, Degraded: true}
}
