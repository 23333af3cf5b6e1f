package ocr

import (
	"errors"
	"fmt"
)

// Common text extraction errors
var (
	// ErrDocumentTooLarge is returned when the document exceeds the maximum
	// file size limit for synchronous processing.
	ErrDocumentTooLarge = errors.New("document exceeds the maximum size limit (20MB)")

	// ErrUnreadableDocument is returned when the provided data is not a
	// supported document format (PDF, TIFF, JPEG, PNG).
	ErrUnreadableDocument = errors.New("unreadable or unsupported document")

	// ErrExtractionFailed is returned when the OCR engine fails to process
	// the document.
	ErrExtractionFailed = errors.New("text extraction failed")

	// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
	// nor GOOGLE_CREDENTIALS environment variables are configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrTooManyPages is returned when a PDF has too many pages for
	// synchronous processing.
	ErrTooManyPages = errors.New("document has too many pages (maximum 5 pages for synchronous processing)")

	// ErrEmptyDocument is returned when the document contains no readable text.
	ErrEmptyDocument = errors.New("document contains no readable text")
)

// ExtractionError wraps errors with additional context about the extraction
// failure.
type ExtractionError struct {
	// Op is the operation that failed (e.g., "ExtractText").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is.
func (e *ExtractionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapExtractionError wraps an error as an ExtractionError if it isn't
// already one.
func WrapExtractionError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return err
	}

	return &ExtractionError{Op: op, Err: err, Details: details}
}
