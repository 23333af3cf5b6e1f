package pipeline

import (
	"errors"
	"fmt"
)

// Common pipeline errors
var (
	// ErrInvoiceNotFound is returned when the referenced invoice does not exist.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrInvoiceConfirmed is returned when an operation targets an invoice
	// whose result has already been applied to inventory.
	ErrInvoiceConfirmed = errors.New("invoice already confirmed")

	// ErrInvoiceNotParsed is returned when a confirm targets an invoice
	// that has no usable parse result yet.
	ErrInvoiceNotParsed = errors.New("invoice has no parse result")
)

// PipelineError wraps errors with additional context about which stage of
// invoice processing failed.
type PipelineError struct {
	// Op is the operation that failed (e.g., "ProcessInvoice").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("pipeline: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("pipeline: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is.
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapPipelineError wraps an error as a PipelineError if it isn't already one.
func WrapPipelineError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return err
	}

	return &PipelineError{Op: op, Err: err, Details: details}
}
