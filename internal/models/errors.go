package models

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds surfaced by the pipeline
var (
	ErrValidation = errors.New("validation error")
	ErrParse      = errors.New("parse error")
	ErrExtraction = errors.New("extraction error")
	ErrAdapter    = errors.New("adapter error")
	ErrSink       = errors.New("sink error")
	ErrTimeout    = errors.New("timeout")
	ErrCancelled  = errors.New("cancelled")

	// Adapter failures
	ErrUnsupportedSupplier = fmt.Errorf("%w: unsupported supplier", ErrAdapter)
	ErrInvoiceParse        = fmt.Errorf("%w: no invoice lines could be parsed", ErrAdapter)
)

// ErrorKind is the stable, serializable name of an error class
type ErrorKind string

const (
	KindValidation ErrorKind = "validation_error"
	KindParse      ErrorKind = "parse_error"
	KindExtraction ErrorKind = "extraction_error"
	KindAdapter    ErrorKind = "adapter_error"
	KindSink       ErrorKind = "sink_error"
	KindTimeout    ErrorKind = "timeout_error"
	KindCancelled  ErrorKind = "cancelled"
	KindMismatch   ErrorKind = "line_mismatch"
	KindDuplicate  ErrorKind = "duplicate"
	KindNotice     ErrorKind = "notice"
)

// KindOf classifies err. Explicit kinds win over the context errors they may wrap,
// so an LLM call that timed out and was wrapped in ErrExtraction stays an extraction error.
// Unclassified errors come from downstream writers and are reported as sink errors.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, ErrExtraction):
		return KindExtraction
	case errors.Is(err, ErrAdapter):
		return KindAdapter
	case errors.Is(err, ErrSink):
		return KindSink
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindSink
	}
}

// ValidationError reports a violated invariant on a canonical record
type ValidationError struct {
	Entity  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(entity, field, msg string) error {
	return &ValidationError{Entity: entity, Field: field, Message: msg}
}
