// Package domain provides domain models used across the application.
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable, enumerated error classification. Kinds are
// namespaced by pipeline stage: fetch.*, parse.*, normalize.*, geocode.*,
// ai.*, validate.*, upsert.*, sink.*.
type ErrorKind string

const (
	// Fetch errors. Retriable except http_4xx (other than 408/429) and
	// robots_denied.
	ErrFetchDNS             ErrorKind = "fetch.dns"
	ErrFetchTCP             ErrorKind = "fetch.tcp"
	ErrFetchTLS             ErrorKind = "fetch.tls"
	ErrFetchTimeout         ErrorKind = "fetch.timeout"
	ErrFetchHTTP4xx         ErrorKind = "fetch.http_4xx"
	ErrFetchHTTP5xx         ErrorKind = "fetch.http_5xx"
	ErrFetchRobotsDenied    ErrorKind = "fetch.robots_denied"
	ErrFetchPayloadTooLarge ErrorKind = "fetch.payload_too_large"
	ErrFetchRenderFailure   ErrorKind = "fetch.render_failure"

	// Parse errors. Non-retriable within a run; degrade to the next stage.
	ErrParseMalformedJSON   ErrorKind = "parse.malformed_json"
	ErrParseMalformedHTML   ErrorKind = "parse.malformed_html"
	ErrParseMalformedLDJSON ErrorKind = "parse.malformed_ld_json"
	ErrParseSchemaMismatch  ErrorKind = "parse.schema_mismatch"

	// Normalize errors. Non-fatal; the field stays missing.
	ErrNormalizeUnparseableDate    ErrorKind = "normalize.unparseable_date"
	ErrNormalizeUnresolvedLocation ErrorKind = "normalize.unresolved_location"

	// Geocode errors. Non-fatal.
	ErrGeocodeRateLimited   ErrorKind = "geocode.rate_limited"
	ErrGeocodeNoResult      ErrorKind = "geocode.no_result"
	ErrGeocodeProviderError ErrorKind = "geocode.provider_error"

	// AI errors. Non-fatal; treated as no improvement.
	ErrAIBudgetExhausted     ErrorKind = "ai.budget_exhausted"
	ErrAIProviderError       ErrorKind = "ai.provider_error"
	ErrAIInvalidJSONResponse ErrorKind = "ai.invalid_json_response"

	// Validation errors. Per-job blocking; logged to failed_inserts with
	// operation=validation.
	ErrValidateMissingTitle     ErrorKind = "validate.missing_title"
	ErrValidateMissingURL       ErrorKind = "validate.missing_url"
	ErrValidateShortTitle       ErrorKind = "validate.short_title"
	ErrValidateInvalidURL       ErrorKind = "validate.invalid_url"
	ErrValidateDuplicateInBatch ErrorKind = "validate.duplicate_in_batch"

	// Upsert errors. Per-batch rollback then per-row retry.
	ErrUpsertSQLError            ErrorKind = "upsert.sql_error"
	ErrUpsertConstraintViolation ErrorKind = "upsert.constraint_violation"

	// Sink errors. Non-blocking; retried in the background.
	ErrSinkSearchUnavailable ErrorKind = "sink.search_unavailable"
)

// PipelineError carries a taxonomy kind alongside the underlying cause.
type PipelineError struct {
	Kind      ErrorKind
	Message   string
	Retriable bool
	Err       error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError builds a taxonomy error wrapping a cause.
func NewPipelineError(kind ErrorKind, retriable bool, err error) *PipelineError {
	pe := &PipelineError{Kind: kind, Retriable: retriable, Err: err}
	if err != nil {
		pe.Message = err.Error()
	}
	return pe
}

// KindOf extracts the taxonomy kind from an error chain, or "" when the
// error carries none.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsRetriable reports whether the error chain carries a retriable verdict.
// Errors without a taxonomy kind default to retriable.
func IsRetriable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retriable
	}
	return true
}
