package errors

import "net/http"

// Code is the stable, caller-facing error identifier.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// settlement pipeline
	CodeInvalidBatch       Code = "INVALID_BATCH"
	CodePartialAggregation Code = "PARTIAL_AGGREGATION_FAILURE"
	CodeMalformedReference Code = "MALFORMED_REFERENCE"
	CodeUnknownSettlement  Code = "UNKNOWN_SETTLEMENT"
	CodeAmountMismatch     Code = "AMOUNT_MISMATCH"
)

// Metadata drives how a code is rendered at the HTTP edge.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type flag uint8

const (
	retryable flag = 1 << iota
	withDetails
)

func meta(status int, msg string, flags flag) Metadata {
	return Metadata{
		HTTPStatus:     status,
		Retryable:      flags&retryable != 0,
		PublicMessage:  msg,
		DetailsAllowed: flags&withDetails != 0,
	}
}

var registry = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", withDetails),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", 0),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", 0),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", 0),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", withDetails),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", withDetails),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),

	CodeInvalidBatch:       meta(http.StatusUnprocessableEntity, "debt batch is not eligible for settlement", withDetails),
	CodePartialAggregation: meta(http.StatusConflict, "settlement link created for a subset of debts", withDetails),
	CodeMalformedReference: meta(http.StatusUnprocessableEntity, "settlement reference is malformed", withDetails),
	CodeUnknownSettlement:  meta(http.StatusNotFound, "settlement link not found", withDetails),
	CodeAmountMismatch:     meta(http.StatusUnprocessableEntity, "confirmed amount does not match settlement", withDetails),
}

// MetadataFor falls back to CodeInternal for unregistered codes.
func MetadataFor(code Code) Metadata {
	if m, ok := registry[code]; ok {
		return m
	}
	return registry[CodeInternal]
}
