package api

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies a pipeline failure. Every error crossing a layer
// boundary in the gateway is an *Error carrying one of these kinds; the kind
// alone determines the HTTP status.
type ErrorKind int

const (
	// KindSchemaCacheMissing: the schema snapshot has not loaded yet.
	KindSchemaCacheMissing ErrorKind = iota

	// KindConnectionLost: the database is unreachable.
	KindConnectionLost

	// KindInvalidRequest: malformed filters, bad payload, unusable Prefer.
	KindInvalidRequest

	// KindNotFound: unknown relation/procedure, or an (action, target)
	// combination outside the dispatch table.
	KindNotFound

	// KindJWT: missing or invalid bearer credentials.
	KindJWT

	// KindSingularityMismatch: a singular media type saw != 1 rows.
	KindSingularityMismatch

	// KindChangeLimitExceeded: a write touched more rows than allowed.
	KindChangeLimitExceeded

	// KindPutMatchingPk: an upsert's filter and payload did not resolve to
	// exactly one row.
	KindPutMatchingPk

	// KindBinaryField: a raw media type without a usable single-field
	// selection.
	KindBinaryField

	// KindDatabase: the statement itself failed.
	KindDatabase

	// KindMethodNotAllowed: the target's capability flags forbid the method.
	KindMethodNotAllowed
)

// Error is the single discriminated error value threaded through the request
// pipeline. Message is always safe to return to the client; Details may be
// withheld from anonymous callers.
type Error struct {
	Kind    ErrorKind
	Message string
	Details string
	Hint    string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus maps the error kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindSchemaCacheMissing, KindConnectionLost:
		return http.StatusServiceUnavailable
	case KindInvalidRequest, KindChangeLimitExceeded, KindPutMatchingPk:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindJWT:
		return http.StatusUnauthorized
	case KindSingularityMismatch, KindBinaryField:
		return http.StatusNotAcceptable
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindDatabase:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Unavailable reports whether the error denotes systemic unavailability,
// which obliges the driver to attach Retry-After and trigger reconnection.
func (e *Error) Unavailable() bool {
	return e.Kind == KindSchemaCacheMissing || e.Kind == KindConnectionLost
}

// ErrorBody is the JSON wire shape of an error response.
type ErrorBody struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Body returns the client-visible error document. Details and hint are
// stripped for anonymous callers on database errors so schema internals do
// not leak.
func (e *Error) Body(authenticated bool) ErrorBody {
	b := ErrorBody{Message: e.Message, Details: e.Details, Hint: e.Hint}
	if e.Kind == KindDatabase && !authenticated {
		b.Details = ""
		b.Hint = ""
	}
	return b
}

// NewSchemaCacheMissing reports that no schema snapshot is loaded.
func NewSchemaCacheMissing() *Error {
	return &Error{
		Kind:    KindSchemaCacheMissing,
		Message: "schema cache not loaded",
		Hint:    "retry after the service finishes connecting to the database",
	}
}

// NewConnectionLost wraps a failure to reach the database.
func NewConnectionLost(cause error) *Error {
	return &Error{
		Kind:    KindConnectionLost,
		Message: "database connection lost",
		cause:   cause,
	}
}

// NewInvalidRequest reports a malformed request element.
func NewInvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound reports an unknown or undispatched target.
func NewNotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewJWTError reports invalid credentials.
func NewJWTError(message string) *Error {
	return &Error{Kind: KindJWT, Message: message}
}

// NewSingularityError reports a singular-object response with the wrong
// cardinality.
func NewSingularityError(rows int64) *Error {
	return &Error{
		Kind:    KindSingularityMismatch,
		Message: "JSON object requested, multiple (or no) rows returned",
		Details: fmt.Sprintf("results contain %d rows, %s requires 1 row", rows, MediaSingularJSON),
	}
}

// NewChangeLimitError reports a write exceeding the configured row limit.
func NewChangeLimitError(rows, limit int64) *Error {
	return &Error{
		Kind:    KindChangeLimitExceeded,
		Message: fmt.Sprintf("query result exceeds max-changes limit %d", limit),
		Details: fmt.Sprintf("the query affects %d rows", rows),
	}
}

// NewPutMatchingPkError reports an upsert whose filter and payload disagree
// on the target row.
func NewPutMatchingPkError() *Error {
	return &Error{
		Kind:    KindPutMatchingPk,
		Message: "payload values do not match the URL query filters on the primary key",
	}
}

// NewBinaryFieldError reports a raw media type without exactly one concrete
// selected field.
func NewBinaryFieldError(media MediaType) *Error {
	return &Error{
		Kind:    KindBinaryField,
		Message: fmt.Sprintf("%s requested but a single column was not selected", media),
	}
}

// NewMethodNotAllowed reports a method the target's capabilities forbid.
func NewMethodNotAllowed(method, target string) *Error {
	return &Error{
		Kind:    KindMethodNotAllowed,
		Message: fmt.Sprintf("%s is not allowed on %q", method, target),
	}
}

// NewDatabaseError wraps a statement failure, preserving the server-side
// message while keeping positional detail in Details.
func NewDatabaseError(message, details, hint string, cause error) *Error {
	return &Error{
		Kind:    KindDatabase,
		Message: message,
		Details: details,
		Hint:    hint,
		cause:   cause,
	}
}
