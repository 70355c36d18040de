package checker

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrTransientService marks failures that adapter boundaries may retry:
// throttling, timeouts, 5xx-class responses from the catalog, query engine
// or model collaborators. Wrap with errors.Wrap to add context.
var ErrTransientService = errors.New("transient service error")

// IsTransient reports whether err is retryable at an adapter boundary.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientService)
}

// ValidationError means the request could not be resolved from the payload
// and environment defaults. Fatal, 400-class, short-circuits the pipeline.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// MetadataNotFoundError means the catalog does not know the table or
// database. Fatal, 400-class, never retried.
type MetadataNotFoundError struct {
	Database string
	Table    string
}

func (e *MetadataNotFoundError) Error() string {
	return fmt.Sprintf("table %s.%s not found in catalog", e.Database, e.Table)
}

// SamplingError means a usable sample could not be obtained and the
// invocation required one. Fatal, 500-class.
type SamplingError struct {
	Database string
	Table    string
	Cause    error
}

func (e *SamplingError) Error() string {
	return fmt.Sprintf("sampling %s.%s failed: %v", e.Database, e.Table, e.Cause)
}

func (e *SamplingError) Unwrap() error { return e.Cause }

// PersistenceError means the compiled report could not be durably stored
// after retries. A report that cannot be stored is a hard failure.
type PersistenceError struct {
	Location string
	Cause    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting report to %s failed: %v", e.Location, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// ErrorType returns the taxonomy name for err, used in structured error
// responses.
func ErrorType(err error) string {
	var (
		ve *ValidationError
		me *MetadataNotFoundError
		se *SamplingError
		pe *PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		return "ValidationError"
	case errors.As(err, &me):
		return "MetadataNotFoundError"
	case errors.As(err, &se):
		return "SamplingError"
	case errors.As(err, &pe):
		return "PersistenceError"
	case IsTransient(err):
		return "TransientServiceError"
	default:
		return "InternalError"
	}
}

// StatusCode maps err to the invocation response status code.
func StatusCode(err error) int {
	switch ErrorType(err) {
	case "ValidationError", "MetadataNotFoundError":
		return 400
	default:
		return 500
	}
}
