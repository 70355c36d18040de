package aianalysis

import (
	"fmt"

	"github.com/pkg/errors"
)

// Failure modes of the model-inference collaborator. Everything here stays
// inside the agent boundary: callers only ever see an Insight with its Error
// field set.
var (
	ErrThrottled        = errors.New("model invocation throttled")
	ErrModelUnavailable = errors.New("model temporarily unavailable")
	ErrInvalidResponse  = errors.New("invalid response from model")
	ErrCircuitOpen      = errors.New("circuit breaker is open")
)

// APIError is a permanent, non-retryable model API failure.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("model API error (code=%d): %s", e.Code, e.Message)
}

// IsRetryable reports whether the failure is worth another attempt:
// throttling and transient unavailability are, malformed responses and
// permanent API errors are not.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrThrottled):
		return true
	case errors.Is(err, ErrModelUnavailable):
		return true
	default:
		return false
	}
}
