package catalog

import (
	"context"
	"log"
	"time"

	"github.com/datalith/dq-check-workflow/checker"
)

// Client fetches table schemas from the external catalog.
type Client interface {
	GetTableMetadata(ctx context.Context, database, table string) (*checker.TableMetadata, error)
}

// RetryingClient wraps a Client with exponential backoff for transient
// catalog failures. Not-found errors fail immediately.
type RetryingClient struct {
	inner       Client
	maxAttempts int
	baseDelay   time.Duration
}

// NewRetryingClient creates a retrying catalog client. Zero values fall back
// to 3 attempts starting at one second.
func NewRetryingClient(inner Client, maxAttempts int, baseDelay time.Duration) *RetryingClient {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &RetryingClient{
		inner:       inner,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

func (c *RetryingClient) GetTableMetadata(ctx context.Context, database, table string) (*checker.TableMetadata, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(1<<(attempt-1))
			log.Printf("Retrying catalog fetch for %s.%s after %v (attempt %d/%d)",
				database, table, delay, attempt+1, c.maxAttempts)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		md, err := c.inner.GetTableMetadata(ctx, database, table)
		if err == nil {
			return md, nil
		}

		lastErr = err
		if !checker.IsTransient(err) {
			return nil, err
		}
	}

	return nil, lastErr
}
