package sampler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/datalith/dq-check-workflow/checker"
)

// QueryEngine is the external collaborator that materializes bounded row
// samples. The query it issues must be a LIMIT-bounded sample, never a full
// scan.
type QueryEngine interface {
	RunSampleQuery(ctx context.Context, md *checker.TableMetadata, limit int) ([]checker.Row, error)
}

// Sampler issues one sample query with retry protection. A transient failure
// that survives all retries degrades to an empty dataset plus a recoverable
// warning unless RequireRows is set, in which case it is a fatal
// SamplingError.
type Sampler struct {
	engine      QueryEngine
	maxAttempts int
	baseDelay   time.Duration
	requireRows bool
}

type Option func(*Sampler)

// WithRetry overrides the attempt count and initial backoff delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(s *Sampler) {
		s.maxAttempts = maxAttempts
		s.baseDelay = baseDelay
	}
}

// RequireRows makes an unobtainable sample fatal instead of degrading to an
// empty dataset.
func RequireRows() Option {
	return func(s *Sampler) { s.requireRows = true }
}

func New(engine QueryEngine, opts ...Option) *Sampler {
	s := &Sampler{
		engine:      engine,
		maxAttempts: 3,
		baseDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample returns the bounded dataset plus any recoverable warnings. The
// returned dataset is never nil on a nil error.
func (s *Sampler) Sample(ctx context.Context, md *checker.TableMetadata, sampleSize int) (*checker.SampleDataset, []string, error) {
	if sampleSize <= 0 {
		sampleSize = 1000
	}

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.baseDelay * time.Duration(1<<(attempt-1))
			log.Printf("Retrying sample query for %s.%s after %v (attempt %d/%d)",
				md.Database, md.Table, delay, attempt+1, s.maxAttempts)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}

		rows, err := s.engine.RunSampleQuery(ctx, md, sampleSize)
		if err == nil {
			log.Printf("Sampled %d rows from %s.%s (limit %d)", len(rows), md.Database, md.Table, sampleSize)
			return &checker.SampleDataset{Rows: rows, RowCount: len(rows)}, nil, nil
		}

		lastErr = err
		if !checker.IsTransient(err) {
			break
		}
	}

	if s.requireRows {
		return nil, nil, &checker.SamplingError{Database: md.Database, Table: md.Table, Cause: lastErr}
	}

	warning := fmt.Sprintf("sample query for %s.%s failed after %d attempts, proceeding with empty sample: %v",
		md.Database, md.Table, s.maxAttempts, lastErr)
	log.Printf("WARNING: %s", warning)
	return &checker.SampleDataset{Rows: nil, RowCount: 0}, []string{warning}, nil
}
