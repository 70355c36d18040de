package aianalysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/datalith/dq-check-workflow/checker"
	"github.com/datalith/dq-check-workflow/checks"
)

const systemPrompt = "You are a data quality expert. Analyze the column profile and sample rows below " +
	"and provide a concise narrative of data characteristics, likely quality issues, and suggested checks."

// Insight is the agent's only output shape. Every failure mode resolves to
// an Insight with Error set, so the orchestrator never special-cases AI
// failures.
type Insight struct {
	Enabled             bool    `json:"enabled"`
	ModelID             string  `json:"model_id"`
	InsightsText        *string `json:"insights_text"`
	AnalysisTimeSeconds float64 `json:"analysis_time_seconds"`
	Error               *string `json:"error,omitempty"`
}

// Config tunes the analysis agent.
type Config struct {
	ModelID          string
	MaxPromptRows    int
	Retry            RetryConfig
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Agent performs the optional model-backed analysis of a profiled sample.
type Agent struct {
	invoker       ModelInvoker
	modelID       string
	maxPromptRows int
	retrier       *Retrier
	breaker       *CircuitBreaker
}

func NewAgent(invoker ModelInvoker, cfg Config) *Agent {
	if cfg.ModelID == "" {
		cfg.ModelID = "claude-3-5-sonnet-20241022"
	}
	if cfg.MaxPromptRows <= 0 {
		cfg.MaxPromptRows = 10
	}
	return &Agent{
		invoker:       invoker,
		modelID:       cfg.ModelID,
		maxPromptRows: cfg.MaxPromptRows,
		retrier:       NewRetrier(cfg.Retry),
		breaker:       NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
	}
}

// Breaker exposes the circuit breaker for observability.
func (a *Agent) Breaker() *CircuitBreaker {
	return a.breaker
}

// Analyze builds a bounded prompt from the profile and a capped number of
// sample rows, invokes the model behind retry and circuit-breaker
// protection, and always returns a usable Insight.
func (a *Agent) Analyze(ctx context.Context, profile *checks.Profile, sample *checker.SampleDataset) *Insight {
	insight := &Insight{Enabled: true, ModelID: a.modelID}
	start := time.Now()
	defer func() {
		insight.AnalysisTimeSeconds = time.Since(start).Seconds()
	}()

	prompt, err := a.buildPrompt(profile, sample)
	if err != nil {
		msg := fmt.Sprintf("failed to build analysis prompt: %v", err)
		insight.Error = &msg
		return insight
	}

	// The breaker is consulted on every attempt, not once per analysis.
	// A failure streak that crosses the threshold mid-retry opens the
	// circuit and stops the remaining attempts before they reach the
	// network, and a failed half-open probe stays a single call.
	var text string
	err = a.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		if !a.breaker.Allow() {
			log.Printf("AI analysis skipped: circuit breaker is %s", a.breaker.State())
			return ErrCircuitOpen
		}
		if attempt > 0 {
			log.Printf("Retrying model invocation (attempt %d)", attempt+1)
		}
		var invokeErr error
		text, invokeErr = a.invoker.Invoke(ctx, a.modelID, systemPrompt, prompt)
		if invokeErr == nil || errors.Is(invokeErr, ErrInvalidResponse) {
			// The service answered; a malformed body is a soft failure, not
			// a reason to open the circuit.
			a.breaker.RecordSuccess()
		} else {
			a.breaker.RecordFailure()
		}
		return invokeErr
	})

	if err != nil {
		log.Printf("AI analysis failed: %v", err)
		msg := err.Error()
		insight.Error = &msg
		return insight
	}

	insight.InsightsText = &text
	return insight
}

// buildPrompt keeps the payload bounded: the full profile plus at most
// maxPromptRows sample rows, never the whole sample.
func (a *Agent) buildPrompt(profile *checks.Profile, sample *checker.SampleDataset) (string, error) {
	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "error marshaling profile")
	}

	rows := sample.Rows
	if len(rows) > a.maxPromptRows {
		rows = rows[:a.maxPromptRows]
	}
	rowsJSON, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "error marshaling sample rows")
	}

	return fmt.Sprintf("Column profile:\n%s\n\nSample rows (%d of %d):\n%s\n",
		profileJSON, len(rows), sample.RowCount, rowsJSON), nil
}
