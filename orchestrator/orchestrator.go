package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/datalith/dq-check-workflow/aianalysis"
	"github.com/datalith/dq-check-workflow/catalog"
	"github.com/datalith/dq-check-workflow/checker"
	"github.com/datalith/dq-check-workflow/checks"
	"github.com/datalith/dq-check-workflow/report"
	"github.com/datalith/dq-check-workflow/sampler"
)

// State tracks the pipeline position for logging and tests.
type State string

const (
	StateInit            State = "Init"
	StateMetadataFetched State = "MetadataFetched"
	StateSampled         State = "Sampled"
	StateChecking        State = "Checking"
	StateCompiled        State = "Compiled"
	StatePersisted       State = "Persisted"
	StateDone            State = "Done"
	StateFailed          State = "Failed"
)

// Store persists a compiled report and returns its location.
type Store interface {
	Save(ctx context.Context, rep *report.QualityReport) (string, error)
}

// Notifier publishes the outcome of a finished run. Failures are logged,
// never fatal.
type Notifier interface {
	Publish(ctx context.Context, rep *report.QualityReport, location string) error
}

// AnalysisAgent is the optional model-backed analysis branch.
type AnalysisAgent interface {
	Analyze(ctx context.Context, profile *checks.Profile, sample *checker.SampleDataset) *aianalysis.Insight
}

// Outcome is what one completed (or failed) run hands back to the caller.
type Outcome struct {
	Report   *report.QualityReport
	Location string
	Warnings []string
	State    State
}

// Orchestrator drives one invocation through metadata fetch, sampling,
// concurrent checking and AI analysis, compilation, persistence and
// notification.
type Orchestrator struct {
	catalog   catalog.Client
	sampler   *sampler.Sampler
	engine    *checks.Engine
	agent     AnalysisAgent
	store     Store
	notifiers []Notifier

	// budget bounds the stages up to compilation. Zero means no budget.
	budget time.Duration
}

type Option func(*Orchestrator)

// WithAgent enables the AI analysis branch.
func WithAgent(agent AnalysisAgent) Option {
	return func(o *Orchestrator) { o.agent = agent }
}

// WithNotifiers registers outcome publishers.
func WithNotifiers(notifiers ...Notifier) Option {
	return func(o *Orchestrator) { o.notifiers = append(o.notifiers, notifiers...) }
}

// WithBudget bounds the wall-clock time of the check and analysis stages.
func WithBudget(budget time.Duration) Option {
	return func(o *Orchestrator) { o.budget = budget }
}

func New(cat catalog.Client, smp *sampler.Sampler, engine *checks.Engine, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog: cat,
		sampler: smp,
		engine:  engine,
		store:   store,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the pipeline for one resolved request. Fatal stages
// (metadata, sampling, persistence) return an error and no report; check
// and AI failures are contained inside the report.
func (o *Orchestrator) Run(ctx context.Context, req *checker.CheckRequest) (*Outcome, error) {
	start := time.Now()
	var timings report.Timings
	var warnings []string

	log.Printf("Starting data quality check for %s.%s", req.Database, req.Table)

	stageStart := time.Now()
	md, err := o.catalog.GetTableMetadata(ctx, req.Database, req.Table)
	if err != nil {
		log.Printf("Metadata fetch failed for %s.%s: %v", req.Database, req.Table, err)
		return &Outcome{State: StateFailed}, err
	}
	timings.MetadataSeconds = time.Since(stageStart).Seconds()
	log.Printf("Fetched metadata for %s.%s: %d columns", req.Database, req.Table, len(md.Columns))

	stageStart = time.Now()
	sample, sampleWarnings, err := o.sampler.Sample(ctx, md, req.SampleSize)
	if err != nil {
		log.Printf("Sampling failed for %s.%s: %v", req.Database, req.Table, err)
		return &Outcome{State: StateFailed}, err
	}
	timings.SamplingSeconds = time.Since(stageStart).Seconds()
	warnings = append(warnings, sampleWarnings...)
	log.Printf("Sampled %d rows from %s.%s", sample.RowCount, req.Database, req.Table)

	output, insight, forcePartial := o.runBranches(ctx, req, md, sample, &timings)
	if forcePartial {
		warnings = append(warnings, "time budget exceeded before all checks completed; report is partial")
	}

	var profile *checks.Profile
	var results []checks.CheckResult
	var failedCategories []string
	if output != nil {
		profile = output.Profile
		results = output.Results
		failedCategories = output.FailedCategories
	}
	for _, cat := range failedCategories {
		log.Printf("Check category %s failed to execute", cat)
	}

	timings.TotalSeconds = time.Since(start).Seconds()
	rep := report.Compile(report.CompileInput{
		Request:          req,
		Metadata:         md,
		Profile:          profile,
		Results:          results,
		FailedCategories: failedCategories,
		Insight:          insight,
		Warnings:         warnings,
		Timings:          timings,
		ForcePartial:     forcePartial,
	})

	location, err := o.store.Save(ctx, rep)
	if err != nil {
		log.Printf("Failed to persist report for %s.%s: %v", req.Database, req.Table, err)
		return &Outcome{Report: rep, Warnings: warnings, State: StateFailed},
			&checker.PersistenceError{Location: location, Cause: err}
	}
	log.Printf("Persisted quality report to %s", location)

	for _, n := range o.notifiers {
		if err := n.Publish(ctx, rep, location); err != nil {
			log.Printf("Warning: notification failed: %v", err)
			warnings = append(warnings, "notification delivery failed")
		}
	}

	return &Outcome{Report: rep, Location: location, Warnings: warnings, State: StateDone}, nil
}

// runBranches executes the check engine and, when enabled, the AI analysis
// agent concurrently. Both operate on the same immutable inputs. When the
// time budget expires first, whatever already finished is used and the
// report is forced PARTIAL; unfinished branches are abandoned, not awaited.
func (o *Orchestrator) runBranches(ctx context.Context, req *checker.CheckRequest, md *checker.TableMetadata, sample *checker.SampleDataset, timings *report.Timings) (*checks.Output, *aianalysis.Insight, bool) {
	branchCtx := ctx
	var cancel context.CancelFunc
	if o.budget > 0 {
		branchCtx, cancel = context.WithTimeout(ctx, o.budget)
		defer cancel()
	}

	// Both branches read the same immutable profile, built once up front.
	profile := o.engine.Profile(md, sample)

	type checksDone struct {
		out     *checks.Output
		seconds float64
	}
	type analysisDone struct {
		insight *aianalysis.Insight
		seconds float64
	}

	checksCh := make(chan checksDone, 1)
	go func() {
		start := time.Now()
		out := o.engine.Run(branchCtx, md, sample)
		checksCh <- checksDone{out: out, seconds: time.Since(start).Seconds()}
	}()

	aiEnabled := req.EnableAIAnalysis && o.agent != nil
	insightCh := make(chan analysisDone, 1)
	if aiEnabled {
		go func() {
			start := time.Now()
			insight := o.agent.Analyze(branchCtx, profile, sample)
			insightCh <- analysisDone{insight: insight, seconds: time.Since(start).Seconds()}
		}()
	}

	var output *checks.Output
	var insight *aianalysis.Insight
	forcePartial := false

	select {
	case done := <-checksCh:
		output = done.out
		timings.ChecksSeconds = done.seconds
	case <-branchCtx.Done():
		forcePartial = true
	}

	if aiEnabled && !forcePartial {
		select {
		case done := <-insightCh:
			insight = done.insight
			timings.AISeconds = done.seconds
		case <-branchCtx.Done():
			forcePartial = true
		}
	}
	if aiEnabled && forcePartial && insight == nil {
		// The analysis may have finished before the budget expired; keep
		// its result instead of discarding it.
		select {
		case done := <-insightCh:
			insight = done.insight
			timings.AISeconds = done.seconds
		default:
			msg := "analysis abandoned: time budget exceeded"
			insight = &aianalysis.Insight{Enabled: true, Error: &msg}
		}
	}

	return output, insight, forcePartial
}
