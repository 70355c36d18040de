package checks

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/datalith/dq-check-workflow/checker"
)

// Engine applies the rule categories to an immutable (metadata, sample)
// pair. Categories execute concurrently; their results are sorted into
// declared category order before being returned, so output is deterministic
// regardless of completion order.
type Engine struct {
	cfg         Config
	refResolver RefResolver
}

// Output carries everything one engine run produces. FailedCategories lists
// categories that could not execute at all; the orchestrator downgrades the
// report to PARTIAL when any are present.
type Output struct {
	Profile          *Profile
	Results          []CheckResult
	FailedCategories []string
}

func NewEngine(cfg Config, refResolver RefResolver) *Engine {
	return &Engine{cfg: cfg.withDefaults(), refResolver: refResolver}
}

// Profile builds the per-column profile without evaluating any rules, for
// callers that need the profile ahead of (or instead of) a full run.
func (e *Engine) Profile(md *checker.TableMetadata, sample *checker.SampleDataset) *Profile {
	return BuildProfile(md, sample, e.cfg.MaxSampleValues)
}

type categoryFunc func(ctx context.Context, md *checker.TableMetadata, sample *checker.SampleDataset, profile *Profile) ([]CheckResult, error)

type categoryOutcome struct {
	category Category
	results  []CheckResult
	err      error
}

// Run profiles the sample and evaluates every category.
func (e *Engine) Run(ctx context.Context, md *checker.TableMetadata, sample *checker.SampleDataset) *Output {
	profile := BuildProfile(md, sample, e.cfg.MaxSampleValues)

	categories := []struct {
		name Category
		fn   categoryFunc
	}{
		{CategoryCompleteness, e.runCompleteness},
		{CategoryValidity, e.runValidity},
		{CategoryUniqueness, e.runUniqueness},
		{CategoryReferential, e.runReferential},
		{CategoryCustom, e.runCustom},
	}

	outcomes := make(chan categoryOutcome, len(categories))
	var wg sync.WaitGroup

	for _, cat := range categories {
		wg.Add(1)
		go func(name Category, fn categoryFunc) {
			defer wg.Done()
			outcomes <- runCategory(ctx, name, fn, md, sample, profile)
		}(cat.name, cat.fn)
	}

	wg.Wait()
	close(outcomes)

	output := &Output{Profile: profile}
	for outcome := range outcomes {
		if outcome.err != nil {
			log.Printf("Check category %s failed to execute: %v", outcome.category, outcome.err)
			output.FailedCategories = append(output.FailedCategories, string(outcome.category))
			continue
		}
		output.Results = append(output.Results, outcome.results...)
	}

	sort.Strings(output.FailedCategories)
	// Stable sort keeps rule order inside each category.
	sort.SliceStable(output.Results, func(i, j int) bool {
		return categoryOrder[output.Results[i].Category] < categoryOrder[output.Results[j].Category]
	})

	return output
}

// runCategory isolates one category: a panic inside it is converted into a
// category execution failure instead of tearing down the invocation.
func runCategory(ctx context.Context, name Category, fn categoryFunc, md *checker.TableMetadata, sample *checker.SampleDataset, profile *Profile) (outcome categoryOutcome) {
	outcome.category = name
	defer func() {
		if r := recover(); r != nil {
			outcome.results = nil
			outcome.err = fmt.Errorf("category %s panicked: %v", name, r)
		}
	}()

	outcome.results, outcome.err = fn(ctx, md, sample, profile)
	return outcome
}
