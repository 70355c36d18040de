package report

import (
	"time"

	"github.com/datalith/dq-check-workflow/aianalysis"
	"github.com/datalith/dq-check-workflow/checker"
	"github.com/datalith/dq-check-workflow/checks"
)

// Status is the overall outcome of one quality-check invocation.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusPartial Status = "PARTIAL"
	StatusFailed  Status = "FAILED"
)

// Timings records how long each pipeline stage took, in seconds.
type Timings struct {
	MetadataSeconds float64
	SamplingSeconds float64
	ChecksSeconds   float64
	AISeconds       float64
	TotalSeconds    float64
}

// ExecutionSummary aggregates the check outcomes and run timings.
type ExecutionSummary struct {
	ChecksPerformed  int                `json:"checks_performed"`
	ChecksPassed     int                `json:"checks_passed"`
	ChecksFailed     int                `json:"checks_failed"`
	QualityScore     float64            `json:"quality_score"`
	TotalTimeSeconds float64            `json:"total_time_seconds"`
	TimeBreakdown    map[string]float64 `json:"time_breakdown"`
}

// QualityReport is the single immutable output of an invocation. It is
// built once by Compile and handed to persistence unchanged.
type QualityReport struct {
	Status           Status               `json:"status"`
	Database         string               `json:"database"`
	Table            string               `json:"table"`
	Timestamp        time.Time            `json:"timestamp"`
	ExecutionSummary ExecutionSummary     `json:"execution_summary"`
	Profile          *checks.Profile      `json:"profile"`
	Checks           []checks.CheckResult `json:"checks"`
	AIAnalysis       *aianalysis.Insight  `json:"ai_analysis"`
	Warnings         []string             `json:"warnings"`
	FailedCategories []string             `json:"failed_categories,omitempty"`
}

// CompileInput carries everything the compiler needs. Optional pieces
// (insight, profile) may be nil.
type CompileInput struct {
	Request          *checker.CheckRequest
	Metadata         *checker.TableMetadata
	Profile          *checks.Profile
	Results          []checks.CheckResult
	FailedCategories []string
	Insight          *aianalysis.Insight
	Warnings         []string
	Timings          Timings

	// ForcePartial marks the report PARTIAL regardless of check outcomes,
	// used when the time budget expired before all branches finished.
	ForcePartial bool
}
