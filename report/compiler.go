package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/datalith/dq-check-workflow/checks"
)

// Severity weights used in the quality score. Info findings never reduce
// the score.
const (
	errorWeight   = 5.0
	warningWeight = 2.0
	infoWeight    = 0.0
)

// timeNow is swappable for tests.
var timeNow = time.Now

// Compile merges all partial results into one report. It is a pure
// function over its input (plus the timestamp) and never fails: missing
// optional pieces degrade into the report shape instead.
func Compile(input CompileInput) *QualityReport {
	passed := 0
	failed := 0
	for _, r := range input.Results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}

	warnings := input.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	breakdown := map[string]float64{
		"metadata_fetch": round2(input.Timings.MetadataSeconds),
		"sampling":       round2(input.Timings.SamplingSeconds),
		"checks":         round2(input.Timings.ChecksSeconds),
	}
	if input.Insight != nil {
		breakdown["ai_analysis"] = round2(input.Timings.AISeconds)
	}

	rep := &QualityReport{
		Status:    deriveStatus(input),
		Timestamp: timeNow().UTC(),
		ExecutionSummary: ExecutionSummary{
			ChecksPerformed:  len(input.Results),
			ChecksPassed:     passed,
			ChecksFailed:     failed,
			QualityScore:     QualityScore(input.Results),
			TotalTimeSeconds: round2(input.Timings.TotalSeconds),
			TimeBreakdown:    breakdown,
		},
		Profile:          input.Profile,
		Checks:           input.Results,
		AIAnalysis:       input.Insight,
		Warnings:         warnings,
		FailedCategories: input.FailedCategories,
	}
	if input.Request != nil {
		rep.Database = input.Request.Database
		rep.Table = input.Request.Table
	} else if input.Metadata != nil {
		rep.Database = input.Metadata.Database
		rep.Table = input.Metadata.Table
	}
	if rep.Checks == nil {
		rep.Checks = []checks.CheckResult{}
	}
	return rep
}

// QualityScore maps check severities to a 0-100 aggregate. Each check can
// cost at most the error weight, so the score is
// 100 * (1 - total_weight / (errorWeight * checks)). No checks means a
// perfect score.
func QualityScore(results []checks.CheckResult) float64 {
	if len(results) == 0 {
		return 100
	}

	var total float64
	for _, r := range results {
		switch r.Severity {
		case checks.SeverityError:
			total += errorWeight
		case checks.SeverityWarning:
			total += warningWeight
		default:
			total += infoWeight
		}
	}

	score := 100 * (1 - total/(errorWeight*float64(len(results))))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return round2(score)
}

func deriveStatus(input CompileInput) Status {
	if input.ForcePartial {
		return StatusPartial
	}
	if len(input.FailedCategories) > 0 {
		return StatusPartial
	}
	if input.Insight != nil && input.Insight.Error != nil {
		return StatusPartial
	}
	return StatusSuccess
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// RenderMarkdown produces the human-readable companion to the JSON report.
func RenderMarkdown(rep *QualityReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Data Quality Report for %s.%s\n", rep.Database, rep.Table)
	fmt.Fprintf(&b, "- **Status**: %s\n", rep.Status)
	fmt.Fprintf(&b, "- **Quality Score**: %.2f\n", rep.ExecutionSummary.QualityScore)
	if rep.Profile != nil {
		fmt.Fprintf(&b, "- **Sampled Rows**: %d\n", rep.Profile.RowCount)
	}

	var issues []checks.CheckResult
	for _, c := range rep.Checks {
		if c.Severity == checks.SeverityWarning || c.Severity == checks.SeverityError {
			issues = append(issues, c)
		}
	}
	if len(issues) > 0 {
		b.WriteString("\n## Issues Found\n")
		for _, c := range issues {
			marker := "WARNING"
			if c.Severity == checks.SeverityError {
				marker = "FAIL"
			}
			fmt.Fprintf(&b, "- [%s] **%s**: %s\n", marker, c.CheckID, c.Message)
		}
	}

	if len(rep.FailedCategories) > 0 {
		b.WriteString("\n## Check Categories That Could Not Run\n")
		for _, cat := range rep.FailedCategories {
			fmt.Fprintf(&b, "- %s\n", cat)
		}
	}

	if rep.AIAnalysis != nil && rep.AIAnalysis.InsightsText != nil {
		b.WriteString("\n## AI-Powered Insights\n")
		b.WriteString(*rep.AIAnalysis.InsightsText)
		b.WriteString("\n")
	}

	if len(rep.Warnings) > 0 {
		b.WriteString("\n## Warnings\n")
		for _, w := range rep.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	b.WriteString("\n## Execution Summary\n")
	fmt.Fprintf(&b, "- **Checks Performed**: %d (%d passed, %d failed)\n",
		rep.ExecutionSummary.ChecksPerformed, rep.ExecutionSummary.ChecksPassed, rep.ExecutionSummary.ChecksFailed)
	fmt.Fprintf(&b, "- **Total Time**: %.2f seconds\n", rep.ExecutionSummary.TotalTimeSeconds)

	return b.String()
}
