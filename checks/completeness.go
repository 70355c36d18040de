package checks

import (
	"context"
	"fmt"

	"github.com/datalith/dq-check-workflow/checker"
)

// runCompleteness evaluates null/empty ratios per column, in catalog column
// order. Nulls in a column declared NOT NULL are errors; nullable columns
// above the configured ratio are warnings.
func (e *Engine) runCompleteness(ctx context.Context, md *checker.TableMetadata, sample *checker.SampleDataset, profile *Profile) ([]CheckResult, error) {
	results := make([]CheckResult, 0, len(md.Columns))

	for _, col := range md.Columns {
		cp := profile.Column(col.Name)
		if cp == nil {
			continue
		}

		result := CheckResult{
			CheckID:     fmt.Sprintf("null_check_%s", col.Name),
			Category:    CategoryCompleteness,
			MetricValue: cp.NullPct,
		}

		switch {
		case !col.Nullable && cp.NullCount > 0:
			result.Severity = SeverityError
			result.Message = fmt.Sprintf("column %s is declared NOT NULL but has %d null/empty values (%.2f%%)",
				col.Name, cp.NullCount, cp.NullPct)
		case cp.NullPct > e.cfg.NullWarningRatio*100:
			result.Severity = SeverityWarning
			result.Message = fmt.Sprintf("column %s has %d null/empty values (%.2f%%), above the %.1f%% threshold",
				col.Name, cp.NullCount, cp.NullPct, e.cfg.NullWarningRatio*100)
		default:
			result.Passed = true
			result.Severity = SeverityInfo
			result.Message = fmt.Sprintf("column %s has %d null/empty values (%.2f%%)",
				col.Name, cp.NullCount, cp.NullPct)
		}

		results = append(results, result)
	}

	return results, nil
}
