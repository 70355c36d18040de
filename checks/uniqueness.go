package checks

import (
	"context"
	"fmt"
	"strings"

	"github.com/datalith/dq-check-workflow/checker"
)

// runUniqueness checks duplicate ratios on columns presumed to be keys:
// declared primary keys, or columns following a key naming convention.
func (e *Engine) runUniqueness(ctx context.Context, md *checker.TableMetadata, sample *checker.SampleDataset, profile *Profile) ([]CheckResult, error) {
	var results []CheckResult

	for _, col := range md.Columns {
		if !isPresumedKey(md.Table, col) {
			continue
		}

		seen := make(map[string]struct{})
		duplicates := 0
		nonNull := 0
		for _, row := range sample.Rows {
			v := row[col.Name]
			if isNullValue(v) {
				continue
			}
			nonNull++
			key := fmt.Sprintf("%v", v)
			if _, dup := seen[key]; dup {
				duplicates++
			} else {
				seen[key] = struct{}{}
			}
		}

		var dupPct float64
		if nonNull > 0 {
			dupPct = float64(duplicates) / float64(nonNull) * 100
		}

		result := CheckResult{
			CheckID:     fmt.Sprintf("uniqueness_check_%s", col.Name),
			Category:    CategoryUniqueness,
			MetricValue: dupPct,
		}
		if duplicates > 0 {
			result.Severity = SeverityError
			result.Message = fmt.Sprintf("key column %s has %d duplicate values in %d sampled rows (%.2f%%)",
				col.Name, duplicates, nonNull, dupPct)
		} else {
			result.Passed = true
			result.Severity = SeverityInfo
			result.Message = fmt.Sprintf("key column %s: no duplicates in %d sampled rows", col.Name, nonNull)
		}
		results = append(results, result)
	}

	return results, nil
}

// isPresumedKey infers key columns from the primary-key flag or naming
// convention ("id", "uuid", "<table>_id").
func isPresumedKey(table string, col checker.Column) bool {
	if col.PrimaryKey {
		return true
	}
	name := strings.ToLower(col.Name)
	return name == "id" || name == "uuid" || name == "guid" || name == strings.ToLower(table)+"_id"
}
