package checks

import (
	"context"
	"fmt"

	"github.com/datalith/dq-check-workflow/checker"
)

// runReferential verifies configured foreign-key relationships against the
// referenced tables. With no configured relationships or no resolver the
// category is skipped, which is not a failure. A lookup failure for one
// relationship is contained as an error-severity result.
func (e *Engine) runReferential(ctx context.Context, md *checker.TableMetadata, sample *checker.SampleDataset, profile *Profile) ([]CheckResult, error) {
	if len(e.cfg.ForeignKeys) == 0 || e.refResolver == nil {
		return nil, nil
	}

	results := make([]CheckResult, 0, len(e.cfg.ForeignKeys))

	for _, fk := range e.cfg.ForeignKeys {
		checkID := fmt.Sprintf("fk_check_%s", fk.Column)

		values := distinctNonNull(sample, fk.Column)
		if len(values) == 0 {
			results = append(results, CheckResult{
				CheckID:  checkID,
				Category: CategoryReferential,
				Passed:   true,
				Severity: SeverityInfo,
				Message:  fmt.Sprintf("column %s has no sampled values to verify against %s.%s", fk.Column, fk.RefTable, fk.RefColumn),
			})
			continue
		}

		missing, err := e.refResolver(ctx, md, fk, values)
		if err != nil {
			results = append(results, CheckResult{
				CheckID:  checkID,
				Category: CategoryReferential,
				Severity: SeverityError,
				Message:  fmt.Sprintf("reference lookup for %s against %s.%s failed: %v", fk.Column, fk.RefTable, fk.RefColumn, err),
			})
			continue
		}

		result := CheckResult{
			CheckID:     checkID,
			Category:    CategoryReferential,
			MetricValue: float64(missing),
		}
		if missing > 0 {
			result.Severity = SeverityError
			result.Message = fmt.Sprintf("column %s has %d of %d values with no match in %s.%s",
				fk.Column, missing, len(values), fk.RefTable, fk.RefColumn)
		} else {
			result.Passed = true
			result.Severity = SeverityInfo
			result.Message = fmt.Sprintf("column %s: all %d values resolve in %s.%s",
				fk.Column, len(values), fk.RefTable, fk.RefColumn)
		}
		results = append(results, result)
	}

	return results, nil
}

func distinctNonNull(sample *checker.SampleDataset, column string) []interface{} {
	seen := make(map[string]struct{})
	var values []interface{}
	for _, row := range sample.Rows {
		v := row[column]
		if isNullValue(v) {
			continue
		}
		key := fmt.Sprintf("%v", v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		values = append(values, v)
	}
	return values
}
