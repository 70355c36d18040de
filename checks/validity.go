package checks

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/datalith/dq-check-workflow/checker"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// runValidity applies type and format rules per column. Non-numeric values
// in a declared-numeric column are errors; suspected email columns with
// malformed values are warnings.
func (e *Engine) runValidity(ctx context.Context, md *checker.TableMetadata, sample *checker.SampleDataset, profile *Profile) ([]CheckResult, error) {
	var results []CheckResult

	for _, col := range md.Columns {
		if isNumericType(col.DeclaredType) {
			results = append(results, e.checkNumericColumn(col, sample))
		}
		if looksLikeEmailColumn(col.Name) {
			results = append(results, e.checkEmailColumn(col, sample))
		}
	}

	return results, nil
}

func (e *Engine) checkNumericColumn(col checker.Column, sample *checker.SampleDataset) CheckResult {
	invalid := 0
	nonNull := 0
	for _, row := range sample.Rows {
		v := row[col.Name]
		if isNullValue(v) {
			continue
		}
		nonNull++
		if _, ok := numericValue(v); !ok {
			invalid++
		}
	}

	result := CheckResult{
		CheckID:     fmt.Sprintf("type_check_%s", col.Name),
		Category:    CategoryValidity,
		MetricValue: float64(invalid),
	}
	if invalid > 0 {
		result.Severity = SeverityError
		result.Message = fmt.Sprintf("column %s is declared %s but %d of %d sampled values are not numeric",
			col.Name, col.DeclaredType, invalid, nonNull)
	} else {
		result.Passed = true
		result.Severity = SeverityInfo
		result.Message = fmt.Sprintf("column %s: all %d sampled values match declared type %s",
			col.Name, nonNull, col.DeclaredType)
	}
	return result
}

func (e *Engine) checkEmailColumn(col checker.Column, sample *checker.SampleDataset) CheckResult {
	malformed := 0
	nonNull := 0
	for _, row := range sample.Rows {
		v := row[col.Name]
		if isNullValue(v) {
			continue
		}
		nonNull++
		if s, ok := v.(string); !ok || !emailPattern.MatchString(s) {
			malformed++
		}
	}

	result := CheckResult{
		CheckID:     fmt.Sprintf("format_check_%s", col.Name),
		Category:    CategoryValidity,
		MetricValue: float64(malformed),
	}
	if malformed > 0 {
		// Soft mismatch: the column is only presumed to hold emails.
		result.Severity = SeverityWarning
		result.Message = fmt.Sprintf("column %s looks like an email column but %d of %d sampled values do not match an email format",
			col.Name, malformed, nonNull)
	} else {
		result.Passed = true
		result.Severity = SeverityInfo
		result.Message = fmt.Sprintf("column %s: all %d sampled values match an email format", col.Name, nonNull)
	}
	return result
}

func looksLikeEmailColumn(name string) bool {
	return strings.Contains(strings.ToLower(name), "email")
}
