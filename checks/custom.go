package checks

import (
	"context"
	"fmt"

	"github.com/datalith/dq-check-workflow/checker"
)

// runCustom evaluates caller-supplied rules in declared order. Each rule is
// isolated: a rule that returns an error or panics becomes exactly one
// error-severity result and never stops its siblings.
func (e *Engine) runCustom(ctx context.Context, md *checker.TableMetadata, sample *checker.SampleDataset, profile *Profile) ([]CheckResult, error) {
	results := make([]CheckResult, 0, len(e.cfg.CustomRules))

	for _, rule := range e.cfg.CustomRules {
		results = append(results, evaluateCustomRule(rule, md, sample))
	}

	return results, nil
}

func evaluateCustomRule(rule CustomRule, md *checker.TableMetadata, sample *checker.SampleDataset) (result CheckResult) {
	result = CheckResult{
		CheckID:  fmt.Sprintf("custom_%s", rule.ID),
		Category: CategoryCustom,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Passed = false
			result.Severity = SeverityError
			result.Message = fmt.Sprintf("custom rule %s panicked: %v", rule.ID, r)
		}
	}()

	if rule.Evaluate == nil {
		result.Severity = SeverityError
		result.Message = fmt.Sprintf("custom rule %s has no evaluation function", rule.ID)
		return result
	}

	passed, metric, message, err := rule.Evaluate(md, sample)
	if err != nil {
		result.Severity = SeverityError
		result.Message = fmt.Sprintf("custom rule %s failed to evaluate: %v", rule.ID, err)
		return result
	}

	result.Passed = passed
	result.MetricValue = metric
	result.Message = message
	if passed {
		result.Severity = SeverityInfo
	} else {
		result.Severity = SeverityError
	}
	return result
}
