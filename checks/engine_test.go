package checks

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalith/dq-check-workflow/checker"
)

func ordersMetadata() *checker.TableMetadata {
	return &checker.TableMetadata{
		Database: "sales_db",
		Table:    "orders",
		Columns: []checker.Column{
			{Name: "id", DeclaredType: "integer", PrimaryKey: true},
			{Name: "customer_email", DeclaredType: "text", Nullable: true},
			{Name: "amount", DeclaredType: "numeric", Nullable: false},
			{Name: "status", DeclaredType: "text", Nullable: true},
		},
	}
}

func cleanSample() *checker.SampleDataset {
	rows := make([]checker.Row, 0, 20)
	for i := 0; i < 20; i++ {
		rows = append(rows, checker.Row{
			"id":             i + 1,
			"customer_email": fmt.Sprintf("user%d@example.com", i),
			"amount":         float64(i) * 9.99,
			"status":         "open",
		})
	}
	return &checker.SampleDataset{Rows: rows, RowCount: len(rows)}
}

func resultsByCheckID(results []CheckResult) map[string]CheckResult {
	m := make(map[string]CheckResult, len(results))
	for _, r := range results {
		m[r.CheckID] = r
	}
	return m
}

func TestEngineCleanSamplePassesEverything(t *testing.T) {
	engine := NewEngine(Config{}, nil)
	out := engine.Run(context.Background(), ordersMetadata(), cleanSample())

	require.NotNil(t, out.Profile)
	assert.Empty(t, out.FailedCategories)
	require.NotEmpty(t, out.Results)
	for _, r := range out.Results {
		assert.True(t, r.Passed, "check %s should pass: %s", r.CheckID, r.Message)
		assert.Equal(t, SeverityInfo, r.Severity)
	}
}

func TestEngineNullsInNotNullColumnAreErrors(t *testing.T) {
	sample := cleanSample()
	for i := 0; i < 10; i++ {
		sample.Rows[i]["amount"] = nil
	}

	engine := NewEngine(Config{}, nil)
	out := engine.Run(context.Background(), ordersMetadata(), sample)

	byID := resultsByCheckID(out.Results)
	nullCheck, ok := byID["null_check_amount"]
	require.True(t, ok)
	assert.False(t, nullCheck.Passed)
	assert.Equal(t, SeverityError, nullCheck.Severity)
	assert.Equal(t, CategoryCompleteness, nullCheck.Category)
	assert.InDelta(t, 50.0, nullCheck.MetricValue, 0.01)
}

func TestEngineNullableColumnAboveThresholdWarns(t *testing.T) {
	sample := cleanSample()
	for i := 0; i < 5; i++ {
		sample.Rows[i]["status"] = ""
	}

	engine := NewEngine(Config{NullWarningRatio: 0.05}, nil)
	out := engine.Run(context.Background(), ordersMetadata(), sample)

	byID := resultsByCheckID(out.Results)
	warn := byID["null_check_status"]
	assert.False(t, warn.Passed)
	assert.Equal(t, SeverityWarning, warn.Severity)
}

func TestEngineNonNumericValuesInNumericColumn(t *testing.T) {
	sample := cleanSample()
	sample.Rows[3]["amount"] = "not-a-number"

	engine := NewEngine(Config{}, nil)
	out := engine.Run(context.Background(), ordersMetadata(), sample)

	byID := resultsByCheckID(out.Results)
	typeCheck := byID["type_check_amount"]
	assert.False(t, typeCheck.Passed)
	assert.Equal(t, SeverityError, typeCheck.Severity)
	assert.Equal(t, CategoryValidity, typeCheck.Category)
}

func TestEngineMalformedEmailsWarn(t *testing.T) {
	sample := cleanSample()
	sample.Rows[0]["customer_email"] = "not-an-email"

	engine := NewEngine(Config{}, nil)
	out := engine.Run(context.Background(), ordersMetadata(), sample)

	byID := resultsByCheckID(out.Results)
	format := byID["format_check_customer_email"]
	assert.False(t, format.Passed)
	assert.Equal(t, SeverityWarning, format.Severity)
}

func TestEngineDuplicateKeyValuesAreErrors(t *testing.T) {
	sample := cleanSample()
	sample.Rows[5]["id"] = 1
	sample.Rows[6]["id"] = 1

	engine := NewEngine(Config{}, nil)
	out := engine.Run(context.Background(), ordersMetadata(), sample)

	byID := resultsByCheckID(out.Results)
	unique := byID["uniqueness_check_id"]
	assert.False(t, unique.Passed)
	assert.Equal(t, SeverityError, unique.Severity)
	assert.Equal(t, CategoryUniqueness, unique.Category)
}

func TestEngineNoKeyColumnsSkipsUniqueness(t *testing.T) {
	md := &checker.TableMetadata{
		Database: "sales_db",
		Table:    "orders",
		Columns: []checker.Column{
			{Name: "a", DeclaredType: "text", Nullable: true},
			{Name: "b", DeclaredType: "text", Nullable: true},
		},
	}
	sample := &checker.SampleDataset{Rows: []checker.Row{{"a": "x", "b": "x"}}, RowCount: 1}

	engine := NewEngine(Config{}, nil)
	out := engine.Run(context.Background(), md, sample)
	for _, r := range out.Results {
		assert.NotEqual(t, CategoryUniqueness, r.Category)
	}
}

func TestEngineReferentialSkippedWithoutConfig(t *testing.T) {
	engine := NewEngine(Config{}, nil)
	out := engine.Run(context.Background(), ordersMetadata(), cleanSample())

	assert.Empty(t, out.FailedCategories)
	for _, r := range out.Results {
		assert.NotEqual(t, CategoryReferential, r.Category)
	}
}

func TestEngineReferentialMissingValues(t *testing.T) {
	resolver := func(ctx context.Context, md *checker.TableMetadata, fk ForeignKey, values []interface{}) (int, error) {
		return 3, nil
	}
	cfg := Config{ForeignKeys: []ForeignKey{{Column: "id", RefTable: "customers", RefColumn: "order_id"}}}

	engine := NewEngine(cfg, resolver)
	out := engine.Run(context.Background(), ordersMetadata(), cleanSample())

	byID := resultsByCheckID(out.Results)
	fk := byID["fk_check_id"]
	assert.False(t, fk.Passed)
	assert.Equal(t, SeverityError, fk.Severity)
	assert.Equal(t, 3.0, fk.MetricValue)
}

func TestEngineReferentialLookupFailureIsContained(t *testing.T) {
	resolver := func(ctx context.Context, md *checker.TableMetadata, fk ForeignKey, values []interface{}) (int, error) {
		return 0, errors.New("reference table unreachable")
	}
	cfg := Config{ForeignKeys: []ForeignKey{{Column: "id", RefTable: "customers", RefColumn: "order_id"}}}

	engine := NewEngine(cfg, resolver)
	out := engine.Run(context.Background(), ordersMetadata(), cleanSample())

	assert.Empty(t, out.FailedCategories, "a lookup failure is a contained check result, not a category failure")
	byID := resultsByCheckID(out.Results)
	fk := byID["fk_check_id"]
	assert.False(t, fk.Passed)
	assert.Equal(t, SeverityError, fk.Severity)
	assert.Contains(t, fk.Message, "unreachable")
}

func TestEngineCustomRulePanicIsIsolated(t *testing.T) {
	cfg := Config{CustomRules: []CustomRule{
		{ID: "explodes", Evaluate: func(md *checker.TableMetadata, sample *checker.SampleDataset) (bool, float64, string, error) {
			panic("rule blew up")
		}},
		{ID: "row_floor", Evaluate: func(md *checker.TableMetadata, sample *checker.SampleDataset) (bool, float64, string, error) {
			return sample.RowCount >= 10, float64(sample.RowCount), "row count floor", nil
		}},
	}}

	engine := NewEngine(cfg, nil)
	out := engine.Run(context.Background(), ordersMetadata(), cleanSample())

	assert.Empty(t, out.FailedCategories)
	byID := resultsByCheckID(out.Results)

	exploded := byID["custom_explodes"]
	assert.False(t, exploded.Passed)
	assert.Equal(t, SeverityError, exploded.Severity)
	assert.Contains(t, exploded.Message, "panicked")

	floor := byID["custom_row_floor"]
	assert.True(t, floor.Passed, "sibling rule must still run")
}

func TestEngineCustomRuleErrorIsCaptured(t *testing.T) {
	cfg := Config{CustomRules: []CustomRule{
		{ID: "broken", Evaluate: func(md *checker.TableMetadata, sample *checker.SampleDataset) (bool, float64, string, error) {
			return false, 0, "", errors.New("predicate unresolvable")
		}},
	}}

	engine := NewEngine(cfg, nil)
	out := engine.Run(context.Background(), ordersMetadata(), cleanSample())

	byID := resultsByCheckID(out.Results)
	broken := byID["custom_broken"]
	assert.Equal(t, SeverityError, broken.Severity)
	assert.Contains(t, broken.Message, "predicate unresolvable")
}

func TestEngineResultsAreDeterministicallyOrdered(t *testing.T) {
	cfg := Config{CustomRules: []CustomRule{
		{ID: "always", Evaluate: func(md *checker.TableMetadata, sample *checker.SampleDataset) (bool, float64, string, error) {
			return true, 0, "ok", nil
		}},
	}}
	engine := NewEngine(cfg, nil)

	md, sample := ordersMetadata(), cleanSample()
	first := engine.Run(context.Background(), md, sample)

	for i := 0; i < 5; i++ {
		again := engine.Run(context.Background(), md, sample)
		require.Equal(t, first.Results, again.Results, "ordering must not depend on goroutine completion order")
	}

	// Categories must appear in declared order.
	ranks := make([]int, 0, len(first.Results))
	for _, r := range first.Results {
		ranks = append(ranks, categoryOrder[r.Category])
	}
	assert.True(t, sort.IntsAreSorted(ranks))
}

func TestEngineEmptySampleStillProducesResults(t *testing.T) {
	engine := NewEngine(Config{}, nil)
	out := engine.Run(context.Background(), ordersMetadata(), &checker.SampleDataset{})

	assert.Empty(t, out.FailedCategories)
	assert.NotEmpty(t, out.Results)
	for _, r := range out.Results {
		assert.True(t, r.Passed, "empty sample has nothing to flag: %s", r.CheckID)
	}
}
