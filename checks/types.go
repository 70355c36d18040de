package checks

import (
	"context"

	"github.com/datalith/dq-check-workflow/checker"
)

// Severity of a check result.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Category of a quality-check rule. Categories are evaluated concurrently
// but reported in this declared order.
type Category string

const (
	CategoryCompleteness Category = "completeness"
	CategoryValidity     Category = "validity"
	CategoryUniqueness   Category = "uniqueness"
	CategoryReferential  Category = "referential_integrity"
	CategoryCustom       Category = "custom"
)

var categoryOrder = map[Category]int{
	CategoryCompleteness: 0,
	CategoryValidity:     1,
	CategoryUniqueness:   2,
	CategoryReferential:  3,
	CategoryCustom:       4,
}

// CheckResult is one evaluated rule.
type CheckResult struct {
	CheckID     string   `json:"check_id"`
	Category    Category `json:"category"`
	Passed      bool     `json:"passed"`
	Severity    Severity `json:"severity"`
	MetricValue float64  `json:"metric_value"`
	Message     string   `json:"message"`
}

// ForeignKey configures a referential-integrity relationship. The category
// is skipped entirely when none are configured.
type ForeignKey struct {
	Column    string `yaml:"column" json:"column"`
	RefTable  string `yaml:"ref_table" json:"ref_table"`
	RefColumn string `yaml:"ref_column" json:"ref_column"`
}

// RefResolver answers how many of the given values are missing from the
// referenced table. Backed by the query engine in production.
type RefResolver func(ctx context.Context, md *checker.TableMetadata, fk ForeignKey, values []interface{}) (int, error)

// CustomRule is a caller-supplied predicate over the sampled table. A rule
// that errors or panics is captured as an error-severity result and never
// aborts sibling rules.
type CustomRule struct {
	ID       string
	Evaluate func(md *checker.TableMetadata, sample *checker.SampleDataset) (passed bool, metric float64, message string, err error)
}

// Config tunes the check engine.
type Config struct {
	// NullWarningRatio is the null/empty fraction above which a nullable
	// column is flagged as a warning. Defaults to 0.05.
	NullWarningRatio float64

	// MaxSampleValues caps the example values captured per column profile.
	MaxSampleValues int

	ForeignKeys []ForeignKey
	CustomRules []CustomRule
}

func (c Config) withDefaults() Config {
	if c.NullWarningRatio <= 0 {
		c.NullWarningRatio = 0.05
	}
	if c.MaxSampleValues <= 0 {
		c.MaxSampleValues = 5
	}
	return c
}
