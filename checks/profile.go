package checks

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/datalith/dq-check-workflow/checker"
)

// NumericStats summarizes a numeric column's sampled values.
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	P25    float64 `json:"p25"`
	P50    float64 `json:"p50"`
	P75    float64 `json:"p75"`
}

// ColumnProfile holds per-column statistics over the sample.
type ColumnProfile struct {
	Name          string        `json:"name"`
	DeclaredType  string        `json:"declared_type"`
	NullCount     int           `json:"null_count"`
	NullPct       float64       `json:"null_percentage"`
	DistinctCount int           `json:"distinct_count"`
	DistinctPct   float64       `json:"distinct_percentage"`
	SampleValues  []string      `json:"sample_values"`
	Numeric       *NumericStats `json:"numeric_stats,omitempty"`
}

// Profile is the statistical summary of one sample, ordered by the catalog's
// column order. It feeds both the report and the AI analysis prompt.
type Profile struct {
	RowCount    int             `json:"row_count"`
	ColumnCount int             `json:"column_count"`
	Columns     []ColumnProfile `json:"columns"`
}

// Column returns the profile for the named column, or nil.
func (p *Profile) Column(name string) *ColumnProfile {
	for i := range p.Columns {
		if p.Columns[i].Name == name {
			return &p.Columns[i]
		}
	}
	return nil
}

// BuildProfile computes per-column statistics over the sample.
func BuildProfile(md *checker.TableMetadata, sample *checker.SampleDataset, maxSampleValues int) *Profile {
	if maxSampleValues <= 0 {
		maxSampleValues = 5
	}

	profile := &Profile{
		RowCount:    sample.RowCount,
		ColumnCount: len(md.Columns),
		Columns:     make([]ColumnProfile, 0, len(md.Columns)),
	}

	for _, col := range md.Columns {
		cp := ColumnProfile{Name: col.Name, DeclaredType: col.DeclaredType}

		distinct := make(map[string]struct{})
		var numbers []float64

		for _, row := range sample.Rows {
			v := row[col.Name]
			if isNullValue(v) {
				cp.NullCount++
				continue
			}

			text := fmt.Sprintf("%v", v)
			if _, seen := distinct[text]; !seen {
				distinct[text] = struct{}{}
				if len(cp.SampleValues) < maxSampleValues {
					cp.SampleValues = append(cp.SampleValues, text)
				}
			}
			if n, ok := numericValue(v); ok {
				numbers = append(numbers, n)
			}
		}

		cp.DistinctCount = len(distinct)
		if sample.RowCount > 0 {
			cp.NullPct = float64(cp.NullCount) / float64(sample.RowCount) * 100
			cp.DistinctPct = float64(cp.DistinctCount) / float64(sample.RowCount) * 100
		}
		if isNumericType(col.DeclaredType) && len(numbers) > 0 {
			cp.Numeric = computeNumericStats(numbers)
		}

		profile.Columns = append(profile.Columns, cp)
	}

	return profile
}

func computeNumericStats(values []float64) *NumericStats {
	stats := &NumericStats{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		sum += v
	}
	stats.Mean = sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - stats.Mean
		variance += d * d
	}
	stats.StdDev = math.Sqrt(variance / float64(len(values)))

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	stats.P25 = percentile(sorted, 0.25)
	stats.P50 = percentile(sorted, 0.50)
	stats.P75 = percentile(sorted, 0.75)
	return stats
}

// percentile linearly interpolates over a sorted slice.
func percentile(sorted []float64, q float64) float64 {
	h := float64(len(sorted)-1) * q
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}

// isNullValue treats nil and empty strings as missing, matching the
// completeness contract.
func isNullValue(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// numericValue converts the value shapes a sample row can carry.
func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// isNumericType reports whether the declared catalog type is numeric.
func isNumericType(declared string) bool {
	t := strings.ToLower(declared)
	for _, prefix := range []string{"int", "bigint", "smallint", "numeric", "decimal", "real", "double", "float"} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}
