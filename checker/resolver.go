package checker

import (
	"github.com/spf13/viper"
)

// Defaults carries the process-wide fallbacks for request fields that the
// invocation payload leaves unset.
type Defaults struct {
	Database         string
	Table            string
	SampleSize       int
	EnableAIAnalysis bool
}

// DefaultsFromEnv reads defaults from the environment through viper using
// the DQ prefix (DQ_DEFAULT_DATABASE, DQ_DEFAULT_TABLE, DQ_SAMPLE_SIZE,
// DQ_ENABLE_AI_ANALYSIS).
func DefaultsFromEnv() Defaults {
	v := viper.New()
	v.SetEnvPrefix("DQ")
	v.AutomaticEnv()
	v.SetDefault("sample_size", 1000)
	v.SetDefault("enable_ai_analysis", false)

	return Defaults{
		Database:         v.GetString("default_database"),
		Table:            v.GetString("default_table"),
		SampleSize:       v.GetInt("sample_size"),
		EnableAIAnalysis: v.GetBool("enable_ai_analysis"),
	}
}

// Resolve merges the raw invocation payload over the defaults and validates
// the result. A request that cannot name both database and table from either
// source fails with ValidationError before any collaborator is touched.
func Resolve(payload map[string]interface{}, defs Defaults) (*CheckRequest, error) {
	req := &CheckRequest{
		Database:         defs.Database,
		Table:            defs.Table,
		SampleSize:       defs.SampleSize,
		EnableAIAnalysis: defs.EnableAIAnalysis,
	}

	if db, ok := payload["database"].(string); ok && db != "" {
		req.Database = db
	}
	if table, ok := payload["table"].(string); ok && table != "" {
		req.Table = table
	}
	if size, ok := intValue(payload["sample_size"]); ok {
		req.SampleSize = size
	}
	if enable, ok := payload["enable_ai_analysis"].(bool); ok {
		req.EnableAIAnalysis = enable
	}

	if req.Database == "" {
		return nil, &ValidationError{Field: "database", Reason: "is required and has no configured default"}
	}
	if req.Table == "" {
		return nil, &ValidationError{Field: "table", Reason: "is required and has no configured default"}
	}
	if req.SampleSize < 0 {
		return nil, &ValidationError{Field: "sample_size", Reason: "must not be negative"}
	}

	return req, nil
}

// intValue converts the loosely-typed numbers that JSON and YAML payloads
// produce.
func intValue(v interface{}) (int, bool) {
	switch i := v.(type) {
	case int:
		return i, true
	case int64:
		return int(i), true
	case float64:
		return int(i), true
	}
	return 0, false
}
