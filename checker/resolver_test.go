package checker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMergesPayloadOverDefaults(t *testing.T) {
	defs := Defaults{
		Database:         "warehouse",
		Table:            "events",
		SampleSize:       500,
		EnableAIAnalysis: true,
	}

	req, err := Resolve(map[string]interface{}{
		"table":       "orders",
		"sample_size": float64(250), // JSON numbers arrive as float64
	}, defs)
	require.NoError(t, err)

	assert.Equal(t, "warehouse", req.Database)
	assert.Equal(t, "orders", req.Table)
	assert.Equal(t, 250, req.SampleSize)
	assert.True(t, req.EnableAIAnalysis)
}

func TestResolvePayloadDisablesAIAnalysis(t *testing.T) {
	req, err := Resolve(map[string]interface{}{
		"database":           "sales_db",
		"table":              "orders",
		"enable_ai_analysis": false,
	}, Defaults{EnableAIAnalysis: true, SampleSize: 100})
	require.NoError(t, err)
	assert.False(t, req.EnableAIAnalysis)
}

func TestResolveMissingDatabaseIsValidationError(t *testing.T) {
	_, err := Resolve(map[string]interface{}{"table": "orders"}, Defaults{SampleSize: 100})
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "database", ve.Field)
	assert.Equal(t, "ValidationError", ErrorType(err))
	assert.Equal(t, 400, StatusCode(err))
}

func TestResolveMissingTableIsValidationError(t *testing.T) {
	_, err := Resolve(map[string]interface{}{"database": "sales_db"}, Defaults{SampleSize: 100})
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "table", ve.Field)
}

func TestResolveNegativeSampleSizeRejected(t *testing.T) {
	_, err := Resolve(map[string]interface{}{
		"database":    "sales_db",
		"table":       "orders",
		"sample_size": -1,
	}, Defaults{})
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "sample_size", ve.Field)
}

func TestErrorTypeTaxonomy(t *testing.T) {
	assert.Equal(t, "MetadataNotFoundError", ErrorType(&MetadataNotFoundError{Database: "d", Table: "t"}))
	assert.Equal(t, 400, StatusCode(&MetadataNotFoundError{}))

	assert.Equal(t, "SamplingError", ErrorType(&SamplingError{Database: "d", Table: "t"}))
	assert.Equal(t, 500, StatusCode(&SamplingError{}))

	assert.Equal(t, "PersistenceError", ErrorType(&PersistenceError{Location: "s3://x"}))
	assert.Equal(t, 500, StatusCode(&PersistenceError{}))

	assert.Equal(t, "TransientServiceError", ErrorType(ErrTransientService))
	assert.True(t, IsTransient(ErrTransientService))
}
