package checker

// Column describes a single column as declared in the catalog.
type Column struct {
	Name         string `json:"name"`
	DeclaredType string `json:"declared_type"`
	Nullable     bool   `json:"nullable"`
	PrimaryKey   bool   `json:"primary_key"`
}

// TableMetadata is the catalog's view of a table. It is fetched once per
// invocation and read-only afterward.
type TableMetadata struct {
	Database string   `json:"database"`
	Table    string   `json:"table"`
	Columns  []Column `json:"columns"`
}

// Column returns the column with the given name, or nil.
func (m *TableMetadata) Column(name string) *Column {
	for i := range m.Columns {
		if m.Columns[i].Name == name {
			return &m.Columns[i]
		}
	}
	return nil
}

// Row maps column name to sampled value.
type Row map[string]interface{}

// SampleDataset is a bounded row sample materialized from the query engine.
// It is produced once and never mutated; the check engine and the AI agent
// share it concurrently.
type SampleDataset struct {
	Rows     []Row `json:"rows"`
	RowCount int   `json:"row_count"`
}

// CheckRequest is the resolved, validated request for one invocation.
type CheckRequest struct {
	Database         string `json:"database"`
	Table            string `json:"table"`
	SampleSize       int    `json:"sample_size"`
	EnableAIAnalysis bool   `json:"enable_ai_analysis"`
}
