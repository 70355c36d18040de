package catalog

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/datalith/dq-check-workflow/checker"
)

// PostgresCatalog resolves table schemas from a Postgres information_schema.
// The configured database_url points at the catalog host; the database field
// of a request maps to the Postgres schema name.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

func NewPostgresCatalog(ctx context.Context, databaseURL string) (*PostgresCatalog, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to catalog database")
	}
	return &PostgresCatalog{pool: pool}, nil
}

const columnsQuery = `
SELECT c.column_name,
       c.data_type,
       c.is_nullable = 'YES',
       COALESCE(k.is_pk, false)
FROM information_schema.columns c
LEFT JOIN (
    SELECT kcu.column_name, true AS is_pk
    FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage kcu
      ON tc.constraint_name = kcu.constraint_name
     AND tc.table_schema = kcu.table_schema
    WHERE tc.constraint_type = 'PRIMARY KEY'
      AND tc.table_schema = $1
      AND tc.table_name = $2
) k ON k.column_name = c.column_name
WHERE c.table_schema = $1
  AND c.table_name = $2
ORDER BY c.ordinal_position`

func (p *PostgresCatalog) GetTableMetadata(ctx context.Context, database, table string) (*checker.TableMetadata, error) {
	rows, err := p.pool.Query(ctx, columnsQuery, database, table)
	if err != nil {
		// Connection-level failures are retryable; the schema query itself
		// cannot produce a permanent error for valid inputs.
		return nil, errors.Wrapf(checker.ErrTransientService, "catalog query failed: %v", err)
	}
	defer rows.Close()

	md := &checker.TableMetadata{Database: database, Table: table}
	for rows.Next() {
		var col checker.Column
		if err := rows.Scan(&col.Name, &col.DeclaredType, &col.Nullable, &col.PrimaryKey); err != nil {
			return nil, errors.Wrap(err, "error scanning catalog row")
		}
		md.Columns = append(md.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(checker.ErrTransientService, "catalog read failed: %v", err)
	}

	// information_schema returns zero rows for unknown tables rather than an
	// error, so absence of columns is the not-found signal.
	if len(md.Columns) == 0 {
		return nil, &checker.MetadataNotFoundError{Database: database, Table: table}
	}

	log.Printf("Fetched metadata for %s.%s: %d columns", database, table, len(md.Columns))
	return md, nil
}

func (p *PostgresCatalog) Close() {
	p.pool.Close()
}
