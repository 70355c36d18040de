package sampler

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/datalith/dq-check-workflow/checker"
)

// PostgresEngine runs sample queries against Postgres through pgx.
type PostgresEngine struct {
	pool *pgxpool.Pool
}

func NewPostgresEngine(ctx context.Context, databaseURL string) (*PostgresEngine, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to query engine")
	}
	return &PostgresEngine{pool: pool}, nil
}

func (e *PostgresEngine) RunSampleQuery(ctx context.Context, md *checker.TableMetadata, limit int) ([]checker.Row, error) {
	cols := make([]string, len(md.Columns))
	for i, c := range md.Columns {
		cols[i] = quoteIdent(c.Name)
	}

	query := fmt.Sprintf("SELECT %s FROM %s.%s LIMIT $1",
		strings.Join(cols, ", "), quoteIdent(md.Database), quoteIdent(md.Table))

	rows, err := e.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrapf(checker.ErrTransientService, "sample query failed: %v", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []checker.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, "error reading sample row")
		}
		row := make(checker.Row, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(checker.ErrTransientService, "sample read failed: %v", err)
	}

	return out, nil
}

// CountMissingReferences checks a configured foreign-key relationship: it
// returns how many of the given values have no match in the referenced
// table. Used by the referential-integrity check category.
func (e *PostgresEngine) CountMissingReferences(ctx context.Context, database, refTable, refColumn string, values []interface{}) (int, error) {
	if len(values) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM unnest($1::text[]) AS v(val) WHERE NOT EXISTS (SELECT 1 FROM %s.%s r WHERE r.%s::text = v.val)",
		quoteIdent(database), quoteIdent(refTable), quoteIdent(refColumn))

	texts := make([]string, len(values))
	for i, v := range values {
		texts[i] = fmt.Sprintf("%v", v)
	}

	var missing int
	if err := e.pool.QueryRow(ctx, query, texts).Scan(&missing); err != nil {
		return 0, errors.Wrapf(checker.ErrTransientService, "reference lookup failed: %v", err)
	}
	return missing, nil
}

func (e *PostgresEngine) Close() {
	e.pool.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
