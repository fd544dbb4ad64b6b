// Package pgxtrail reads audit history out of PostgreSQL. It compiles
// the filter, ordering and pagination vocabulary of the root package
// into parameterized statements, executes them over a pgx connection,
// and maps rows back to entries.
package pgxtrail

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgxpool.Pool methods the reading side needs. Audit
// tables are append-only from this layer's perspective, so the surface
// is query-only. *pgxpool.Pool satisfies it, as does a test mock.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Execer is the write-capable surface consumed only by schema setup.
// *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// rowsToMaps materializes rows into column-keyed maps, preserving the
// order the storage returned them in.
func rowsToMaps(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, fd := range fields {
		cols[i] = fd.Name
	}

	var out []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
