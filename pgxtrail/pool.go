package pgxtrail

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The concrete pool backs both the reading and the schema surface.
var (
	_ DB     = (*pgxpool.Pool)(nil)
	_ Execer = (*pgxpool.Pool)(nil)
)

// Connect dials a pgx pool for dsn and verifies the connection. The
// returned pool satisfies both DB and Execer; callers own its Close.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
