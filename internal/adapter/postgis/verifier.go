package postgis

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// conn is the subset of *pgx.Conn the verifier needs.
type conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Verifier counts rows in loaded tables. Each check opens its own connection,
// matching how ogr2ogr connects per load.
// It implements pipeline.Verifier.
type Verifier struct {
	connect func(ctx context.Context) (conn, error)
}

// NewVerifier creates a Verifier for a libpq-style connection string such as
// "dbname=gisdata host=localhost user=geoserver".
func NewVerifier(pgString string) *Verifier {
	return &Verifier{
		connect: func(ctx context.Context) (conn, error) {
			c, err := pgx.Connect(ctx, pgString)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

// CountRows returns the number of rows in table.
func (v *Verifier) CountRows(ctx context.Context, table string) (int64, error) {
	c, err := v.connect(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgis: connect: %w", err)
	}
	defer c.Close(ctx) //nolint:errcheck // read-only connection

	return countRows(ctx, c, table)
}

func countRows(ctx context.Context, q conn, table string) (int64, error) {
	sql := "SELECT count(*) FROM " + pgx.Identifier{table}.Sanitize()

	var n int64
	if err := q.QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgis: count %s: %w", table, err)
	}
	return n, nil
}
