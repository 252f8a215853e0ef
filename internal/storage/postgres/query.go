package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so repositories run
// the same statements inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// scanFunc reads one model from a row. pgx.Rows satisfies pgx.Row, so the
// same function serves single-row and multi-row queries.
type scanFunc[T any] func(row pgx.Row) (*T, error)

// queryOne returns nil, nil when the query matches no row.
func queryOne[T any](ctx context.Context, db querier, query string, scan scanFunc[T], args ...any) (*T, error) {
	item, err := scan(db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func queryMany[T any](ctx context.Context, db querier, query string, scan scanFunc[T], args ...any) ([]*T, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*T, error) {
		return scan(row)
	})
}

// sendBatch queues n statements and executes them in one round trip.
func sendBatch(ctx context.Context, db querier, n int, queue func(batch *pgx.Batch, i int)) error {
	if n == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := 0; i < n; i++ {
		queue(batch, i)
	}

	results := db.SendBatch(ctx, batch)
	for i := 0; i < n; i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

// limitArg maps a non-positive limit to NULL, which Postgres reads as no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
