package core

import (
	"context"
	"database/sql"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx so that repositories
	// can run inside or outside a transaction.
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DB interface {
		DBExecutor

		PingContext(ctx context.Context) error
		Close() error
	}

	// Transactor runs fn inside a single database transaction.
	// The transaction is committed if fn returns nil, rolled back otherwise.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// FilterOrderings drops the orderings whose field is not in allowed.
func FilterOrderings(ords []DBOrdering, allowed ...string) []DBOrdering {
	res := make([]DBOrdering, 0, len(ords))
	for _, ord := range ords {
		for _, f := range allowed {
			if ord.Field == f {
				res = append(res, ord)
				break
			}
		}
	}
	return res
}
