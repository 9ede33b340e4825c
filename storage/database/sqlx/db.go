package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// postgres error codes
const (
	fkViolation     = "23503"
	uniqueViolation = "23505"
)

type transactor struct {
	db *sqlx.DB
}

var _ core.Transactor = (*transactor)(nil) // interface compliance check

func NewTransactor(db *sqlx.DB) core.Transactor {
	return &transactor{db: db}
}

func (tx *transactor) WithinTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	t, err := tx.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(t); err != nil {
		if rbErr := t.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back transaction: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(t.Commit(), "committing transaction")
}

type baseRepository struct {
	db *sqlx.DB
}

// getExec returns the transaction passed by the service, if any.
func (repo baseRepository) getExec(svcExec []core.DBExecutor) sqlx.ExtContext {
	if len(svcExec) > 0 && svcExec[0] != nil {
		if ext, ok := svcExec[0].(sqlx.ExtContext); ok {
			return ext
		}
	}
	return repo.db
}

// trapNoRowsErr maps psql "no rows" err to notFoundErr
func trapNoRowsErr(err error, notFoundErr error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFoundErr
	}
	return errors.Wrap(err, msg)
}

func pqErrCode(err error) pq.ErrorCode {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		return pqErr.Code
	}
	return ""
}

// rowsAffected takes the results of ExecContext.
func rowsAffected(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// whereClause collects "?" conditions joined with AND.
type whereClause struct {
	conds []string
	args  []interface{}
}

func (w *whereClause) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func orderBy(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + fallback
	}
	ords := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		ords = append(ords, ord.String())
	}
	return " ORDER BY " + strings.Join(ords, ", ")
}

// selectIDs runs a query returning a single int column.
func selectIDs(ctx context.Context, exec sqlx.ExtContext, query string, args ...interface{}) ([]int, error) {
	ids := make([]int, 0)
	if err := sqlx.SelectContext(ctx, exec, &ids, query, args...); err != nil {
		return nil, err
	}
	return ids, nil
}
