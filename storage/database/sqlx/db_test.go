package sqlxrepos

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = mockDB.Close()
	})
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func quote(q string) string {
	return regexp.QuoteMeta(q)
}

func TestTransactor_WithinTx(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		fnErr   error
		wantErr error
	}{
		{
			name: "commit",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(quote(`DELETE FROM chat WHERE id = $1`)).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "rollback",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(quote(`DELETE FROM chat WHERE id = $1`)).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectRollback()
			},
			fnErr:   errBoom,
			wantErr: errBoom,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			tt.setup(mock)
			repo := NewChatRepository(db)

			err := NewTransactor(db).WithinTx(context.Background(), func(exec core.DBExecutor) error {
				_, ok := exec.(*sqlx.Tx)
				assert.True(t, ok, "exec is the transaction")
				if err := repo.DeleteChat(context.Background(), 1, exec); err != nil {
					return err
				}
				return tt.fnErr
			})
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}
}

func TestOrderBy(t *testing.T) {
	assert.Equal(t, " ORDER BY id", orderBy(nil, "id"))
	assert.Equal(t, " ORDER BY title ASC, created_at DESC", orderBy([]core.DBOrdering{
		{Field: "title", Ascending: true},
		{Field: "created_at"},
	}, "id"))
}

func TestWhereClause(t *testing.T) {
	var where whereClause
	assert.Equal(t, "", where.String())

	where.add("a = ?", 1)
	where.add("(b = ? OR c = ?)", 2, 3)
	assert.Equal(t, " WHERE a = ? AND (b = ? OR c = ?)", where.String())
	assert.Equal(t, []interface{}{1, 2, 3}, where.args)
}
