package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestMySQLDSN(t *testing.T) {
	assert.Equal(t, "u:p@tcp(db:3306)/app?parseTime=true&multiStatements=true", mysqlDSN("u:p@tcp(db:3306)/app"))
	assert.Equal(t, "u:p@tcp(db)/app?parseTime=false&multiStatements=true", mysqlDSN("u:p@tcp(db)/app?parseTime=false"))
}

func TestWithTxCommits(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE leases").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := WithTx(context.Background(), db, func(tx *sqlx.Tx) error {
		_, err := tx.Exec("UPDATE leases SET status = 'terminated'")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBack(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := WithTx(context.Background(), db, func(tx *sqlx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryMaps(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT validation_status, COUNT").
		WithArgs("approved").
		WillReturnRows(sqlmock.NewRows([]string{"validation_status", "total"}).
			AddRow([]byte("approved"), int64(4)))

	rows, err := QueryMaps(context.Background(), db, "SELECT validation_status, COUNT(*) AS total FROM properties WHERE validation_status = ? GROUP BY validation_status", "approved")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "approved", rows[0]["validation_status"])
	assert.Equal(t, int64(4), rows[0]["total"])
}

func TestQueryMapNoRows(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT id FROM users").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := QueryMap(context.Background(), db, "SELECT id FROM users WHERE email = ?", "x@y.z")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
