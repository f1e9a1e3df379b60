package state

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdash/pkg/core"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// TestReplaceSnapshot_RollsBackOnInsertFailure drives the replace
// through a mocked connection to prove the delete half never commits
// when the insert half fails: the prior snapshot survives.
func TestReplaceSnapshot_RollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &SQLiteStore{db: db, logger: discardLogger()}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM data_points").
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectPrepare("INSERT INTO data_points").
		ExpectExec().
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = store.ReplaceSnapshot("m1", []core.DataPoint{
		{Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Value: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertTimeSeries_RollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &SQLiteStore{db: db, logger: discardLogger()}

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO data_points").
		ExpectExec().
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	err = store.UpsertTimeSeries("m1", []core.DataPoint{
		{Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Value: 1},
	})
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
