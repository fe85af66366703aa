package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbbridge/dbbridge/internal/dberr"
)

func newTestRegistry(t *testing.T) (*TxRegistry, *Pool, sqlmock.Sqlmock) {
	t.Helper()
	pool, mock := newTestPool(t, PoolConfig{})
	return NewTxRegistry(pool), pool, mock
}

func TestBeginCommitReleasesConnectionOnce(t *testing.T) {
	registry, pool, mock := newTestRegistry(t)
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	handle, err := registry.Begin(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, handle)
	assert.Equal(t, 1, pool.Stats().Active)

	require.NoError(t, registry.Commit(context.Background(), handle))
	assert.Equal(t, 0, pool.Stats().Active)
	assert.Equal(t, 0, registry.Count())

	// the handle is terminal now
	err = registry.Commit(context.Background(), handle)
	var txErr *dberr.TransactionError
	assert.ErrorAs(t, err, &txErr)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginRollback(t *testing.T) {
	registry, pool, mock := newTestRegistry(t)
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	handle, err := registry.Begin(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, registry.Rollback(context.Background(), handle))
	assert.Equal(t, 0, pool.Stats().Active)

	var txErr *dberr.TransactionError
	assert.ErrorAs(t, registry.Rollback(context.Background(), handle), &txErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginWithNonDefaultIsolation(t *testing.T) {
	registry, _, mock := newTestRegistry(t)
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET TRANSACTION ISOLATION LEVEL SERIALIZABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	handle, err := registry.Begin(context.Background(), "serializable")
	require.NoError(t, err)

	require.NoError(t, registry.Commit(context.Background(), handle))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginRejectsUnknownIsolation(t *testing.T) {
	registry, pool, mock := newTestRegistry(t)

	_, err := registry.Begin(context.Background(), "CHAOS")
	var txErr *dberr.TransactionError
	assert.ErrorAs(t, err, &txErr)
	assert.Equal(t, 0, pool.Stats().Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailedBeginReleasesConnection(t *testing.T) {
	registry, pool, mock := newTestRegistry(t)
	mock.ExpectExec("BEGIN").WillReturnError(errors.New("server shutting down"))

	_, err := registry.Begin(context.Background(), "")
	require.Error(t, err)

	var txErr *dberr.TransactionError
	assert.ErrorAs(t, err, &txErr)
	assert.Equal(t, 0, pool.Stats().Active)
	assert.Equal(t, 0, registry.Count())
}

func TestFailedCommitStillReleasesAndInvalidatesHandle(t *testing.T) {
	registry, pool, mock := newTestRegistry(t)
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("COMMIT").WillReturnError(errors.New("deadlock detected"))

	handle, err := registry.Begin(context.Background(), "")
	require.NoError(t, err)

	err = registry.Commit(context.Background(), handle)
	require.Error(t, err)

	// fail-open cleanup: handle gone, lease returned, error still reported
	_, ok := registry.Connection(handle)
	assert.False(t, ok)
	assert.Equal(t, 0, pool.Stats().Active)
}

func TestSavepointScenarioIssuesStatementsInOrder(t *testing.T) {
	registry, _, mock := newTestRegistry(t)
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SAVEPOINT sp1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT sp1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	handle, err := registry.Begin(ctx, "")
	require.NoError(t, err)

	require.NoError(t, registry.CreateSavepoint(ctx, handle, "sp1"))
	require.NoError(t, registry.RollbackToSavepoint(ctx, handle, "sp1"))
	require.NoError(t, registry.Commit(ctx, handle))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavepointTracking(t *testing.T) {
	registry, _, mock := newTestRegistry(t)
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SAVEPOINT sp1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SAVEPOINT sp2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT sp1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("RELEASE SAVEPOINT sp1").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	handle, err := registry.Begin(ctx, "")
	require.NoError(t, err)

	require.NoError(t, registry.CreateSavepoint(ctx, handle, "sp1"))
	require.NoError(t, registry.CreateSavepoint(ctx, handle, "sp2"))

	tx, err := registry.get(handle)
	require.NoError(t, err)
	assert.Equal(t, []string{"sp1", "sp2"}, tx.Savepoints())

	// rolling back to sp1 discards sp2 but keeps sp1
	require.NoError(t, registry.RollbackToSavepoint(ctx, handle, "sp1"))
	assert.Equal(t, []string{"sp1"}, tx.Savepoints())

	require.NoError(t, registry.ReleaseSavepoint(ctx, handle, "sp1"))
	assert.Empty(t, tx.Savepoints())
}

func TestInvalidSavepointNameRejectedWithoutDatabase(t *testing.T) {
	registry, _, mock := newTestRegistry(t)
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))

	handle, err := registry.Begin(context.Background(), "")
	require.NoError(t, err)

	var txErr *dberr.TransactionError
	for _, name := range []string{"1leading", "sp 1", "sp;drop", "", "sp-1"} {
		assert.ErrorAs(t, registry.CreateSavepoint(context.Background(), handle, name), &txErr)
		assert.ErrorAs(t, registry.ReleaseSavepoint(context.Background(), handle, name), &txErr)
		assert.ErrorAs(t, registry.RollbackToSavepoint(context.Background(), handle, name), &txErr)
	}

	// nothing beyond BEGIN reached the database
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSavepointOnUnknownHandle(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	var txErr *dberr.TransactionError
	assert.ErrorAs(t, registry.CreateSavepoint(context.Background(), "missing", "sp1"), &txErr)
	assert.ErrorAs(t, registry.ReleaseSavepoint(context.Background(), "missing", "sp1"), &txErr)
	assert.ErrorAs(t, registry.RollbackToSavepoint(context.Background(), "missing", "sp1"), &txErr)
}

func TestConnectionLookup(t *testing.T) {
	registry, _, mock := newTestRegistry(t)
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))

	handle, err := registry.Begin(context.Background(), "")
	require.NoError(t, err)

	conn, ok := registry.Connection(handle)
	assert.True(t, ok)
	assert.NotNil(t, conn)

	_, ok = registry.Connection("missing")
	assert.False(t, ok)
}

func TestRollbackAll(t *testing.T) {
	registry, pool, mock := newTestRegistry(t)
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	h1, err := registry.Begin(context.Background(), "")
	require.NoError(t, err)
	h2, err := registry.Begin(context.Background(), "")
	require.NoError(t, err)

	registry.RollbackAll(context.Background())

	assert.Equal(t, 0, registry.Count())
	assert.Equal(t, 0, pool.Stats().Active)

	var txErr *dberr.TransactionError
	assert.ErrorAs(t, registry.Commit(context.Background(), h1), &txErr)
	assert.ErrorAs(t, registry.Rollback(context.Background(), h2), &txErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}
