package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbbridge/dbbridge/internal/dberr"
)

func newTestPool(t *testing.T, cfg PoolConfig) (*Pool, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	if cfg.Driver == "" {
		cfg.Driver = "postgres"
	}

	return newPoolFromDB(sqlDB, cfg), mock
}

func TestPoolLeaseAndRelease(t *testing.T) {
	pool, _ := newTestPool(t, PoolConfig{})

	conn, err := pool.Lease(context.Background())
	require.NoError(t, err)

	stats := pool.Stats()
	assert.Equal(t, 1, stats.Active)

	conn.Release()

	stats = pool.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 1, stats.Idle)
}

func TestPoolReleaseIsIdempotent(t *testing.T) {
	pool, _ := newTestPool(t, PoolConfig{})

	conn, err := pool.Lease(context.Background())
	require.NoError(t, err)

	conn.Release()
	conn.Release()

	stats := pool.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 1, stats.Idle)
}

func TestPoolLeaseTimesOutWhenExhausted(t *testing.T) {
	pool, _ := newTestPool(t, PoolConfig{MaxConns: 1, MaxIdle: 1, LeaseTimeout: 50 * time.Millisecond})

	conn, err := pool.Lease(context.Background())
	require.NoError(t, err)
	defer conn.Release()

	_, err = pool.Lease(context.Background())
	require.Error(t, err)

	var connErr *dberr.ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestPoolLeaseUnblocksOnRelease(t *testing.T) {
	pool, _ := newTestPool(t, PoolConfig{MaxConns: 1, MaxIdle: 1, LeaseTimeout: 2 * time.Second})

	first, err := pool.Lease(context.Background())
	require.NoError(t, err)

	leased := make(chan error, 1)
	go func() {
		conn, err := pool.Lease(context.Background())
		if err == nil {
			conn.Release()
		}
		leased <- err
	}()

	time.Sleep(20 * time.Millisecond)
	first.Release()

	select {
	case err := <-leased:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter never obtained the released connection")
	}
}

func TestPoolShutdownFailsSubsequentLeases(t *testing.T) {
	pool, mock := newTestPool(t, PoolConfig{})
	mock.ExpectClose()

	pool.Shutdown()

	_, err := pool.Lease(context.Background())
	require.Error(t, err)

	var connErr *dberr.ConnectionError
	assert.ErrorAs(t, err, &connErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolCheckHealth(t *testing.T) {
	pool, mock := newTestPool(t, PoolConfig{})
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	health := pool.CheckHealth(context.Background())
	assert.True(t, health.Connected)
	assert.Empty(t, health.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolCheckHealthReportsFailure(t *testing.T) {
	pool, mock := newTestPool(t, PoolConfig{})
	mock.ExpectQuery("SELECT 1").WillReturnError(assert.AnError)

	health := pool.CheckHealth(context.Background())
	assert.False(t, health.Connected)
	assert.NotEmpty(t, health.Error)
}

func TestPoolQueryCounter(t *testing.T) {
	pool, mock := newTestPool(t, PoolConfig{})
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	conn, err := pool.Lease(context.Background())
	require.NoError(t, err)
	defer conn.Release()

	_, err = conn.ExecContext(context.Background(), "UPDATE users SET active = true")
	require.NoError(t, err)

	rows, err := conn.QueryContext(context.Background(), "SELECT id FROM users")
	require.NoError(t, err)
	rows.Close()

	assert.Equal(t, int64(2), pool.Stats().Queries)
}

func TestDriverFromURL(t *testing.T) {
	assert.Equal(t, "mysql", DriverFromURL("mysql://root@localhost:3306/app"))
	assert.Equal(t, "postgres", DriverFromURL("postgres://user@localhost:5432/app"))
}
