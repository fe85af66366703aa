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

func newTestAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	adapter := NewAdapter(time.Minute)
	adapter.attach(newPoolFromDB(sqlDB, PoolConfig{Driver: "postgres"}))

	return adapter, mock
}

func expectDescribeTableQueries(mock sqlmock.Sqlmock, table, schema string) {
	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs(table, schema).
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "default_value", "character_maximum_length"}).
			AddRow("id", "integer", false, "nextval('users_id_seq')", nil).
			AddRow("email", "character varying", true, "", 255))
	mock.ExpectQuery("PRIMARY KEY").
		WithArgs(table, schema).
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id"))
	mock.ExpectQuery("pg_index").
		WithArgs(table, schema).
		WillReturnRows(sqlmock.NewRows([]string{"index_name", "columns", "is_unique"}).
			AddRow("users_pkey", "{id}", true).
			AddRow("users_email_idx", "{email,id}", false))
	mock.ExpectQuery("FOREIGN KEY").
		WithArgs(table, schema).
		WillReturnRows(sqlmock.NewRows([]string{"constraint_name", "column_name", "referenced_table", "referenced_column"}).
			AddRow("users_org_fk", "org_id", "orgs", "id"))
	mock.ExpectQuery("reltuples").
		WithArgs(table, schema).
		WillReturnRows(sqlmock.NewRows([]string{"row_estimate"}).AddRow(42))
}

func TestDescribeTableIssuesFiveQueriesThenHitsCache(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	expectDescribeTableQueries(mock, "users", "public")

	first, err := adapter.DescribeTable(context.Background(), "users", "public")
	require.NoError(t, err)

	require.Len(t, first.Columns, 2)
	assert.True(t, first.Columns[0].IsPrimaryKey)
	assert.False(t, first.Columns[1].IsPrimaryKey)
	require.NotNil(t, first.Columns[1].CharMaxLength)
	assert.Equal(t, int64(255), *first.Columns[1].CharMaxLength)
	assert.Equal(t, []string{"id"}, first.PrimaryKeys)
	require.Len(t, first.Indexes, 2)
	assert.Equal(t, []string{"email", "id"}, first.Indexes[1].Columns)
	require.Len(t, first.ForeignKeys, 1)
	assert.Equal(t, "orgs", first.ForeignKeys[0].ReferencedTable)
	assert.Equal(t, int64(42), first.RowEstimate)

	// second call serves from cache: zero additional queries, same object
	second, err := adapter.DescribeTable(context.Background(), "users", "public")
	require.NoError(t, err)
	assert.Same(t, first, second)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDescribeTableCacheKeysAreSchemaQualified(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	expectDescribeTableQueries(mock, "users", "public")
	expectDescribeTableQueries(mock, "users", "custom")

	public, err := adapter.DescribeTable(context.Background(), "users", "public")
	require.NoError(t, err)
	custom, err := adapter.DescribeTable(context.Background(), "users", "custom")
	require.NoError(t, err)

	assert.NotSame(t, public, custom)
	assert.Equal(t, "public", public.Schema)
	assert.Equal(t, "custom", custom.Schema)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTablesCachesAndRequeriesAfterClear(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	tableRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"table_name", "table_schema", "table_type"}).
			AddRow("users", "public", "BASE TABLE").
			AddRow("user_view", "public", "VIEW")
	}
	mock.ExpectQuery("FROM information_schema.tables").WillReturnRows(tableRows())
	mock.ExpectQuery("FROM information_schema.tables").WillReturnRows(tableRows())

	first, err := adapter.ListTables(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "table", first[0].Type)
	assert.Equal(t, "view", first[1].Type)

	// cache hit: same backing slice, no second query yet
	cached, err := adapter.ListTables(context.Background(), "")
	require.NoError(t, err)
	assert.Same(t, &first[0], &cached[0])

	adapter.ClearMetadataCache()

	_, err = adapter.ListTables(context.Background(), "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableIndexesCached(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	mock.ExpectQuery("pg_index").
		WithArgs("users", "public").
		WillReturnRows(sqlmock.NewRows([]string{"index_name", "columns", "is_unique"}).
			AddRow("users_pkey", "{id}", true))

	first, err := adapter.TableIndexes(context.Background(), "users", "")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "users_pkey", first[0].Name)

	second, err := adapter.TableIndexes(context.Background(), "users", "public")
	require.NoError(t, err)
	assert.Same(t, &first[0], &second[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteWriteQueryInvalidatesListTablesOnCreate(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	mock.ExpectQuery("FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "table_schema", "table_type"}).
			AddRow("users", "public", "BASE TABLE"))
	mock.ExpectExec("CREATE TABLE orders").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "table_schema", "table_type"}).
			AddRow("orders", "public", "BASE TABLE").
			AddRow("users", "public", "BASE TABLE"))

	_, err := adapter.ListTables(context.Background(), "")
	require.NoError(t, err)

	_, err = adapter.ExecuteWriteQuery(context.Background(), "CREATE TABLE orders (id serial)")
	require.NoError(t, err)

	tables, err := adapter.ListTables(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, tables, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDropClearsDescribeCacheToo(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	expectDescribeTableQueries(mock, "users", "public")
	mock.ExpectExec("DROP TABLE users").WillReturnResult(sqlmock.NewResult(0, 0))
	expectDescribeTableQueries(mock, "users", "public")

	first, err := adapter.DescribeTable(context.Background(), "users", "public")
	require.NoError(t, err)

	_, err = adapter.ExecuteWriteQuery(context.Background(), "DROP TABLE users")
	require.NoError(t, err)

	second, err := adapter.DescribeTable(context.Background(), "users", "public")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisconnectRollsBackOpenTransactionsFirst(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	handle, err := adapter.BeginTransaction(context.Background(), "")
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	require.NoError(t, adapter.Disconnect(context.Background()))

	// ordered expectations prove ROLLBACK preceded the pool close
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.False(t, adapter.Connected())

	var connErr *dberr.ConnectionError
	assert.ErrorAs(t, adapter.CommitTransaction(context.Background(), handle), &connErr)
}

func TestDisconnectClearsCache(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	mock.ExpectQuery("FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "table_schema", "table_type"}).
			AddRow("users", "public", "BASE TABLE"))
	mock.ExpectClose()

	_, err := adapter.ListTables(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.Stats().CacheEntries)

	require.NoError(t, adapter.Disconnect(context.Background()))
	assert.Equal(t, 0, adapter.Stats().CacheEntries)
}

func TestOperationsFailWhenNotConnected(t *testing.T) {
	adapter := NewAdapter(time.Minute)

	var connErr *dberr.ConnectionError

	_, err := adapter.ExecuteQuery(context.Background(), "SELECT 1")
	assert.ErrorAs(t, err, &connErr)

	_, err = adapter.BeginTransaction(context.Background(), "")
	assert.ErrorAs(t, err, &connErr)

	_, err = adapter.ListTables(context.Background(), "")
	assert.ErrorAs(t, err, &connErr)

	health := adapter.Health(context.Background())
	assert.False(t, health.Connected)

	// disconnect on a disconnected adapter is a no-op
	assert.NoError(t, adapter.Disconnect(context.Background()))
}

func TestConnectTwiceIsNoOp(t *testing.T) {
	adapter, mock := newTestAdapter(t)

	pool := adapter.Pool()
	require.NotNil(t, pool)

	// second connect while alive must not replace the pool
	require.NoError(t, adapter.Connect(context.Background(), PoolConfig{URL: "postgres://other"}))
	assert.Same(t, pool, adapter.Pool())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionConnectionRoundTrip(t *testing.T) {
	adapter, mock := newTestAdapter(t)
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO t").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	handle, err := adapter.BeginTransaction(ctx, "")
	require.NoError(t, err)

	conn, ok := adapter.TransactionConnection(handle)
	require.True(t, ok)

	result, err := adapter.ExecuteOnConnection(ctx, conn, "INSERT INTO t (v) VALUES (1)")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.RowsAffected)

	require.NoError(t, adapter.CommitTransaction(ctx, handle))
	assert.NoError(t, mock.ExpectationsWereMet())
}
