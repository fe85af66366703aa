package db

import (
	"context"
	"sync"
	"time"

	"github.com/dbbridge/dbbridge/internal/dberr"
	"github.com/dbbridge/dbbridge/internal/logger"
)

// AdapterStats aggregates the pool snapshot with registry and cache gauges.
type AdapterStats struct {
	Pool             PoolStats `json:"pool"`
	OpenTransactions int       `json:"open_transactions"`
	CacheEntries     int       `json:"cache_entries"`
}

// Adapter composes the pool, transaction registry, executor, and metadata
// cache behind the surface the tool handlers consume. Only one pool instance
// is alive at a time; a second connect is a warning no-op.
type Adapter struct {
	mu       sync.RWMutex
	pool     *Pool
	registry *TxRegistry
	exec     *Executor
	cache    *MetadataCache
}

// NewAdapter builds a disconnected adapter. The metadata cache lives for the
// adapter's whole lifetime; connect/disconnect cycles clear it but do not
// replace it.
func NewAdapter(cacheTTL time.Duration) *Adapter {
	return &Adapter{cache: NewMetadataCache(cacheTTL)}
}

// Connect establishes the pool. On failure no pool instance remains and
// subsequent calls see "not connected".
func (a *Adapter) Connect(ctx context.Context, cfg PoolConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pool != nil {
		logger.Warn("connect called while already connected; ignoring")
		return nil
	}

	pool, err := NewPool(ctx, cfg)
	if err != nil {
		logger.LogConnectionEvent("connect", cfg.Driver, err)
		return err
	}

	a.attach(pool)
	logger.LogConnectionEvent("connect", pool.Driver(), nil)

	return nil
}

func (a *Adapter) attach(pool *Pool) {
	a.pool = pool
	a.registry = NewTxRegistry(pool)
	a.exec = NewExecutor(pool)
}

// Disconnect rolls back every open transaction, shuts the pool down, then
// clears the metadata cache - in that order.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pool == nil {
		return nil
	}

	a.registry.RollbackAll(ctx)
	a.pool.Shutdown()
	a.cache.Clear()

	a.pool = nil
	a.registry = nil
	a.exec = nil

	logger.LogConnectionEvent("disconnect", "", nil)

	return nil
}

// Connected reports whether a pool is alive.
func (a *Adapter) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pool != nil
}

// Pool exposes the live pool, or nil when disconnected.
func (a *Adapter) Pool() *Pool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pool
}

// Health checks the pool round trip. A disconnected adapter reports
// Connected=false without an error.
func (a *Adapter) Health(ctx context.Context) HealthStatus {
	a.mu.RLock()
	pool := a.pool
	a.mu.RUnlock()

	if pool == nil {
		return HealthStatus{Connected: false, Error: "not connected"}
	}
	return pool.CheckHealth(ctx)
}

// Stats snapshots pool, registry, and cache gauges.
func (a *Adapter) Stats() AdapterStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AdapterStats{CacheEntries: a.cache.Len()}
	if a.pool != nil {
		stats.Pool = a.pool.Stats()
		stats.OpenTransactions = a.registry.Count()
	}
	return stats
}

func (a *Adapter) runtime() (*Executor, *TxRegistry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.pool == nil {
		return nil, nil, dberr.NewConnectionError("not connected")
	}
	return a.exec, a.registry, nil
}

// ExecuteQuery runs a statement on the autocommit path.
func (a *Adapter) ExecuteQuery(ctx context.Context, query string, params ...any) (*QueryResult, error) {
	exec, _, err := a.runtime()
	if err != nil {
		return nil, err
	}
	return exec.Execute(ctx, query, params...)
}

// ExecuteReadQuery is the read-intent path. The executor itself is
// statement-agnostic; the split exists for intent and metrics.
func (a *Adapter) ExecuteReadQuery(ctx context.Context, query string, params ...any) (*QueryResult, error) {
	return a.ExecuteQuery(ctx, query, params...)
}

// ExecuteWriteQuery is the write-intent path. Schema-mutating statements
// invalidate the affected metadata cache entries.
func (a *Adapter) ExecuteWriteQuery(ctx context.Context, query string, params ...any) (*QueryResult, error) {
	result, err := a.ExecuteQuery(ctx, query, params...)
	if err != nil {
		return nil, err
	}

	a.invalidateForCommand(result.Command)

	return result, nil
}

// ExecuteOnConnection runs a statement on a fixed leased connection, without
// touching its lease. Used for statements inside an open transaction.
func (a *Adapter) ExecuteOnConnection(ctx context.Context, conn *PooledConn, query string, params ...any) (*QueryResult, error) {
	exec, _, err := a.runtime()
	if err != nil {
		return nil, err
	}
	return exec.ExecuteOn(ctx, conn, query, params...)
}

// BeginTransaction opens a transaction and returns its opaque handle.
func (a *Adapter) BeginTransaction(ctx context.Context, isolation string) (string, error) {
	_, registry, err := a.runtime()
	if err != nil {
		return "", err
	}
	return registry.Begin(ctx, isolation)
}

func (a *Adapter) CommitTransaction(ctx context.Context, handle string) error {
	_, registry, err := a.runtime()
	if err != nil {
		return err
	}
	return registry.Commit(ctx, handle)
}

func (a *Adapter) RollbackTransaction(ctx context.Context, handle string) error {
	_, registry, err := a.runtime()
	if err != nil {
		return err
	}
	return registry.Rollback(ctx, handle)
}

// TransactionConnection resolves a handle to its leased connection.
func (a *Adapter) TransactionConnection(handle string) (*PooledConn, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.registry == nil {
		return nil, false
	}
	return a.registry.Connection(handle)
}

func (a *Adapter) CreateSavepoint(ctx context.Context, handle, name string) error {
	_, registry, err := a.runtime()
	if err != nil {
		return err
	}
	return registry.CreateSavepoint(ctx, handle, name)
}

func (a *Adapter) ReleaseSavepoint(ctx context.Context, handle, name string) error {
	_, registry, err := a.runtime()
	if err != nil {
		return err
	}
	return registry.ReleaseSavepoint(ctx, handle, name)
}

func (a *Adapter) RollbackToSavepoint(ctx context.Context, handle, name string) error {
	_, registry, err := a.runtime()
	if err != nil {
		return err
	}
	return registry.RollbackToSavepoint(ctx, handle, name)
}

// ClearMetadataCache drops every cached metadata entry.
func (a *Adapter) ClearMetadataCache() {
	a.cache.Clear()
}

func (a *Adapter) invalidateForCommand(command string) {
	switch command {
	case "CREATE":
		a.cache.InvalidatePrefix("list_tables")
	case "DROP", "ALTER", "TRUNCATE", "RENAME":
		a.cache.Clear()
	}
}

func (a *Adapter) defaultSchema(schema string) string {
	if schema != "" {
		return schema
	}
	return "public"
}

// ListTables returns the table listing, cached under "list_tables" (or
// "list_tables:<schema>" when filtered).
func (a *Adapter) ListTables(ctx context.Context, schema string) ([]TableInfo, error) {
	key := listTablesKey(schema)
	if cached, ok := a.cache.Get(key); ok {
		return cached.([]TableInfo), nil
	}

	exec, _, err := a.runtime()
	if err != nil {
		return nil, err
	}

	queries := sqlForDriver(a.driver())
	var result *QueryResult
	if schema == "" {
		result, err = exec.Execute(ctx, queries.listTables)
	} else {
		result, err = exec.Execute(ctx, queries.listTablesFiltered, schema)
	}
	if err != nil {
		return nil, err
	}

	tables := make([]TableInfo, 0, len(result.Rows))
	for _, row := range result.Rows {
		tables = append(tables, TableInfo{
			Name:   asString(row["table_name"]),
			Schema: asString(row["table_schema"]),
			Type:   normalizeTableType(asString(row["table_type"])),
		})
	}

	a.cache.Set(key, tables)

	return tables, nil
}

// DescribeTable returns the full table snapshot (columns, primary keys,
// indexes, foreign keys, row estimate), cached per schema-qualified table.
// A cache miss issues exactly five metadata queries.
func (a *Adapter) DescribeTable(ctx context.Context, table, schema string) (*TableDescription, error) {
	schema = a.defaultSchema(schema)

	key := describeTableKey(schema, table)
	if cached, ok := a.cache.Get(key); ok {
		return cached.(*TableDescription), nil
	}

	exec, _, err := a.runtime()
	if err != nil {
		return nil, err
	}

	queries := sqlForDriver(a.driver())
	desc := &TableDescription{Table: table, Schema: schema}

	colResult, err := exec.Execute(ctx, queries.columns, table, schema)
	if err != nil {
		return nil, err
	}
	for _, row := range colResult.Rows {
		col := ColumnInfo{
			Name:         asString(row["column_name"]),
			DataType:     asString(row["data_type"]),
			IsNullable:   asBool(row["is_nullable"]),
			DefaultValue: asString(row["default_value"]),
		}
		if maxLen, ok := asInt64(row["character_maximum_length"]); ok {
			col.CharMaxLength = &maxLen
		}
		desc.Columns = append(desc.Columns, col)
	}

	pkResult, err := exec.Execute(ctx, queries.primaryKeys, table, schema)
	if err != nil {
		return nil, err
	}
	pkSet := make(map[string]bool, len(pkResult.Rows))
	for _, row := range pkResult.Rows {
		name := asString(row["column_name"])
		desc.PrimaryKeys = append(desc.PrimaryKeys, name)
		pkSet[name] = true
	}
	for i := range desc.Columns {
		desc.Columns[i].IsPrimaryKey = pkSet[desc.Columns[i].Name]
	}

	desc.Indexes, err = a.fetchIndexes(ctx, exec, queries, table, schema)
	if err != nil {
		return nil, err
	}

	fkResult, err := exec.Execute(ctx, queries.foreignKeys, table, schema)
	if err != nil {
		return nil, err
	}
	for _, row := range fkResult.Rows {
		desc.ForeignKeys = append(desc.ForeignKeys, ForeignKeyInfo{
			Name:             asString(row["constraint_name"]),
			Column:           asString(row["column_name"]),
			ReferencedTable:  asString(row["referenced_table"]),
			ReferencedColumn: asString(row["referenced_column"]),
		})
	}

	estResult, err := exec.Execute(ctx, queries.rowEstimate, table, schema)
	if err != nil {
		return nil, err
	}
	if len(estResult.Rows) > 0 {
		if est, ok := asInt64(estResult.Rows[0]["row_estimate"]); ok {
			desc.RowEstimate = est
		}
	}

	a.cache.Set(key, desc)

	return desc, nil
}

// TableIndexes returns the indexes of one table, cached per schema-qualified
// table.
func (a *Adapter) TableIndexes(ctx context.Context, table, schema string) ([]IndexInfo, error) {
	schema = a.defaultSchema(schema)

	key := tableIndexesKey(schema, table)
	if cached, ok := a.cache.Get(key); ok {
		return cached.([]IndexInfo), nil
	}

	exec, _, err := a.runtime()
	if err != nil {
		return nil, err
	}

	indexes, err := a.fetchIndexes(ctx, exec, sqlForDriver(a.driver()), table, schema)
	if err != nil {
		return nil, err
	}

	a.cache.Set(key, indexes)

	return indexes, nil
}

func (a *Adapter) fetchIndexes(ctx context.Context, exec *Executor, queries dialectSQL, table, schema string) ([]IndexInfo, error) {
	result, err := exec.Execute(ctx, queries.indexes, table, schema)
	if err != nil {
		return nil, err
	}

	indexes := make([]IndexInfo, 0, len(result.Rows))
	for _, row := range result.Rows {
		indexes = append(indexes, IndexInfo{
			Name:     asString(row["index_name"]),
			Columns:  splitIndexColumns(asString(row["columns"])),
			IsUnique: asBool(row["is_unique"]),
		})
	}

	return indexes, nil
}

func (a *Adapter) driver() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.pool == nil {
		return ""
	}
	return a.pool.Driver()
}
