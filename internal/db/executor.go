package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/dbbridge/dbbridge/internal/dberr"
	"github.com/dbbridge/dbbridge/internal/logger"
)

// FieldInfo describes one result column, when the driver exposes metadata.
type FieldInfo struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// QueryResult is the normalized outcome of one statement.
type QueryResult struct {
	Rows            []map[string]any `json:"rows,omitempty"`
	Fields          []FieldInfo      `json:"fields,omitempty"`
	RowsAffected    int64            `json:"rows_affected"`
	Command         string           `json:"command"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
}

// Executor runs parameterized statements either against the pool (autocommit
// path) or against a fixed leased connection (transactional path). It is
// statement-agnostic; read/write intent lives at the facade.
type Executor struct {
	pool *Pool
}

func NewExecutor(pool *Pool) *Executor {
	return &Executor{pool: pool}
}

// Execute leases a connection, runs the statement, and releases the
// connection on every exit path.
func (e *Executor) Execute(ctx context.Context, query string, params ...any) (*QueryResult, error) {
	conn, err := e.pool.Lease(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	return e.run(ctx, conn, query, params)
}

// ExecuteOn runs the statement on a specific leased connection without
// touching its lease. Used for statements inside an open transaction.
func (e *Executor) ExecuteOn(ctx context.Context, conn *PooledConn, query string, params ...any) (*QueryResult, error) {
	return e.run(ctx, conn, query, params)
}

func (e *Executor) run(ctx context.Context, conn *PooledConn, query string, params []any) (*QueryResult, error) {
	start := time.Now()
	command := commandVerb(query)

	result := &QueryResult{Command: command}

	if returnsRows(command) {
		rows, err := conn.QueryContext(ctx, query, params...)
		if err != nil {
			logger.LogDatabaseOperation(command, query, 0, err)
			return nil, dberr.NewQueryErrorWrapper(err, "%s failed", command)
		}
		defer rows.Close()

		result.Rows, result.Fields, err = scanRows(rows)
		if err != nil {
			logger.LogDatabaseOperation(command, query, 0, err)
			return nil, dberr.NewQueryErrorWrapper(err, "%s failed", command)
		}
		result.RowsAffected = int64(len(result.Rows))
	} else {
		res, err := conn.ExecContext(ctx, query, params...)
		if err != nil {
			logger.LogDatabaseOperation(command, query, 0, err)
			return nil, dberr.NewQueryErrorWrapper(err, "%s failed", command)
		}
		if affected, err := res.RowsAffected(); err == nil {
			result.RowsAffected = affected
		}
	}

	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	logger.LogDatabaseOperation(command, query, result.RowsAffected, nil)

	return result, nil
}

// commandVerb returns the leading SQL keyword, uppercased.
func commandVerb(query string) string {
	fields := strings.Fields(strings.TrimSpace(query))
	if len(fields) == 0 {
		return "QUERY"
	}
	return strings.ToUpper(fields[0])
}

func returnsRows(command string) bool {
	switch command {
	case "SELECT", "WITH", "SHOW", "EXPLAIN", "DESCRIBE", "DESC", "VALUES", "TABLE":
		return true
	}
	return false
}

func scanRows(rows *sql.Rows) ([]map[string]any, []FieldInfo, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var fields []FieldInfo
	if colTypes, err := rows.ColumnTypes(); err == nil {
		fields = make([]FieldInfo, 0, len(colTypes))
		for _, ct := range colTypes {
			field := FieldInfo{Name: ct.Name(), Type: ct.DatabaseTypeName()}
			if size, ok := ct.Length(); ok {
				field.Size = size
			}
			fields = append(fields, field)
		}
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}

	return out, fields, rows.Err()
}
