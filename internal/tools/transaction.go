package tools

import (
	"context"
	"fmt"

	"github.com/dbbridge/dbbridge/internal/db"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Isolation level shorthands accepted at the tool boundary; the core only
// sees full level names.
var isolationAliases = map[string]string{
	"RU": "READ UNCOMMITTED",
	"RC": "READ COMMITTED",
	"RR": "REPEATABLE READ",
	"S":  "SERIALIZABLE",
}

func normalizeIsolation(level string) string {
	if full, ok := isolationAliases[level]; ok {
		return full
	}
	return level
}

type BeginTransactionInput struct {
	IsolationLevel string `json:"isolation_level,omitempty" jsonschema_description:"Isolation level (READ UNCOMMITTED, READ COMMITTED, REPEATABLE READ, SERIALIZABLE, or shorthand RU/RC/RR/S; defaults to READ COMMITTED)"`
}

type BeginTransactionOutput struct {
	Handle         string `json:"handle" jsonschema_description:"Opaque transaction handle for subsequent transaction tools"`
	IsolationLevel string `json:"isolation_level" jsonschema_description:"Effective isolation level"`
}

type ExecuteInTransactionInput struct {
	Handle string `json:"handle" jsonschema:"required" jsonschema_description:"Transaction handle returned by begin_transaction"`
	Query  string `json:"query" jsonschema:"required" jsonschema_description:"SQL statement to execute inside the transaction"`
	Params []any  `json:"params,omitempty" jsonschema_description:"Positional query parameters"`
}

type ExecuteInTransactionOutput struct {
	Rows            []map[string]any `json:"rows,omitempty" jsonschema_description:"Result rows for row-returning statements"`
	RowsAffected    int64            `json:"rows_affected" jsonschema_description:"Number of rows affected or returned"`
	Command         string           `json:"command" jsonschema_description:"Statement verb that was executed"`
	ExecutionTimeMs int64            `json:"execution_time_ms" jsonschema_description:"Wall-clock execution time"`
}

type TransactionHandleInput struct {
	Handle string `json:"handle" jsonschema:"required" jsonschema_description:"Transaction handle returned by begin_transaction"`
}

type TransactionResultOutput struct {
	Message string `json:"message" jsonschema_description:"Result message"`
	Handle  string `json:"handle" jsonschema_description:"The handle the operation applied to"`
}

type SavepointInput struct {
	Handle string `json:"handle" jsonschema:"required" jsonschema_description:"Transaction handle returned by begin_transaction"`
	Name   string `json:"name" jsonschema:"required" jsonschema_description:"Savepoint name (letters, digits, underscore; must not start with a digit)"`
}

type SavepointOutput struct {
	Message string `json:"message" jsonschema_description:"Result message"`
	Name    string `json:"name" jsonschema_description:"The savepoint name"`
}

func GetBeginTransactionTool(adapter *db.Adapter) *ToolDefinition[BeginTransactionInput, BeginTransactionOutput] {
	return NewToolDefinition[BeginTransactionInput, BeginTransactionOutput](
		"begin_transaction",
		"Begin a transaction on a dedicated connection and return its handle.",
		func(ctx context.Context, req *mcp.CallToolRequest, input BeginTransactionInput) (*mcp.CallToolResult, BeginTransactionOutput, error) {
			level := normalizeIsolation(input.IsolationLevel)

			handle, err := adapter.BeginTransaction(ctx, level)
			if err != nil {
				return nil, BeginTransactionOutput{}, fmt.Errorf("begin transaction error: %v", err)
			}

			if level == "" {
				level = db.DefaultIsolationLevel
			}

			return jsonResult(BeginTransactionOutput{Handle: handle, IsolationLevel: level})
		},
	)
}

func GetExecuteInTransactionTool(adapter *db.Adapter) *ToolDefinition[ExecuteInTransactionInput, ExecuteInTransactionOutput] {
	return NewToolDefinition[ExecuteInTransactionInput, ExecuteInTransactionOutput](
		"execute_in_transaction",
		"Execute a statement on an open transaction's connection.",
		func(ctx context.Context, req *mcp.CallToolRequest, input ExecuteInTransactionInput) (*mcp.CallToolResult, ExecuteInTransactionOutput, error) {
			conn, ok := adapter.TransactionConnection(input.Handle)
			if !ok {
				return nil, ExecuteInTransactionOutput{}, fmt.Errorf("transaction not found: %s", input.Handle)
			}

			result, err := adapter.ExecuteOnConnection(ctx, conn, input.Query, input.Params...)
			if err != nil {
				return nil, ExecuteInTransactionOutput{}, fmt.Errorf("query execution error: %v", err)
			}

			return jsonResult(ExecuteInTransactionOutput{
				Rows:            result.Rows,
				RowsAffected:    result.RowsAffected,
				Command:         result.Command,
				ExecutionTimeMs: result.ExecutionTimeMs,
			})
		},
	)
}

func GetCommitTransactionTool(adapter *db.Adapter) *ToolDefinition[TransactionHandleInput, TransactionResultOutput] {
	return NewToolDefinition[TransactionHandleInput, TransactionResultOutput](
		"commit_transaction",
		"Commit an open transaction and release its connection.",
		func(ctx context.Context, req *mcp.CallToolRequest, input TransactionHandleInput) (*mcp.CallToolResult, TransactionResultOutput, error) {
			if err := adapter.CommitTransaction(ctx, input.Handle); err != nil {
				return nil, TransactionResultOutput{}, fmt.Errorf("commit error: %v", err)
			}
			return jsonResult(TransactionResultOutput{Message: "Transaction committed", Handle: input.Handle})
		},
	)
}

func GetRollbackTransactionTool(adapter *db.Adapter) *ToolDefinition[TransactionHandleInput, TransactionResultOutput] {
	return NewToolDefinition[TransactionHandleInput, TransactionResultOutput](
		"rollback_transaction",
		"Roll back an open transaction and release its connection.",
		func(ctx context.Context, req *mcp.CallToolRequest, input TransactionHandleInput) (*mcp.CallToolResult, TransactionResultOutput, error) {
			if err := adapter.RollbackTransaction(ctx, input.Handle); err != nil {
				return nil, TransactionResultOutput{}, fmt.Errorf("rollback error: %v", err)
			}
			return jsonResult(TransactionResultOutput{Message: "Transaction rolled back", Handle: input.Handle})
		},
	)
}

func GetCreateSavepointTool(adapter *db.Adapter) *ToolDefinition[SavepointInput, SavepointOutput] {
	return NewToolDefinition[SavepointInput, SavepointOutput](
		"create_savepoint",
		"Create a named savepoint inside an open transaction.",
		func(ctx context.Context, req *mcp.CallToolRequest, input SavepointInput) (*mcp.CallToolResult, SavepointOutput, error) {
			if err := adapter.CreateSavepoint(ctx, input.Handle, input.Name); err != nil {
				return nil, SavepointOutput{}, fmt.Errorf("create savepoint error: %v", err)
			}
			return jsonResult(SavepointOutput{Message: "Savepoint created", Name: input.Name})
		},
	)
}

func GetReleaseSavepointTool(adapter *db.Adapter) *ToolDefinition[SavepointInput, SavepointOutput] {
	return NewToolDefinition[SavepointInput, SavepointOutput](
		"release_savepoint",
		"Release a savepoint inside an open transaction.",
		func(ctx context.Context, req *mcp.CallToolRequest, input SavepointInput) (*mcp.CallToolResult, SavepointOutput, error) {
			if err := adapter.ReleaseSavepoint(ctx, input.Handle, input.Name); err != nil {
				return nil, SavepointOutput{}, fmt.Errorf("release savepoint error: %v", err)
			}
			return jsonResult(SavepointOutput{Message: "Savepoint released", Name: input.Name})
		},
	)
}

func GetRollbackToSavepointTool(adapter *db.Adapter) *ToolDefinition[SavepointInput, SavepointOutput] {
	return NewToolDefinition[SavepointInput, SavepointOutput](
		"rollback_to_savepoint",
		"Roll back an open transaction to a named savepoint.",
		func(ctx context.Context, req *mcp.CallToolRequest, input SavepointInput) (*mcp.CallToolResult, SavepointOutput, error) {
			if err := adapter.RollbackToSavepoint(ctx, input.Handle, input.Name); err != nil {
				return nil, SavepointOutput{}, fmt.Errorf("rollback to savepoint error: %v", err)
			}
			return jsonResult(SavepointOutput{Message: "Rolled back to savepoint", Name: input.Name})
		},
	)
}
