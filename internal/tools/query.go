package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbbridge/dbbridge/internal/db"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ExecuteSelectInput struct {
	Query  string `json:"query" jsonschema:"required" jsonschema_description:"SELECT SQL query to execute (e.g., 'SELECT * FROM users LIMIT 5')"`
	Params []any  `json:"params,omitempty" jsonschema_description:"Positional query parameters"`
}

type ExecuteSelectOutput struct {
	Rows            []map[string]any `json:"rows" jsonschema_description:"Query result rows"`
	Fields          []db.FieldInfo   `json:"fields,omitempty" jsonschema_description:"Result column metadata"`
	RowCount        int64            `json:"row_count" jsonschema_description:"Number of rows returned"`
	ExecutionTimeMs int64            `json:"execution_time_ms" jsonschema_description:"Wall-clock execution time"`
}

type ExecuteQueryInput struct {
	Query  string `json:"query" jsonschema:"required" jsonschema_description:"SQL statement to execute (INSERT, UPDATE, DELETE, DDL, etc.)"`
	Params []any  `json:"params,omitempty" jsonschema_description:"Positional query parameters"`
}

type ExecuteQueryOutput struct {
	RowsAffected    int64  `json:"rows_affected" jsonschema_description:"Number of rows affected by the statement"`
	Command         string `json:"command" jsonschema_description:"Statement verb that was executed"`
	ExecutionTimeMs int64  `json:"execution_time_ms" jsonschema_description:"Wall-clock execution time"`
	Message         string `json:"message" jsonschema_description:"Success message"`
}

type ExplainQueryInput struct {
	Query   string `json:"query" jsonschema:"required" jsonschema_description:"SQL query to explain"`
	Analyze bool   `json:"analyze,omitempty" jsonschema_description:"Run EXPLAIN ANALYZE (executes the query)"`
}

type ExplainQueryOutput struct {
	Plan []map[string]any `json:"plan" jsonschema_description:"Query plan rows as returned by the database"`
}

func GetExecuteSelectTool(adapter *db.Adapter) *ToolDefinition[ExecuteSelectInput, ExecuteSelectOutput] {
	return NewToolDefinition[ExecuteSelectInput, ExecuteSelectOutput](
		"execute_select",
		"Execute a SELECT query and return the result rows.",
		func(ctx context.Context, req *mcp.CallToolRequest, input ExecuteSelectInput) (*mcp.CallToolResult, ExecuteSelectOutput, error) {
			return executeSelectHandler(ctx, input, adapter)
		},
	)
}

func executeSelectHandler(ctx context.Context, input ExecuteSelectInput, adapter *db.Adapter) (*mcp.CallToolResult, ExecuteSelectOutput, error) {
	queryLower := strings.ToLower(strings.TrimSpace(input.Query))
	if !strings.HasPrefix(queryLower, "select") && !strings.HasPrefix(queryLower, "with") && !strings.HasPrefix(queryLower, "show") {
		return nil, ExecuteSelectOutput{}, fmt.Errorf("use execute_query tool for non-SELECT statements")
	}

	result, err := adapter.ExecuteReadQuery(ctx, input.Query, input.Params...)
	if err != nil {
		return nil, ExecuteSelectOutput{}, fmt.Errorf("query execution error: %v", err)
	}

	return jsonResult(ExecuteSelectOutput{
		Rows:            result.Rows,
		Fields:          result.Fields,
		RowCount:        result.RowsAffected,
		ExecutionTimeMs: result.ExecutionTimeMs,
	})
}

func GetExecuteQueryTool(adapter *db.Adapter) *ToolDefinition[ExecuteQueryInput, ExecuteQueryOutput] {
	return NewToolDefinition[ExecuteQueryInput, ExecuteQueryOutput](
		"execute_query",
		"Execute a mutating SQL statement (INSERT, UPDATE, DELETE, DDL).",
		func(ctx context.Context, req *mcp.CallToolRequest, input ExecuteQueryInput) (*mcp.CallToolResult, ExecuteQueryOutput, error) {
			return executeQueryHandler(ctx, input, adapter)
		},
	)
}

func executeQueryHandler(ctx context.Context, input ExecuteQueryInput, adapter *db.Adapter) (*mcp.CallToolResult, ExecuteQueryOutput, error) {
	queryLower := strings.ToLower(strings.TrimSpace(input.Query))
	if strings.HasPrefix(queryLower, "select") {
		return nil, ExecuteQueryOutput{}, fmt.Errorf("use execute_select tool for SELECT queries")
	}

	dangerousOperations := []string{"drop database", "drop schema", "truncate"}
	for _, dangerous := range dangerousOperations {
		if strings.Contains(queryLower, dangerous) {
			return nil, ExecuteQueryOutput{}, fmt.Errorf("dangerous operation detected: %s", dangerous)
		}
	}

	result, err := adapter.ExecuteWriteQuery(ctx, input.Query, input.Params...)
	if err != nil {
		return nil, ExecuteQueryOutput{}, fmt.Errorf("query execution error: %v", err)
	}

	message := fmt.Sprintf("%s operation completed successfully", result.Command)
	if result.RowsAffected > 0 {
		message = fmt.Sprintf("%s operation completed successfully (%d rows affected)", result.Command, result.RowsAffected)
	}

	return jsonResult(ExecuteQueryOutput{
		RowsAffected:    result.RowsAffected,
		Command:         result.Command,
		ExecutionTimeMs: result.ExecutionTimeMs,
		Message:         message,
	})
}

func GetExplainQueryTool(adapter *db.Adapter) *ToolDefinition[ExplainQueryInput, ExplainQueryOutput] {
	return NewToolDefinition[ExplainQueryInput, ExplainQueryOutput](
		"explain_query",
		"Show the database's execution plan for a query.",
		func(ctx context.Context, req *mcp.CallToolRequest, input ExplainQueryInput) (*mcp.CallToolResult, ExplainQueryOutput, error) {
			return explainQueryHandler(ctx, input, adapter)
		},
	)
}

func explainQueryHandler(ctx context.Context, input ExplainQueryInput, adapter *db.Adapter) (*mcp.CallToolResult, ExplainQueryOutput, error) {
	explain := "EXPLAIN "
	if input.Analyze {
		explain = "EXPLAIN ANALYZE "
	}

	result, err := adapter.ExecuteReadQuery(ctx, explain+input.Query)
	if err != nil {
		return nil, ExplainQueryOutput{}, fmt.Errorf("explain error: %v", err)
	}

	return jsonResult(ExplainQueryOutput{Plan: result.Rows})
}
