package tools

import (
	"context"
	"fmt"

	"github.com/dbbridge/dbbridge/internal/db"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ListTablesInput struct {
	Schema string `json:"schema,omitempty" jsonschema_description:"Optional schema name to filter tables"`
}

type ListTablesOutput struct {
	Tables []db.TableInfo `json:"tables" jsonschema_description:"Array of table information"`
}

type DescribeTableInput struct {
	TableName string `json:"table_name" jsonschema:"required" jsonschema_description:"Name of the table to describe"`
	Schema    string `json:"schema,omitempty" jsonschema_description:"Optional schema name (defaults to 'public')"`
}

type DescribeTableOutput struct {
	Description *db.TableDescription `json:"description" jsonschema_description:"Columns, primary keys, indexes, foreign keys, and row estimate"`
}

type TableIndexesInput struct {
	TableName string `json:"table_name" jsonschema:"required" jsonschema_description:"Name of the table"`
	Schema    string `json:"schema,omitempty" jsonschema_description:"Optional schema name (defaults to 'public')"`
}

type TableIndexesOutput struct {
	Indexes []db.IndexInfo `json:"indexes" jsonschema_description:"Array of index information"`
}

type ClearMetadataCacheInput struct{}

type ClearMetadataCacheOutput struct {
	Message string `json:"message" jsonschema_description:"Result message"`
}

func GetListTablesTool(adapter *db.Adapter) *ToolDefinition[ListTablesInput, ListTablesOutput] {
	return NewToolDefinition[ListTablesInput, ListTablesOutput](
		"list_tables",
		"List all tables in the database with metadata. Results are cached briefly.",
		func(ctx context.Context, req *mcp.CallToolRequest, input ListTablesInput) (*mcp.CallToolResult, ListTablesOutput, error) {
			tables, err := adapter.ListTables(ctx, input.Schema)
			if err != nil {
				return nil, ListTablesOutput{}, fmt.Errorf("list tables error: %v", err)
			}
			return jsonResult(ListTablesOutput{Tables: tables})
		},
	)
}

func GetDescribeTableTool(adapter *db.Adapter) *ToolDefinition[DescribeTableInput, DescribeTableOutput] {
	return NewToolDefinition[DescribeTableInput, DescribeTableOutput](
		"describe_table",
		"Get detailed information about table structure, columns, keys, and indexes. Results are cached briefly.",
		func(ctx context.Context, req *mcp.CallToolRequest, input DescribeTableInput) (*mcp.CallToolResult, DescribeTableOutput, error) {
			desc, err := adapter.DescribeTable(ctx, input.TableName, input.Schema)
			if err != nil {
				return nil, DescribeTableOutput{}, fmt.Errorf("describe table error: %v", err)
			}
			return jsonResult(DescribeTableOutput{Description: desc})
		},
	)
}

func GetTableIndexesTool(adapter *db.Adapter) *ToolDefinition[TableIndexesInput, TableIndexesOutput] {
	return NewToolDefinition[TableIndexesInput, TableIndexesOutput](
		"table_indexes",
		"List the indexes of one table. Results are cached briefly.",
		func(ctx context.Context, req *mcp.CallToolRequest, input TableIndexesInput) (*mcp.CallToolResult, TableIndexesOutput, error) {
			indexes, err := adapter.TableIndexes(ctx, input.TableName, input.Schema)
			if err != nil {
				return nil, TableIndexesOutput{}, fmt.Errorf("table indexes error: %v", err)
			}
			return jsonResult(TableIndexesOutput{Indexes: indexes})
		},
	)
}

func GetClearMetadataCacheTool(adapter *db.Adapter) *ToolDefinition[ClearMetadataCacheInput, ClearMetadataCacheOutput] {
	return NewToolDefinition[ClearMetadataCacheInput, ClearMetadataCacheOutput](
		"clear_metadata_cache",
		"Drop all cached table metadata so the next lookup re-queries the database.",
		func(ctx context.Context, req *mcp.CallToolRequest, input ClearMetadataCacheInput) (*mcp.CallToolResult, ClearMetadataCacheOutput, error) {
			adapter.ClearMetadataCache()
			return jsonResult(ClearMetadataCacheOutput{Message: "Metadata cache cleared"})
		},
	)
}
