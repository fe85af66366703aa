package tools

import (
	"github.com/dbbridge/dbbridge/internal/config"
	"github.com/dbbridge/dbbridge/internal/db"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func RegisterTools(s *mcp.Server, adapter *db.Adapter, cfg *config.Config, readOnly bool) {
	// Connection lifecycle
	GetConnectTool(adapter, cfg).Register(s)
	GetDisconnectTool(adapter).Register(s)
	GetTestConnectionTool(adapter).Register(s)
	GetDbHealthTool(adapter).Register(s)
	// Query execution
	GetExecuteSelectTool(adapter).Register(s)
	if !readOnly {
		GetExecuteQueryTool(adapter).Register(s)
	}
	GetExplainQueryTool(adapter).Register(s)
	// Schema metadata (cached)
	GetListTablesTool(adapter).Register(s)
	GetDescribeTableTool(adapter).Register(s)
	GetTableIndexesTool(adapter).Register(s)
	GetClearMetadataCacheTool(adapter).Register(s)
	// Transactions
	if !readOnly {
		GetBeginTransactionTool(adapter).Register(s)
		GetExecuteInTransactionTool(adapter).Register(s)
		GetCommitTransactionTool(adapter).Register(s)
		GetRollbackTransactionTool(adapter).Register(s)
		GetCreateSavepointTool(adapter).Register(s)
		GetReleaseSavepointTool(adapter).Register(s)
		GetRollbackToSavepointTool(adapter).Register(s)
	}
}
