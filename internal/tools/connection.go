package tools

import (
	"context"
	"fmt"

	"github.com/dbbridge/dbbridge/internal/config"
	"github.com/dbbridge/dbbridge/internal/db"
	"github.com/dbbridge/dbbridge/internal/logger"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ConnectInput struct {
	Connection string `json:"connection,omitempty" jsonschema_description:"Name of a configured connection to open (defaults to the configured default connection)"`
	URL        string `json:"url,omitempty" jsonschema_description:"Connection URL to open directly, bypassing the config file"`
}

type ConnectOutput struct {
	Message    string `json:"message" jsonschema_description:"Result message"`
	Connection string `json:"connection" jsonschema_description:"Connection that was opened"`
}

type DisconnectInput struct{}

type DisconnectOutput struct {
	Message string `json:"message" jsonschema_description:"Result message"`
}

type TestConnectionInput struct{}

type TestConnectionOutput struct {
	Success   bool   `json:"success" jsonschema_description:"Whether the connection round trip succeeded"`
	LatencyMs int64  `json:"latency_ms" jsonschema_description:"Round-trip latency in milliseconds"`
	Message   string `json:"message" jsonschema_description:"Test result message"`
}

type DbHealthInput struct{}

type DbHealthOutput struct {
	Connected        bool  `json:"connected" jsonschema_description:"Whether a pool is alive"`
	LatencyMs        int64 `json:"latency_ms" jsonschema_description:"Health check round-trip latency"`
	PoolTotal        int   `json:"pool_total" jsonschema_description:"Open connections in the pool"`
	PoolActive       int   `json:"pool_active" jsonschema_description:"Connections currently leased"`
	PoolIdle         int   `json:"pool_idle" jsonschema_description:"Idle connections"`
	PoolWaiting      int64 `json:"pool_waiting" jsonschema_description:"Callers waiting for a lease"`
	Queries          int64 `json:"queries" jsonschema_description:"Cumulative statements executed"`
	OpenTransactions int   `json:"open_transactions" jsonschema_description:"Transactions with live handles"`
	CacheEntries     int   `json:"cache_entries" jsonschema_description:"Live metadata cache entries"`
}

func GetConnectTool(adapter *db.Adapter, cfg *config.Config) *ToolDefinition[ConnectInput, ConnectOutput] {
	return NewToolDefinition[ConnectInput, ConnectOutput](
		"connect",
		"Open the database connection pool, by configured connection name or direct URL.",
		func(ctx context.Context, req *mcp.CallToolRequest, input ConnectInput) (*mcp.CallToolResult, ConnectOutput, error) {
			return connectHandler(ctx, input, adapter, cfg)
		},
	)
}

func connectHandler(ctx context.Context, input ConnectInput, adapter *db.Adapter, cfg *config.Config) (*mcp.CallToolResult, ConnectOutput, error) {
	poolCfg, name, err := resolvePoolConfig(input, cfg)
	if err != nil {
		return nil, ConnectOutput{}, err
	}

	if err := adapter.Connect(ctx, poolCfg); err != nil {
		logger.LogConnectionEvent("connect", poolCfg.Driver, err)
		return nil, ConnectOutput{}, fmt.Errorf("failed to connect to '%s': %v", name, err)
	}

	return jsonResult(ConnectOutput{
		Message:    fmt.Sprintf("Successfully connected to '%s'", name),
		Connection: name,
	})
}

func resolvePoolConfig(input ConnectInput, cfg *config.Config) (db.PoolConfig, string, error) {
	poolCfg := db.PoolConfig{}
	if cfg != nil {
		poolCfg.MaxConns = cfg.Settings.PoolMaxConns
		poolCfg.MaxIdle = cfg.Settings.PoolMaxIdle
		poolCfg.ConnMaxLifetime = cfg.ConnMaxLifetime()
		poolCfg.LeaseTimeout = cfg.LeaseTimeout()
	}

	if input.URL != "" {
		poolCfg.URL = input.URL
		return poolCfg, "url", nil
	}

	if cfg == nil {
		return poolCfg, "", fmt.Errorf("config not loaded - server must be started with a valid config file")
	}

	name := input.Connection
	if name == "" {
		name = cfg.DefaultConnection
	}
	if name == "" {
		return poolCfg, "", fmt.Errorf("no connection name given and no default connection configured")
	}

	conn, exists := cfg.GetConnection(name)
	if !exists {
		return poolCfg, "", fmt.Errorf("connection '%s' not found", name)
	}

	poolCfg.URL = conn.URL
	poolCfg.Driver = conn.Type

	return poolCfg, name, nil
}

func GetDisconnectTool(adapter *db.Adapter) *ToolDefinition[DisconnectInput, DisconnectOutput] {
	return NewToolDefinition[DisconnectInput, DisconnectOutput](
		"disconnect",
		"Roll back open transactions, close the pool, and clear cached metadata.",
		func(ctx context.Context, req *mcp.CallToolRequest, input DisconnectInput) (*mcp.CallToolResult, DisconnectOutput, error) {
			if err := adapter.Disconnect(ctx); err != nil {
				return nil, DisconnectOutput{}, fmt.Errorf("disconnect error: %v", err)
			}
			return jsonResult(DisconnectOutput{Message: "Disconnected"})
		},
	)
}

func GetTestConnectionTool(adapter *db.Adapter) *ToolDefinition[TestConnectionInput, TestConnectionOutput] {
	return NewToolDefinition[TestConnectionInput, TestConnectionOutput](
		"test_connection",
		"Test connectivity to the database before executing queries.",
		func(ctx context.Context, req *mcp.CallToolRequest, input TestConnectionInput) (*mcp.CallToolResult, TestConnectionOutput, error) {
			health := adapter.Health(ctx)
			output := TestConnectionOutput{
				Success:   health.Connected,
				LatencyMs: health.LatencyMs,
				Message:   "Connection test successful",
			}
			if !health.Connected {
				output.Message = fmt.Sprintf("Connection test failed: %s", health.Error)
			}
			return jsonResult(output)
		},
	)
}

func GetDbHealthTool(adapter *db.Adapter) *ToolDefinition[DbHealthInput, DbHealthOutput] {
	return NewToolDefinition[DbHealthInput, DbHealthOutput](
		"db_health",
		"Report pool health, utilization, and open transaction count.",
		func(ctx context.Context, req *mcp.CallToolRequest, input DbHealthInput) (*mcp.CallToolResult, DbHealthOutput, error) {
			health := adapter.Health(ctx)
			stats := adapter.Stats()

			return jsonResult(DbHealthOutput{
				Connected:        health.Connected,
				LatencyMs:        health.LatencyMs,
				PoolTotal:        stats.Pool.Total,
				PoolActive:       stats.Pool.Active,
				PoolIdle:         stats.Pool.Idle,
				PoolWaiting:      stats.Pool.Waiting,
				Queries:          stats.Pool.Queries,
				OpenTransactions: stats.OpenTransactions,
				CacheEntries:     stats.CacheEntries,
			})
		},
	)
}
