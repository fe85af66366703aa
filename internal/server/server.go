package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dbbridge/dbbridge/internal/config"
	"github.com/dbbridge/dbbridge/internal/db"
	"github.com/dbbridge/dbbridge/internal/logger"
	"github.com/dbbridge/dbbridge/internal/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type MCPServerConfig struct {
	Version           string
	ReadOnly          bool
	InitialConnection string // Optional: name of connection to open at startup
}

func NewMCPServer(ctx context.Context, cfg MCPServerConfig) (*mcp.Server, *db.Adapter, error) {
	appCfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Initialize(logger.ConfigFromLoggingConfig(appCfg.Logging)); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	adapter := db.NewAdapter(appCfg.CacheTTL())

	if cfg.InitialConnection != "" {
		if err := openInitialConnection(ctx, adapter, appCfg, cfg.InitialConnection); err != nil {
			return nil, nil, fmt.Errorf("failed to open connection '%s': %w", cfg.InitialConnection, err)
		}
	}

	impl := &mcp.Implementation{Name: "dbbridge-mcp", Version: cfg.Version}
	server := mcp.NewServer(impl, nil)

	// Tools register without requiring an active connection at startup
	tools.RegisterTools(server, adapter, appCfg, cfg.ReadOnly)

	return server, adapter, nil
}

func openInitialConnection(ctx context.Context, adapter *db.Adapter, cfg *config.Config, name string) error {
	conn, exists := cfg.GetConnection(name)
	if !exists {
		return fmt.Errorf("connection '%s' not found in config", name)
	}

	return adapter.Connect(ctx, db.PoolConfig{
		URL:             conn.URL,
		Driver:          conn.Type,
		MaxConns:        cfg.Settings.PoolMaxConns,
		MaxIdle:         cfg.Settings.PoolMaxIdle,
		ConnMaxLifetime: cfg.ConnMaxLifetime(),
		LeaseTimeout:    cfg.LeaseTimeout(),
	})
}

func RunStdioServer(cfg MCPServerConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, adapter, err := NewMCPServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	defer func() {
		// Disconnect rolls back open transactions before the pool closes
		if err := adapter.Disconnect(context.Background()); err != nil {
			logger.Error("disconnect on shutdown", err)
		}
		logger.Shutdown()
	}()

	fmt.Fprintf(os.Stderr, "dbbridge MCP server running (read-only: %t)...\n", cfg.ReadOnly)

	return server.Run(ctx, &mcp.StdioTransport{})
}
