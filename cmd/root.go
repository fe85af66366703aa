package main

import (
	"fmt"
	"os"

	"github.com/dbbridge/dbbridge/internal/server"
	"github.com/spf13/cobra"
)

const version = "v0.1.0"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dbbridge-mcp",
	Short: "DB MCP server for querying Postgres/MySQL",
	Long:  `A Model Context Protocol (MCP) server exposing pooled query, transaction, and schema tools for AI clients.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("connection", "c", os.Getenv("DBBRIDGE_CONNECTION"), "Named connection from connections.json to open at startup")
	rootCmd.PersistentFlags().BoolP("read-only", "r", false, "Enable read-only mode (no writes, no transactions)")

	stdioCmd := &cobra.Command{
		Use:   "stdio",
		Short: "Run over stdio transport (for local MCP clients)",
		RunE:  runStdioServer,
	}
	rootCmd.AddCommand(stdioCmd)

	httpCmd := &cobra.Command{
		Use:   "http",
		Short: "Run over HTTP transport (for remote clients)",
		RunE:  runHTTPServer,
	}
	rootCmd.AddCommand(httpCmd)
}

func runStdioServer(cmd *cobra.Command, args []string) error {
	connection, _ := cmd.Flags().GetString("connection")
	readOnly, _ := cmd.Flags().GetBool("read-only")

	return server.RunStdioServer(server.MCPServerConfig{
		Version:           version,
		ReadOnly:          readOnly,
		InitialConnection: connection,
	})
}

func runHTTPServer(cmd *cobra.Command, args []string) error {
	// TODO: wire mcp.StreamableHTTPHandler once a remote deployment needs it
	return fmt.Errorf("HTTP not implemented yet")
}
