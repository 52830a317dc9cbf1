package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tickerlens/tickerlens/internal/app"
	"github.com/tickerlens/tickerlens/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP tool server",
	Long: `Start the Model Context Protocol server so AI assistants can trigger
and query video analyses as tools.

By default the server communicates over stdio using JSON-RPC. Use --port
to serve streamable HTTP instead.

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "tickerlens": {
        "command": "/path/to/tickerlens",
        "args": ["mcp", "--config", "/path/to/config.yaml"]
      }
    }
  }`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Logs go to stderr so they never corrupt the stdio JSON-RPC stream.
	setupLogger(cfg.Server.LogLevel)

	providers, err := buildProviders(cfg, newRegistry())
	if err != nil {
		return err
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Shutdown(closeCtx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	server := mcpserver.NewServer(application)

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		slog.Info("mcp server listening", "addr", addr)
		return server.RunHTTP(ctx, addr)
	}

	slog.Info("mcp server running on stdio")
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
