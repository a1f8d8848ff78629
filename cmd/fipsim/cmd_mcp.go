package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/fipsim/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Serve the fipsim_reverse, fipsim_frame and fipsim_runs tools to an MCP
client over stdin/stdout.

Runs are stored in the trace database unless store.persist is false, in
which case they live only for the lifetime of the server. Tool calls are
rate limited per tool (mcp.rate_limit, mcp.burst) and recorded in
audit.jsonl next to the database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:        "fipsim",
				Version:     version,
				StoreDir:    cfg.Store.Dir,
				InMemory:    !cfg.Store.Persist,
				RateLimit:   cfg.MCP.RateLimit,
				Burst:       cfg.MCP.Burst,
				ToolTimeout: cfg.MCP.ToolTimeout,
				Logger:      newLogger(cmd, cfg),
			})
			if err != nil {
				return fmt.Errorf("failed to start MCP server: %w", err)
			}
			defer server.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return server.Run(ctx)
		},
	}
}
