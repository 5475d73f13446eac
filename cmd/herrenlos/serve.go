package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/herrenlos/internal/mcptools"
	"github.com/dusk-indust/herrenlos/internal/orchestrator"
)

func (c *cli) newServeMCPCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Run as an MCP server on stdio (or HTTP with --http)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, err := orchestrator.New(ctx, cfg,
				orchestrator.WithLogger(c.logger),
				orchestrator.WithVersion(version),
			)
			if err != nil {
				return err
			}
			defer orch.Close()

			server := mcptools.NewServer(mcptools.NewService(orch), version)
			if addr != "" {
				c.logger.Info("serving MCP over HTTP", zap.String("addr", addr))
				return mcptools.RunHTTP(ctx, server, addr)
			}
			return mcptools.RunStdio(ctx, server)
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "listen address for streamable HTTP instead of stdio")
	return cmd
}
