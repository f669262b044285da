package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/l402/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve l402 tools to an MCP client over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pc, err := newPayingClient(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pc.Close()

			srv := mcp.New(mcp.Deps{
				HTTP:   &http.Client{Transport: pc.transport},
				Guard:  pc.transport.Guard(),
				Tokens: pc.tokens,
				Ledger: pc.ledger,
			}, version, logger)

			logger.Info().Msg("mcp server listening on stdio")
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
