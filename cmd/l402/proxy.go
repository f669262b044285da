package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/l402/pkg/proxy"
)

func newProxyCmd() *cobra.Command {
	var upstream string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Forward requests to an L402 API, paying challenges on the way",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if upstream != "" {
				cfg.Client.Upstream = upstream
			}
			if cfg.Client.Upstream == "" {
				return fmt.Errorf("no upstream: set client.upstream or --upstream")
			}
			logger := newLogger(cfg.Log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pc, err := newPayingClient(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pc.Close()

			srv, err := proxy.New(cfg.Listen, cfg.Client.Upstream, pc.transport, pc.metrics, logger)
			if err != nil {
				return err
			}

			logger.Info().
				Str("listen", cfg.Listen).
				Str("upstream", cfg.Client.Upstream).
				Int64("max_price", cfg.Client.MaxPrice).
				Msg("starting l402 proxy")
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&upstream, "upstream", "", "L402 API to forward to")
	return cmd
}
