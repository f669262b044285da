package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/l402/pkg/gateway"
	"github.com/pario-ai/l402/pkg/metrics"
	"github.com/pario-ai/l402/pkg/paywall"
	"github.com/pario-ai/l402/pkg/processor"
)

func newGatewayCmd() *cobra.Command {
	var upstream string

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Put an L402 paywall in front of an HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if upstream != "" {
				cfg.Paywall.Upstream = upstream
			}
			if cfg.Paywall.Upstream == "" {
				return fmt.Errorf("no upstream: set paywall.upstream or --upstream")
			}
			logger := newLogger(cfg.Log)

			var m *metrics.Metrics
			metricsPath := ""
			if cfg.Metrics.Enabled {
				m = metrics.New()
				metricsPath = cfg.Metrics.Path
			}

			proc := processor.NewClient(cfg.Processor.URL, cfg.Processor.APIKey, cfg.Processor.Timeout)
			opts := paywall.Options{
				Price:       cfg.Paywall.Price,
				Description: cfg.Paywall.Description,
				Caveats:     cfg.Paywall.Caveats,
				PathPrefix:  cfg.Paywall.PathPrefix,
				Metrics:     m,
				Logger:      logger,
			}
			if cfg.Paywall.ExpirySeconds > 0 {
				expiry := cfg.Paywall.ExpirySeconds
				opts.ExpirySeconds = &expiry
			}
			pw := paywall.New(proc, proc, opts)

			srv, err := gateway.New(pw, gateway.Options{
				Listen:      cfg.Listen,
				Upstream:    cfg.Paywall.Upstream,
				MetricsPath: metricsPath,
				Metrics:     m,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info().
				Str("listen", cfg.Listen).
				Str("upstream", cfg.Paywall.Upstream).
				Int64("price", cfg.Paywall.Price).
				Msg("starting l402 gateway")
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&upstream, "upstream", "", "service to protect")
	return cmd
}
