package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/l402/pkg/ledger"
)

func newPaymentsCmd() *cobra.Command {
	var resource string

	cmd := &cobra.Command{
		Use:   "payments",
		Short: "Show settled payments per resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			l, err := ledger.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			summaries, err := l.Summary(context.Background(), resource)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No payments recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RESOURCE\tPAYMENTS\tTOTAL SATS\tLAST PAID")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
					s.Resource, s.PaymentCount, s.TotalPaid, s.LastPaidAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&resource, "resource", "", "filter by resource URL")

	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete payment records older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			l, err := ledger.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			n, err := l.Prune(context.Background(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d payment records.\n", n)
			return nil
		},
	}
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "age of the oldest record to keep")

	cmd.AddCommand(pruneCmd)
	return cmd
}
