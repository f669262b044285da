package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/l402/pkg/ledger"
	"github.com/pario-ai/l402/pkg/models"
)

func newBudgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect the spending budget",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show spend in the current period against the limit",
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

			period := models.BudgetPeriod(cfg.Client.BudgetPeriod)
			since := time.Now().Add(-period.Duration())
			spent, err := l.TotalSince(context.Background(), since)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PERIOD\tLIMIT\tSPENT\tREMAINING")
			if cfg.Client.BudgetSats <= 0 {
				fmt.Fprintf(w, "%s\tunlimited\t%d\t-\n", period, spent)
			} else {
				remaining := max(cfg.Client.BudgetSats-spent, 0)
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", period, cfg.Client.BudgetSats, spent, remaining)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(statusCmd)
	return cmd
}
