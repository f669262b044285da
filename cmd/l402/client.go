package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pario-ai/l402/pkg/budget"
	"github.com/pario-ai/l402/pkg/client"
	"github.com/pario-ai/l402/pkg/config"
	"github.com/pario-ai/l402/pkg/ledger"
	"github.com/pario-ai/l402/pkg/metrics"
	"github.com/pario-ai/l402/pkg/models"
	"github.com/pario-ai/l402/pkg/processor"
	"github.com/pario-ai/l402/pkg/tokenstore"
	"github.com/pario-ai/l402/pkg/tokenstore/sqlite"
)

// payingClient bundles the paying side of l402 and everything it owns.
type payingClient struct {
	transport *client.Transport
	ledger    *ledger.SQLiteLedger
	tokens    tokenStore
	metrics   *metrics.Metrics
	closers   []func() error
}

// tokenStore is a credential store that also reports statistics.
type tokenStore interface {
	tokenstore.Store
	Stats() (models.TokenStats, error)
}

func (p *payingClient) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i]()
	}
}

// newPayingClient wires the processor, budget, credential store and ledger
// into a client Transport. Spend already in the ledger for the current
// period is charged to the budget so restarts do not reset it.
func newPayingClient(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*payingClient, error) {
	pc := &payingClient{}

	l, err := ledger.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	pc.ledger = l
	pc.closers = append(pc.closers, l.Close)

	switch cfg.Client.Store {
	case config.StoreSQLite:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("init token store: %w", err)
		}
		pc.tokens = s
		pc.closers = append(pc.closers, s.Close)
	default:
		s, err := tokenstore.NewMemoryStore(cfg.Client.StoreSize)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("init token store: %w", err)
		}
		pc.tokens = s
	}

	period := models.BudgetPeriod(cfg.Client.BudgetPeriod)
	limit := budget.Unlimited
	if cfg.Client.BudgetSats > 0 {
		limit = cfg.Client.BudgetSats
	}
	guard := budget.New(limit, period)
	spent, err := l.TotalSince(ctx, time.Now().Add(-period.Duration()))
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("load spend: %w", err)
	}
	guard.Record(spent)

	if cfg.Metrics.Enabled {
		pc.metrics = metrics.New()
		pc.metrics.RegisterBudgetGauges(
			func() float64 { return float64(guard.Status().Spent) },
			func() float64 {
				st := guard.Status()
				if st.Unlimited {
					return -1
				}
				return float64(st.Remaining)
			},
		)
	}

	payer := processor.NewClient(cfg.Processor.URL, cfg.Processor.APIKey, cfg.Processor.Timeout)
	t, err := client.NewTransport(payer, client.Options{
		MaxPrice:         cfg.Client.MaxPrice,
		Guard:            guard,
		Store:            pc.tokens,
		CoalescePayments: cfg.Client.CoalescePayments,
		Recorder:         l,
		Metrics:          pc.metrics,
		Logger:           logger,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}
	pc.transport = t
	return pc, nil
}
