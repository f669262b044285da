package budget

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pario-ai/l402/pkg/models"
)

// Unlimited is the limit of a guard without a budget.
const Unlimited int64 = math.MaxInt64

// ErrBudgetExceeded is returned when a payment would breach a spending limit.
var ErrBudgetExceeded = errors.New("budget exceeded")

// ExceededError describes a refused payment. It matches ErrBudgetExceeded
// with errors.Is.
type ExceededError struct {
	Amount int64
	Spent  int64
	Limit  int64
	// MaxPrice is set when the per-request ceiling refused the payment
	// rather than the rolling budget.
	MaxPrice bool
}

func (e *ExceededError) Error() string {
	if e.MaxPrice {
		return fmt.Sprintf("price %d sats exceeds max price %d sats", e.Amount, e.Limit)
	}
	return fmt.Sprintf("payment of %d sats would exceed budget (%d/%d sats spent)", e.Amount, e.Spent, e.Limit)
}

func (e *ExceededError) Unwrap() error { return ErrBudgetExceeded }

// Guard tracks cumulative spend over a rolling period and refuses payments
// that would push it past the limit. It is safe for concurrent use.
//
// Check and Record are separate calls, so two goroutines can both pass Check
// before either records. Guard does not reserve funds.
type Guard struct {
	limit  int64
	period models.BudgetPeriod
	now    func() time.Time

	mu          sync.Mutex
	spent       int64
	periodStart time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// New creates a Guard with the given limit and period. A negative limit is
// treated as zero.
func New(limit int64, period models.BudgetPeriod, opts ...Option) *Guard {
	if limit < 0 {
		limit = 0
	}
	if !period.Valid() {
		period = models.BudgetDay
	}
	g := &Guard{limit: limit, period: period, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	g.periodStart = g.now()
	return g
}

// Check returns an *ExceededError if spending amount now would exceed the
// limit. It does not commit the spend.
func (g *Guard) Check(amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollover()
	if amount > g.limit-g.spent {
		return &ExceededError{Amount: amount, Spent: g.spent, Limit: g.limit}
	}
	return nil
}

// Record commits amount to the current period. Callers check affordability
// with Check before paying; Record itself never refuses.
func (g *Guard) Record(amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollover()
	g.spent += amount
}

// Status returns the current spend against the limit.
func (g *Guard) Status() models.BudgetStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollover()
	remaining := g.limit - g.spent
	if remaining < 0 {
		remaining = 0
	}
	return models.BudgetStatus{
		Period:      g.period,
		Limit:       g.limit,
		Unlimited:   g.limit == Unlimited,
		Spent:       g.spent,
		Remaining:   remaining,
		PeriodStart: g.periodStart,
		ResetsAt:    g.periodStart.Add(g.period.Duration()),
	}
}

// rollover resets the spend once a full period has elapsed. Callers hold mu.
func (g *Guard) rollover() {
	now := g.now()
	if now.Sub(g.periodStart) >= g.period.Duration() {
		g.spent = 0
		g.periodStart = now
	}
}
