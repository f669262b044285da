package budget

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/l402/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestCheckWithinBudget(t *testing.T) {
	g := New(100, models.BudgetDay)

	require.NoError(t, g.Check(50))
	g.Record(50)
	require.NoError(t, g.Check(50))
	g.Record(50)

	err := g.Check(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestCheckExactlyAtLimit(t *testing.T) {
	g := New(100, models.BudgetDay)
	g.Record(80)

	assert.ErrorIs(t, g.Check(21), ErrBudgetExceeded)
	assert.NoError(t, g.Check(20))
}

func TestCheckDoesNotCommit(t *testing.T) {
	g := New(100, models.BudgetDay)
	for range 10 {
		require.NoError(t, g.Check(100))
	}
	assert.Equal(t, int64(0), g.Status().Spent)
}

func TestUnlimitedNeverRefuses(t *testing.T) {
	g := New(Unlimited, models.BudgetDay)
	require.NoError(t, g.Check(999_999))
	g.Record(999_999)
	require.NoError(t, g.Check(999_999))
	assert.True(t, g.Status().Unlimited)
}

func TestErrorMessage(t *testing.T) {
	g := New(100, models.BudgetDay)
	g.Record(80)

	err := g.Check(30)
	var ex *ExceededError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, int64(30), ex.Amount)
	assert.Equal(t, int64(80), ex.Spent)
	assert.Equal(t, int64(100), ex.Limit)
	assert.Contains(t, err.Error(), "30")
	assert.Contains(t, err.Error(), "80")
	assert.Contains(t, err.Error(), "100")
}

func TestMaxPriceErrorMessage(t *testing.T) {
	err := &ExceededError{Amount: 500, Limit: 100, MaxPrice: true}
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "100")
}

func TestRollover(t *testing.T) {
	clock := newClock()
	g := New(100, models.BudgetDay, WithClock(clock.Now))
	g.Record(100)
	require.ErrorIs(t, g.Check(50), ErrBudgetExceeded)

	clock.Advance(23 * time.Hour)
	require.ErrorIs(t, g.Check(50), ErrBudgetExceeded)

	clock.Advance(time.Hour)
	require.NoError(t, g.Check(50))

	st := g.Status()
	assert.Equal(t, int64(0), st.Spent)
	assert.Equal(t, clock.Now(), st.PeriodStart)
	assert.Equal(t, clock.Now().Add(24*time.Hour), st.ResetsAt)
}

func TestAllPeriods(t *testing.T) {
	for _, p := range []models.BudgetPeriod{models.BudgetHour, models.BudgetDay, models.BudgetWeek, models.BudgetMonth} {
		t.Run(string(p), func(t *testing.T) {
			clock := newClock()
			g := New(10, p, WithClock(clock.Now))
			g.Record(10)
			assert.ErrorIs(t, g.Check(1), ErrBudgetExceeded)

			clock.Advance(p.Duration() - time.Second)
			assert.ErrorIs(t, g.Check(1), ErrBudgetExceeded)

			clock.Advance(time.Second)
			assert.NoError(t, g.Check(1))
		})
	}
}

func TestInvalidPeriodDefaultsToDay(t *testing.T) {
	g := New(10, models.BudgetPeriod("fortnight"))
	assert.Equal(t, models.BudgetDay, g.Status().Period)
}

func TestStatus(t *testing.T) {
	g := New(1000, models.BudgetWeek)
	g.Record(150)

	st := g.Status()
	assert.Equal(t, int64(1000), st.Limit)
	assert.Equal(t, int64(150), st.Spent)
	assert.Equal(t, int64(850), st.Remaining)
	assert.False(t, st.Unlimited)
}

func TestConcurrentRecord(t *testing.T) {
	g := New(Unlimited, models.BudgetDay)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Check(2)
			g.Record(2)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), g.Status().Spent)
}
