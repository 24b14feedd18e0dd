// Package budget derives monthly totals and remaining-budget figures from
// persisted expense records.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/hisabi-bot/hisabi/pkg/api"
	"github.com/hisabi-bot/hisabi/pkg/currency"
)

// Engine computes aggregate figures over a Store. It holds no state of its
// own; every call reads the current record set.
type Engine struct {
	store api.Store
}

func New(store api.Store) *Engine {
	return &Engine{store: store}
}

// MonthlySummary sums all of the user's records whose date falls in the
// same calendar month as anchor. The reported currency label is the user's
// current preferred currency; historical records keep their own stored
// currency and are summed as-is.
func (e *Engine) MonthlySummary(ctx context.Context, user *api.User, anchor time.Time) (*api.MonthlySummary, error) {
	month := anchor.Format("2006-01")
	expenses, err := e.store.ExpensesForMonth(ctx, user.ID, month)
	if err != nil {
		return nil, fmt.Errorf("loading expenses for %s: %w", month, err)
	}

	var total float64
	for _, exp := range expenses {
		total += exp.Price
	}

	return &api.MonthlySummary{
		Month:    anchor.Month(),
		Year:     anchor.Year(),
		Total:    currency.RoundCents(total),
		Currency: user.Currency,
		Count:    len(expenses),
	}, nil
}

// Remaining returns budget minus spend for the anchor month, along with the
// budget record itself (nil when no budget is set). Over-budget months
// yield a negative remainder; it is reported, not clamped.
func (e *Engine) Remaining(ctx context.Context, user *api.User, summary *api.MonthlySummary, anchor time.Time) (*api.MonthlyBudget, float64, error) {
	b, err := e.store.Budget(ctx, user.ID, anchor.Format("2006-01"))
	if err != nil {
		return nil, 0, fmt.Errorf("loading budget: %w", err)
	}
	if b == nil {
		return nil, 0, nil
	}
	return b, currency.RoundCents(b.Amount - summary.Total), nil
}

// TodaySpending sums the prices of all records dated exactly today.
func (e *Engine) TodaySpending(ctx context.Context, userID string, now time.Time) (float64, error) {
	expenses, err := e.store.ExpensesForDate(ctx, userID, now.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("loading today's expenses: %w", err)
	}

	var total float64
	for _, exp := range expenses {
		total += exp.Price
	}
	return currency.RoundCents(total), nil
}
