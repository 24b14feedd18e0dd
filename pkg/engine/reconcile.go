package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hisabi-bot/hisabi/pkg/api"
	"github.com/hisabi-bot/hisabi/pkg/currency"
	"github.com/hisabi-bot/hisabi/pkg/parser"
)

// handleAddText is the free-text add path. The heuristic parser runs first;
// when it fails the LLM extractor gets a chance to corroborate before the
// message is rejected with format help.
func (e *Engine) handleAddText(ctx context.Context, user *api.User, body string) error {
	var item string
	var price float64
	var detected string

	if cand := parser.Parse(body); cand != nil {
		item, price, detected = cand.Item, cand.Price, cand.Currency
	} else if e.extractor != nil {
		ext, err := e.extractor.FromText(ctx, body)
		if err != nil || ext.Item == "" || ext.Price <= 0 {
			return e.replyFormatHelp(ctx, user.ID)
		}
		item, price, detected = ext.Item, ext.Price, ext.Currency
	} else {
		return e.replyFormatHelp(ctx, user.ID)
	}

	exp, err := e.saveExpense(ctx, user, item, price, detected, nil)
	if err != nil {
		return e.failTemporary(ctx, user.ID, err)
	}
	return e.replySummary(ctx, user, exp, "Saved")
}

// handleCorrectLast rewrites the most recently created record. The caller
// already stripped the "no it will be" prefix; an unmatched prefix never
// reaches here (it is a silent no-op by design, handled in dispatch order).
func (e *Engine) handleCorrectLast(ctx context.Context, user *api.User, rest string) error {
	cand := parser.Parse(rest)
	if cand == nil {
		return e.reply(ctx, user.ID,
			"I couldn't read the correction. Use: no it will be <item> <amount>, e.g. no it will be Lunch 250.")
	}

	last, err := e.store.LatestExpense(ctx, user.ID)
	if err != nil {
		return e.failTemporary(ctx, user.ID, fmt.Errorf("loading last expense: %w", err))
	}
	if last == nil {
		return e.reply(ctx, user.ID, "There's nothing to correct yet — log an expense first.")
	}

	last.Item = cand.Item
	last.Price = currency.RoundCents(cand.Price)
	last.Currency = stampCurrency(cand.Currency, user)
	if err := e.store.UpdateExpense(ctx, last); err != nil {
		return e.failTemporary(ctx, user.ID, fmt.Errorf("updating expense #%d: %w", last.Number, err))
	}
	return e.replySummary(ctx, user, last, "Corrected")
}

// handleReference resolves "#<N> <rest>" commands: delete, price-only edit,
// or a full item+price rewrite.
func (e *Engine) handleReference(ctx context.Context, user *api.User, number int, rest string) error {
	exp, err := e.store.ExpenseByNumber(ctx, user.ID, number)
	if err != nil {
		return e.failTemporary(ctx, user.ID, fmt.Errorf("loading expense #%d: %w", number, err))
	}
	if exp == nil {
		return e.reply(ctx, user.ID, fmt.Sprintf("I couldn't find expense #%d.", number))
	}

	lower := strings.ToLower(rest)

	if lower == "delete" {
		return e.deleteExpense(ctx, user, exp)
	}

	if m := editPriceRe.FindStringSubmatch(lower); m != nil {
		price, ok := parser.ParseAmount(m[1])
		if !ok {
			return e.reply(ctx, user.ID, fmt.Sprintf("Use it like: #%d edit 150", number))
		}
		exp.Price = currency.RoundCents(price)
		if err := e.store.UpdateExpense(ctx, exp); err != nil {
			return e.failTemporary(ctx, user.ID, fmt.Errorf("updating expense #%d: %w", number, err))
		}
		return e.replySummary(ctx, user, exp, "Updated")
	}

	if cand := parser.Parse(rest); cand != nil {
		exp.Item = cand.Item
		exp.Price = currency.RoundCents(cand.Price)
		if cand.Currency != "" {
			exp.Currency = cand.Currency
		}
		if err := e.store.UpdateExpense(ctx, exp); err != nil {
			return e.failTemporary(ctx, user.ID, fmt.Errorf("updating expense #%d: %w", number, err))
		}
		return e.replySummary(ctx, user, exp, "Updated")
	}

	return e.reply(ctx, user.ID, fmt.Sprintf(
		"With a reference you can:\n#%d edit 150 — change the price\n#%d Lunch 250 — rewrite it\n#%d delete — remove it",
		number, number, number))
}

func (e *Engine) deleteExpense(ctx context.Context, user *api.User, exp *api.Expense) error {
	deleted, err := e.store.DeleteExpense(ctx, user.ID, exp.Number)
	if err != nil {
		return e.failTemporary(ctx, user.ID, fmt.Errorf("deleting expense #%d: %w", exp.Number, err))
	}
	if !deleted {
		return e.reply(ctx, user.ID, fmt.Sprintf("I couldn't find expense #%d.", exp.Number))
	}

	if exp.Image != nil && e.images != nil {
		if err := e.images.Delete(ctx, exp.Image); err != nil {
			e.logger.Warn("deleting expense image failed", "ref", exp.Image.Ref, "error", err)
		}
	}

	now := e.now()
	summary, err := e.budgets.MonthlySummary(ctx, user, now)
	if err != nil {
		return e.failTemporary(ctx, user.ID, err)
	}
	lines := []string{
		fmt.Sprintf("Deleted #%d %s (%s).", exp.Number, exp.Item, currency.Format(exp.Price, exp.Currency)),
		fmt.Sprintf("%s %d: %s across %d expense(s).",
			summary.Month, summary.Year, currency.Format(summary.Total, summary.Currency), summary.Count),
	}

	b, remaining, err := e.budgets.Remaining(ctx, user, summary, now)
	if err != nil {
		return e.failTemporary(ctx, user.ID, err)
	}
	if b != nil {
		today, err := e.budgets.TodaySpending(ctx, user.ID, now)
		if err != nil {
			return e.failTemporary(ctx, user.ID, err)
		}
		lines = append(lines, budgetLines(user, b, remaining, today, now)...)
	}
	return e.reply(ctx, user.ID, strings.Join(lines, "\n"))
}

// saveExpense assigns the next sequence number and persists a new record.
// The stored currency is the detected one when present, otherwise the
// user's preference; callers passing "" force the preference.
func (e *Engine) saveExpense(ctx context.Context, user *api.User, item string, price float64, detected string, img *api.ImageRef) (*api.Expense, error) {
	number, err := e.store.NextNumber(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("assigning expense number: %w", err)
	}

	exp := &api.Expense{
		UserID:   user.ID,
		Number:   number,
		Item:     item,
		Price:    currency.RoundCents(price),
		Currency: stampCurrency(detected, user),
		Date:     e.now().Format("2006-01-02"),
		Image:    img,
	}
	if err := e.store.CreateExpense(ctx, exp); err != nil {
		return nil, fmt.Errorf("persisting expense #%d: %w", number, err)
	}
	return exp, nil
}

// replySummary renders the uniform post-operation summary: the record, the
// month total, and, when a budget exists, remaining budget and the
// dynamic daily-limit verdict.
func (e *Engine) replySummary(ctx context.Context, user *api.User, exp *api.Expense, verb string) error {
	now := e.now()
	summary, err := e.budgets.MonthlySummary(ctx, user, now)
	if err != nil {
		return e.failTemporary(ctx, user.ID, err)
	}

	lines := []string{
		fmt.Sprintf("%s #%d %s — %s (%s)", verb, exp.Number, exp.Item,
			currency.Format(exp.Price, exp.Currency), exp.Date),
		fmt.Sprintf("%s %d: %s across %d expense(s).",
			summary.Month, summary.Year, currency.Format(summary.Total, summary.Currency), summary.Count),
	}

	b, remaining, err := e.budgets.Remaining(ctx, user, summary, now)
	if err != nil {
		return e.failTemporary(ctx, user.ID, err)
	}
	if b != nil {
		today, err := e.budgets.TodaySpending(ctx, user.ID, now)
		if err != nil {
			return e.failTemporary(ctx, user.ID, err)
		}
		lines = append(lines, budgetLines(user, b, remaining, today, now)...)
	}

	return e.reply(ctx, user.ID, strings.Join(lines, "\n"))
}

// budgetLines renders remaining budget and the daily-limit verdict. Today's
// spend at or under the dynamic limit counts as on track.
func budgetLines(user *api.User, b *api.MonthlyBudget, remaining, today float64, now time.Time) []string {
	daily := currency.DynamicDailyLimit(remaining, now)
	verdict := "on track"
	if today > daily {
		verdict = "over today's limit"
	}

	lines := []string{
		fmt.Sprintf("Remaining budget: %s of %s.",
			currency.Format(remaining, user.Currency), currency.Format(b.Amount, user.Currency)),
		fmt.Sprintf("Daily guideline: %s — today %s, %s.",
			currency.Format(daily, user.Currency), currency.Format(today, user.Currency), verdict),
	}
	if remaining < 0 {
		lines = append(lines, "You're over budget for this month.")
	}
	return lines
}

func (e *Engine) replyFormatHelp(ctx context.Context, userID string) error {
	return e.reply(ctx, userID,
		"I couldn't find an amount in that. Log expenses like: Coffee 120 — item first, amount last.")
}

func stampCurrency(detected string, user *api.User) string {
	if detected != "" {
		return detected
	}
	if user.Currency != "" {
		return user.Currency
	}
	return defaultCurrency
}
