package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/hisabi-bot/hisabi/pkg/api"
	"github.com/hisabi-bot/hisabi/pkg/currency"
	"github.com/hisabi-bot/hisabi/pkg/parser"
)

const correctPrefix = "no it will be"

var (
	budgetCmdRe   = regexp.MustCompile(`^budget\s+(\S+)$`)
	currencyCmdRe = regexp.MustCompile(`^currency\s+(\S+)$`)
	referenceRe   = regexp.MustCompile(`^#(\d+)\s*(.*)$`)
	editPriceRe   = regexp.MustCompile(`^edit\s+(\S+)$`)
)

var exportKeywords = []string{"export", "excel", "spreadsheet", "download", "history"}

var reportKeywords = []string{"report", "summary", "this month", "this year"}

// dispatchActive resolves an active-state message against the command list
// in priority order. A message matching several shapes is resolved by list
// position, never by scoring.
func (e *Engine) dispatchActive(ctx context.Context, user *api.User, msg api.InboundMessage) error {
	body := strings.TrimSpace(msg.Body)
	lower := strings.ToLower(body)

	switch {
	case matchesAny(lower, exportKeywords):
		return e.handleExport(ctx, user)
	case budgetCmdRe.MatchString(lower):
		return e.handleBudgetCommand(ctx, user, budgetCmdRe.FindStringSubmatch(lower)[1])
	case currencyCmdRe.MatchString(lower):
		return e.handleCurrencyCommand(ctx, user, currencyCmdRe.FindStringSubmatch(lower)[1])
	case lower == "help":
		return e.reply(ctx, user.ID, helpText)
	case matchesAny(lower, reportKeywords):
		return e.handleReport(ctx, user)
	case strings.HasPrefix(lower, correctPrefix):
		return e.handleCorrectLast(ctx, user, strings.TrimSpace(body[len(correctPrefix):]))
	case referenceRe.MatchString(body):
		m := referenceRe.FindStringSubmatch(body)
		number, _ := strconv.Atoi(m[1])
		return e.handleReference(ctx, user, number, strings.TrimSpace(m[2]))
	case msg.HasMedia:
		return e.processImage(ctx, user, msg)
	case hasLetterAndDigit(body):
		return e.handleAddText(ctx, user, body)
	default:
		return e.reply(ctx, user.ID,
			"I didn't understand that. Log an expense like: Coffee 120 — or reply \"help\" for everything I can do.")
	}
}

const helpText = `Here's what I understand:
• Coffee 120 — log an expense
• send a receipt photo (add a caption if you like)
• no it will be Lunch 250 — fix the last entry
• #12 edit 150 — change an entry's price
• #12 Lunch 250 — rewrite an entry
• #12 delete — remove an entry
• budget 2000 — set this month's budget
• currency BDT — switch currency
• report — this month's summary
• export — your full history as a spreadsheet`

func (e *Engine) handleBudgetCommand(ctx context.Context, user *api.User, raw string) error {
	amount, ok := parser.ParseAmount(raw)
	if !ok {
		return e.reply(ctx, user.ID, "Use it like: budget 2000")
	}

	now := e.now()
	b := &api.MonthlyBudget{
		UserID:   user.ID,
		Month:    now.Format("2006-01"),
		Amount:   currency.RoundCents(amount),
		Currency: user.Currency,
	}
	if err := e.store.SetBudget(ctx, b); err != nil {
		return e.failTemporary(ctx, user.ID, fmt.Errorf("saving budget: %w", err))
	}

	summary, err := e.budgets.MonthlySummary(ctx, user, now)
	if err != nil {
		return e.failTemporary(ctx, user.ID, err)
	}
	remaining := currency.RoundCents(b.Amount - summary.Total)
	return e.reply(ctx, user.ID, fmt.Sprintf(
		"Budget for %s %d updated to %s.\nSpent so far: %s. Remaining: %s (about %s per remaining day).",
		summary.Month, summary.Year,
		currency.Format(b.Amount, user.Currency),
		currency.Format(summary.Total, user.Currency),
		currency.Format(remaining, user.Currency),
		currency.Format(currency.DynamicDailyLimit(remaining, now), user.Currency)))
}

// handleCurrencyCommand only stages the change; committing requires the
// yes/no confirmation sub-flow.
func (e *Engine) handleCurrencyCommand(ctx context.Context, user *api.User, word string) error {
	code := currency.Detect(word)
	if code == "" {
		return e.reply(ctx, user.ID,
			"I don't recognize that currency. Try a code like BDT or USD, or a name like taka.")
	}
	if code == user.Currency {
		return e.reply(ctx, user.ID, fmt.Sprintf("You're already tracking in %s.", code))
	}

	pending := api.PendingAction{Kind: api.PendingCurrencyChange, Currency: code}
	if err := e.setPending(ctx, user, pending, api.StateAwaitingCurrencyChange); err != nil {
		return e.failTemporary(ctx, user.ID, err)
	}
	return e.reply(ctx, user.ID, fmt.Sprintf(
		"Switch your currency from %s to %s? Earlier records keep their currency. Reply YES or NO.",
		user.Currency, code))
}

func (e *Engine) handleReport(ctx context.Context, user *api.User) error {
	now := e.now()
	summary, err := e.budgets.MonthlySummary(ctx, user, now)
	if err != nil {
		return e.failTemporary(ctx, user.ID, err)
	}
	if summary.Count == 0 {
		return e.reply(ctx, user.ID, fmt.Sprintf(
			"Nothing logged for %s %d yet. Send something like: Coffee 120", summary.Month, summary.Year))
	}

	lines := []string{fmt.Sprintf("%s %d: %s across %d expense(s).",
		summary.Month, summary.Year, currency.Format(summary.Total, summary.Currency), summary.Count)}

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

func (e *Engine) handleExport(ctx context.Context, user *api.User) error {
	if e.exporter == nil {
		return e.reply(ctx, user.ID, "Exports aren't set up on this server yet.")
	}

	expenses, err := e.store.AllExpenses(ctx, user.ID)
	if err != nil {
		return e.failTemporary(ctx, user.ID, fmt.Errorf("loading expense history: %w", err))
	}
	if len(expenses) == 0 {
		return e.reply(ctx, user.ID, "No expenses to export yet.")
	}

	result, err := e.exporter.Export(ctx, user, expenses)
	if err != nil {
		return e.failTemporary(ctx, user.ID, fmt.Errorf("exporting history: %w", err))
	}

	if result.Link != "" {
		return e.reply(ctx, user.ID, fmt.Sprintf("Your expense history: %s", result.Link))
	}
	if err := e.channel.SendDocument(ctx, user.ID, result.Filename, result.MimeType, result.Document); err != nil {
		return e.failTemporary(ctx, user.ID, fmt.Errorf("sending export: %w", err))
	}
	return nil
}

func matchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func hasLetterAndDigit(s string) bool {
	var hasLetter, hasDigit bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
		if hasLetter && hasDigit {
			return true
		}
	}
	return false
}
