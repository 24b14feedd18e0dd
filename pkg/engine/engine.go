// Package engine implements the per-user conversation state machine: the
// onboarding flow, the active-state command dispatch, the confidence-gated
// image pipeline, and the expense reconciliation operations.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hisabi-bot/hisabi/pkg/api"
	"github.com/hisabi-bot/hisabi/pkg/budget"
	"github.com/hisabi-bot/hisabi/pkg/currency"
	"github.com/hisabi-bot/hisabi/pkg/parser"
)

const defaultCurrency = "USD"

// ExportResult is what an Exporter produced: either a link to a hosted
// spreadsheet or an inline document to send over the channel.
type ExportResult struct {
	Link     string
	Document []byte
	Filename string
	MimeType string
}

// Exporter renders a user's full expense history to a spreadsheet.
type Exporter interface {
	Export(ctx context.Context, user *api.User, expenses []api.Expense) (*ExportResult, error)
}

// Deps collects the engine's collaborators. Store and Channel are required;
// the rest degrade gracefully when nil (image messages and exports get an
// "unavailable" reply).
type Deps struct {
	Store     api.Store
	Channel   api.Channel
	Extractor api.Extractor
	Images    api.ImageHost
	Exporter  Exporter
}

// Engine handles one inbound message to completion: state transition,
// storage calls, and the outbound reply.
type Engine struct {
	store     api.Store
	channel   api.Channel
	extractor api.Extractor
	images    api.ImageHost
	exporter  Exporter
	budgets   *budget.Engine
	logger    *slog.Logger
	now       func() time.Time
}

func New(deps Deps, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     deps.Store,
		channel:   deps.Channel,
		extractor: deps.Extractor,
		images:    deps.Images,
		exporter:  deps.Exporter,
		budgets:   budget.New(deps.Store),
		logger:    logger,
		now:       time.Now,
	}
}

// HandleMessage routes one inbound message according to the user's current
// state. Storage and channel failures propagate after a best-effort generic
// reply; parse failures and unrecognized input never do.
func (e *Engine) HandleMessage(ctx context.Context, msg api.InboundMessage) error {
	user, err := e.store.User(ctx, msg.From)
	if err != nil {
		return e.failTemporary(ctx, msg.From, fmt.Errorf("loading user: %w", err))
	}
	if user == nil {
		user = &api.User{ID: msg.From, State: api.StateNew, Currency: defaultCurrency}
		if err := e.store.SaveUser(ctx, user); err != nil {
			return e.failTemporary(ctx, msg.From, fmt.Errorf("creating user: %w", err))
		}
	}

	if msg.Body != "" {
		if err := e.store.LogMessage(ctx, user.ID, msg.Body); err != nil {
			e.logger.Warn("conversation log append failed", "user", user.ID, "error", err)
		}
	}

	switch user.State {
	case api.StateNew:
		return e.startOnboarding(ctx, user)
	case api.StateAwaitingCurrency:
		return e.onboardCurrency(ctx, user, msg.Body)
	case api.StateAwaitingBudget:
		return e.onboardBudget(ctx, user, msg.Body)
	case api.StateAwaitingOCRConfirm:
		return e.resolveDraft(ctx, user, msg.Body)
	case api.StateAwaitingCurrencyChange:
		return e.resolveCurrencyChange(ctx, user, msg.Body)
	case api.StateActive:
		return e.dispatchActive(ctx, user, msg)
	default:
		e.logger.Warn("user in unknown state, resetting to active", "user", user.ID, "state", user.State)
		user.State = api.StateActive
		if err := e.store.SaveUser(ctx, user); err != nil {
			return e.failTemporary(ctx, user.ID, fmt.Errorf("resetting state: %w", err))
		}
		return e.dispatchActive(ctx, user, msg)
	}
}

// startOnboarding greets a brand-new user. The first message's content is
// ignored; whatever they said, the reply asks for a currency.
func (e *Engine) startOnboarding(ctx context.Context, user *api.User) error {
	user.State = api.StateAwaitingCurrency
	if err := e.store.SaveUser(ctx, user); err != nil {
		return e.failTemporary(ctx, user.ID, fmt.Errorf("saving state: %w", err))
	}
	return e.reply(ctx, user.ID,
		"Hi! I'm Hisabi, your expense tracker.\n"+
			"First, which currency do you spend in? (e.g. BDT, USD, taka, dollar)")
}

func (e *Engine) onboardCurrency(ctx context.Context, user *api.User, body string) error {
	code := currency.Detect(body)
	if code == "" {
		return e.reply(ctx, user.ID,
			"I didn't catch that currency. Try a code like BDT or USD, or a name like taka or dollar.")
	}

	user.Currency = code
	user.State = api.StateAwaitingBudget
	if err := e.store.SaveUser(ctx, user); err != nil {
		return e.failTemporary(ctx, user.ID, fmt.Errorf("saving currency: %w", err))
	}
	return e.reply(ctx, user.ID, fmt.Sprintf(
		"Got it, %s it is. What's your monthly budget? Just send the number, e.g. 2000.", code))
}

func (e *Engine) onboardBudget(ctx context.Context, user *api.User, body string) error {
	amount, ok := parser.ParseAmount(body)
	if !ok {
		return e.reply(ctx, user.ID,
			"Please send the budget as a plain number, e.g. 2000 or 1500.50.")
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

	user.State = api.StateActive
	if err := e.store.SaveUser(ctx, user); err != nil {
		return e.failTemporary(ctx, user.ID, fmt.Errorf("saving state: %w", err))
	}

	daily := currency.DailyLimit(b.Amount, now)
	return e.reply(ctx, user.ID, fmt.Sprintf(
		"All set! Budget for this month: %s.\n"+
			"That's about %s per day.\n"+
			"Log an expense any time, like: Coffee 120 — or send me a receipt photo.",
		currency.Format(b.Amount, b.Currency), currency.Format(daily, b.Currency)))
}

// resolveDraft handles the awaiting_ocr_confirmation sub-state. A regular
// draft wants yes/no; a NeedsAmount draft wants an amount (bare number or a
// full "item amount" line) and also accepts no/cancel.
func (e *Engine) resolveDraft(ctx context.Context, user *api.User, body string) error {
	draft := user.Pending.Draft
	if user.Pending.Kind != api.PendingOCRConfirmation || draft == nil {
		// Inconsistent session state; recover rather than wedge the user.
		e.logger.Warn("confirmation state without a draft", "user", user.ID)
		return e.clearPending(ctx, user, "Nothing pending anymore — you can just log expenses normally.")
	}

	norm := strings.ToLower(strings.TrimSpace(body))

	if draft.NeedsAmount {
		return e.resolveAmountDraft(ctx, user, draft, body, norm)
	}

	switch norm {
	case "yes", "y":
		exp, err := e.saveExpense(ctx, user, draft.Item, draft.Price, "", draft.Image)
		if err != nil {
			return e.failTemporary(ctx, user.ID, err)
		}
		if err := e.setPending(ctx, user, api.PendingAction{}, api.StateActive); err != nil {
			return e.failTemporary(ctx, user.ID, err)
		}
		return e.replySummary(ctx, user, exp, "Saved")
	case "no", "n":
		e.discardDraftImage(ctx, draft)
		return e.clearPending(ctx, user,
			"Okay, discarded. Send a clearer photo, or type it like: Coffee 120.")
	default:
		return e.reply(ctx, user.ID, "Please reply YES to save it or NO to discard it.")
	}
}

func (e *Engine) resolveAmountDraft(ctx context.Context, user *api.User, draft *api.ExpenseDraft, body, norm string) error {
	if norm == "no" || norm == "n" || norm == "cancel" {
		e.discardDraftImage(ctx, draft)
		return e.clearPending(ctx, user, "Okay, dropped it.")
	}

	item := draft.Item
	price, ok := parser.ParseAmount(body)
	if !ok {
		if cand := parser.Parse(body); cand != nil {
			item, price = cand.Item, cand.Price
			ok = true
		}
	}
	if !ok {
		return e.reply(ctx, user.ID, fmt.Sprintf(
			"How much was %q? Reply with just the amount, like 120 — or the full line, like %s 120.",
			draft.Item, draft.Item))
	}

	exp, err := e.saveExpense(ctx, user, item, price, "", draft.Image)
	if err != nil {
		return e.failTemporary(ctx, user.ID, err)
	}
	if err := e.setPending(ctx, user, api.PendingAction{}, api.StateActive); err != nil {
		return e.failTemporary(ctx, user.ID, err)
	}
	return e.replySummary(ctx, user, exp, "Saved")
}

// resolveCurrencyChange handles the awaiting_currency_change sub-state.
// Committing never rewrites historical records; only new expenses pick up
// the new currency.
func (e *Engine) resolveCurrencyChange(ctx context.Context, user *api.User, body string) error {
	pending := user.Pending.Currency
	if user.Pending.Kind != api.PendingCurrencyChange || pending == "" {
		e.logger.Warn("currency-change state without a pending code", "user", user.ID)
		return e.clearPending(ctx, user, "Nothing pending anymore — you can just log expenses normally.")
	}

	switch strings.ToLower(strings.TrimSpace(body)) {
	case "yes", "y":
		user.Currency = pending
		if err := e.setPending(ctx, user, api.PendingAction{}, api.StateActive); err != nil {
			return e.failTemporary(ctx, user.ID, err)
		}
		return e.reply(ctx, user.ID, fmt.Sprintf(
			"Done — new expenses will be in %s. Your earlier records keep their original currency.", pending))
	case "no", "n":
		return e.clearPending(ctx, user, fmt.Sprintf("No problem, staying with %s.", user.Currency))
	default:
		return e.reply(ctx, user.ID, fmt.Sprintf(
			"Switch your currency to %s? Reply YES or NO.", pending))
	}
}

// setPending stores a new pending action and state together, keeping the
// invariant that a draft exists only inside its awaiting_* state.
func (e *Engine) setPending(ctx context.Context, user *api.User, pending api.PendingAction, state api.State) error {
	user.Pending = pending
	user.State = state
	if err := e.store.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("saving session state: %w", err)
	}
	return nil
}

func (e *Engine) clearPending(ctx context.Context, user *api.User, replyText string) error {
	if err := e.setPending(ctx, user, api.PendingAction{}, api.StateActive); err != nil {
		return e.failTemporary(ctx, user.ID, err)
	}
	return e.reply(ctx, user.ID, replyText)
}

func (e *Engine) discardDraftImage(ctx context.Context, draft *api.ExpenseDraft) {
	if draft.Image == nil || e.images == nil {
		return
	}
	if err := e.images.Delete(ctx, draft.Image); err != nil {
		e.logger.Warn("deleting discarded draft image failed", "ref", draft.Image.Ref, "error", err)
	}
}

func (e *Engine) reply(ctx context.Context, userID, text string) error {
	if err := e.channel.SendText(ctx, userID, text); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}

// failTemporary logs cause, tells the user to retry later, and propagates
// the original error. No success reply is ever sent after a failed persist.
func (e *Engine) failTemporary(ctx context.Context, userID string, cause error) error {
	e.logger.Error("message handling failed", "user", userID, "error", cause)
	if err := e.channel.SendText(ctx, userID, "Something went wrong on my side — please try again in a bit."); err != nil {
		e.logger.Error("failure notice could not be sent", "user", userID, "error", err)
	}
	return cause
}
