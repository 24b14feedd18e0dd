package postgres

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hisabi-bot/hisabi/pkg/api"
)

// TestNew_ConnectionFailure tests that the store returns an error when connection fails.
func TestNew_ConnectionFailure(t *testing.T) {
	cfg := Config{
		Host:     "nonexistent-host",
		Port:     5432,
		Database: "hisabi",
		User:     "hisabi",
		Password: "password",
		SSLMode:  "disable",
	}

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err == nil {
		t.Error("expected error when connecting to nonexistent host, got nil")
	}
}

// startStore spins up a disposable postgres container and connects a
// Store to it. Requires Docker; opt in with TEST_POSTGRES_CONTAINERS=1.
func startStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("TEST_POSTGRES_CONTAINERS") == "" {
		t.Skip("TEST_POSTGRES_CONTAINERS not set, skipping integration test")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("hisabi"),
		tcpostgres.WithUsername("hisabi"),
		tcpostgres.WithPassword("hisabi"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	store, err := New(ctx, Config{
		Host:     host,
		Port:     port.Int(),
		Database: "hisabi",
		User:     "hisabi",
		Password: "hisabi",
	}, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestUserRoundTrip(t *testing.T) {
	store := startStore(t)
	ctx := context.Background()

	got, err := store.User(ctx, "15550001111")
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing user, got %+v", got)
	}

	u := &api.User{
		ID:       "15550001111",
		State:    api.StateAwaitingOCRConfirm,
		Currency: "BDT",
		Pending: api.PendingAction{
			Kind:  api.PendingOCRConfirmation,
			Draft: &api.ExpenseDraft{Item: "groceries", Price: 540, Confidence: 0.72},
		},
	}
	if err := store.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	got, err = store.User(ctx, u.ID)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if got.State != api.StateAwaitingOCRConfirm || got.Currency != "BDT" {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.Pending.Kind != api.PendingOCRConfirmation || got.Pending.Draft == nil {
		t.Fatalf("pending action not preserved: %+v", got.Pending)
	}
	if got.Pending.Draft.Item != "groceries" || got.Pending.Draft.Price != 540 {
		t.Errorf("draft not preserved: %+v", got.Pending.Draft)
	}

	// Upsert replaces.
	u.State = api.StateActive
	u.Pending = api.PendingAction{}
	if err := store.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	got, err = store.User(ctx, u.ID)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if got.State != api.StateActive || got.Pending.Kind != api.PendingNone {
		t.Errorf("upsert did not replace: %+v", got)
	}
}

func TestNextNumberNeverReused(t *testing.T) {
	store := startStore(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		n, err := store.NextNumber(ctx, "u1")
		if err != nil {
			t.Fatalf("NextNumber: %v", err)
		}
		if n != want {
			t.Errorf("NextNumber = %d, want %d", n, want)
		}
	}

	// A second user has an independent counter.
	n, err := store.NextNumber(ctx, "u2")
	if err != nil {
		t.Fatalf("NextNumber: %v", err)
	}
	if n != 1 {
		t.Errorf("NextNumber for second user = %d, want 1", n)
	}

	// Deleting an expense does not free its number.
	exp := &api.Expense{UserID: "u1", Number: 3, Item: "coffee", Price: 5, Currency: "USD", Date: "2026-08-30"}
	if err := store.CreateExpense(ctx, exp); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if _, err := store.DeleteExpense(ctx, "u1", 3); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	n, err = store.NextNumber(ctx, "u1")
	if err != nil {
		t.Fatalf("NextNumber: %v", err)
	}
	if n != 4 {
		t.Errorf("NextNumber after delete = %d, want 4", n)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	store := startStore(t)
	ctx := context.Background()
	userID := "15550002222"

	create := func(item string, price float64, date string) *api.Expense {
		t.Helper()
		n, err := store.NextNumber(ctx, userID)
		if err != nil {
			t.Fatalf("NextNumber: %v", err)
		}
		exp := &api.Expense{
			UserID: userID, Number: n, Item: item, Price: price,
			Currency: "USD", Date: date,
		}
		if err := store.CreateExpense(ctx, exp); err != nil {
			t.Fatalf("CreateExpense: %v", err)
		}
		return exp
	}

	create("lunch", 12.50, "2026-08-29")
	second := create("taxi", 8.00, "2026-08-30")
	create("dinner", 30.00, "2026-07-15")

	got, err := store.ExpenseByNumber(ctx, userID, second.Number)
	if err != nil {
		t.Fatalf("ExpenseByNumber: %v", err)
	}
	if got == nil || got.Item != "taxi" || got.Date != "2026-08-30" {
		t.Fatalf("ExpenseByNumber = %+v", got)
	}

	latest, err := store.LatestExpense(ctx, userID)
	if err != nil {
		t.Fatalf("LatestExpense: %v", err)
	}
	if latest.Item != "dinner" {
		t.Errorf("LatestExpense = %q, want dinner", latest.Item)
	}

	month, err := store.ExpensesForMonth(ctx, userID, "2026-08")
	if err != nil {
		t.Fatalf("ExpensesForMonth: %v", err)
	}
	if len(month) != 2 {
		t.Errorf("ExpensesForMonth returned %d expenses, want 2", len(month))
	}

	day, err := store.ExpensesForDate(ctx, userID, "2026-08-30")
	if err != nil {
		t.Fatalf("ExpensesForDate: %v", err)
	}
	if len(day) != 1 || day[0].Item != "taxi" {
		t.Errorf("ExpensesForDate = %+v", day)
	}

	second.Price = 9.50
	second.Item = "uber"
	if err := store.UpdateExpense(ctx, second); err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	got, err = store.ExpenseByNumber(ctx, userID, second.Number)
	if err != nil {
		t.Fatalf("ExpenseByNumber: %v", err)
	}
	if got.Item != "uber" || got.Price != 9.50 {
		t.Errorf("update not applied: %+v", got)
	}
	if got.Date != "2026-08-30" {
		t.Errorf("update must not touch the date, got %q", got.Date)
	}

	deleted, err := store.DeleteExpense(ctx, userID, second.Number)
	if err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if !deleted {
		t.Error("expected delete to report true")
	}
	deleted, err = store.DeleteExpense(ctx, userID, second.Number)
	if err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if deleted {
		t.Error("expected second delete to report false")
	}

	all, err := store.AllExpenses(ctx, userID)
	if err != nil {
		t.Fatalf("AllExpenses: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("AllExpenses returned %d, want 2", len(all))
	}
}

func TestBudgetUpsert(t *testing.T) {
	store := startStore(t)
	ctx := context.Background()

	b, err := store.Budget(ctx, "u1", "2026-08")
	if err != nil {
		t.Fatalf("Budget: %v", err)
	}
	if b != nil {
		t.Fatalf("expected nil for missing budget, got %+v", b)
	}

	if err := store.SetBudget(ctx, &api.MonthlyBudget{
		UserID: "u1", Month: "2026-08", Amount: 500, Currency: "USD",
	}); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	if err := store.SetBudget(ctx, &api.MonthlyBudget{
		UserID: "u1", Month: "2026-08", Amount: 750, Currency: "USD",
	}); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}

	b, err = store.Budget(ctx, "u1", "2026-08")
	if err != nil {
		t.Fatalf("Budget: %v", err)
	}
	if b.Amount != 750 {
		t.Errorf("Budget amount = %v, want 750 after upsert", b.Amount)
	}
}
