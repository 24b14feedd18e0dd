// Package postgres implements the api.Store on PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hisabi-bot/hisabi/pkg/api"
)

//go:embed 001_create_schema.sql
var migrationSQL string

// Config holds the PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Store persists users, expenses, and budgets in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects, pings, and runs migrations.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{pool: pool, logger: logger}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
	)
	return s, nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// User returns the user or (nil, nil) when absent.
func (s *Store) User(ctx context.Context, userID string) (*api.User, error) {
	var (
		u       api.User
		pending []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, state, currency, pending, created_at, updated_at FROM users WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.State, &u.Currency, &pending, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if err := json.Unmarshal(pending, &u.Pending); err != nil {
		return nil, fmt.Errorf("decoding pending action: %w", err)
	}
	return &u, nil
}

// SaveUser upserts the user row.
func (s *Store) SaveUser(ctx context.Context, user *api.User) error {
	pending, err := json.Marshal(user.Pending)
	if err != nil {
		return fmt.Errorf("encoding pending action: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, state, currency, pending)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			currency = EXCLUDED.currency,
			pending = EXCLUDED.pending,
			updated_at = NOW()
	`, user.ID, user.State, user.Currency, pending)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// NextNumber atomically increments and returns the user's expense counter.
func (s *Store) NextNumber(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO user_sequences (user_id, last_value)
		VALUES ($1, 1)
		ON CONFLICT (user_id) DO UPDATE SET last_value = user_sequences.last_value + 1
		RETURNING last_value
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("advancing sequence: %w", err)
	}
	return n, nil
}

// CreateExpense inserts a new expense row.
func (s *Store) CreateExpense(ctx context.Context, exp *api.Expense) error {
	image, err := encodeImage(exp.Image)
	if err != nil {
		return err
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO expenses (user_id, number, item, price, currency, expense_date, image)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, exp.UserID, exp.Number, exp.Item, exp.Price, exp.Currency, exp.Date, image).
		Scan(&exp.ID, &exp.CreatedAt, &exp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting expense: %w", err)
	}
	return nil
}

const expenseColumns = `id, user_id, number, item, price, currency,
	to_char(expense_date, 'YYYY-MM-DD'), image, created_at, updated_at`

func scanExpense(row pgx.Row) (*api.Expense, error) {
	var (
		exp   api.Expense
		image []byte
	)
	err := row.Scan(&exp.ID, &exp.UserID, &exp.Number, &exp.Item, &exp.Price,
		&exp.Currency, &exp.Date, &image, &exp.CreatedAt, &exp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(image) > 0 {
		exp.Image = &api.ImageRef{}
		if err := json.Unmarshal(image, exp.Image); err != nil {
			return nil, fmt.Errorf("decoding image ref: %w", err)
		}
	}
	return &exp, nil
}

func encodeImage(ref *api.ImageRef) ([]byte, error) {
	if ref == nil {
		return nil, nil
	}
	b, err := json.Marshal(ref)
	if err != nil {
		return nil, fmt.Errorf("encoding image ref: %w", err)
	}
	return b, nil
}

// ExpenseByNumber returns the expense or (nil, nil) when absent.
func (s *Store) ExpenseByNumber(ctx context.Context, userID string, number int) (*api.Expense, error) {
	exp, err := scanExpense(s.pool.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = $1 AND number = $2`,
		userID, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying expense: %w", err)
	}
	return exp, nil
}

// LatestExpense returns the most recently created expense or (nil, nil).
func (s *Store) LatestExpense(ctx context.Context, userID string) (*api.Expense, error) {
	exp, err := scanExpense(s.pool.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = $1 ORDER BY number DESC LIMIT 1`,
		userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest expense: %w", err)
	}
	return exp, nil
}

// UpdateExpense rewrites the mutable fields of an existing expense.
func (s *Store) UpdateExpense(ctx context.Context, exp *api.Expense) error {
	image, err := encodeImage(exp.Image)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE expenses
		SET item = $3, price = $4, currency = $5, image = $6, updated_at = NOW()
		WHERE user_id = $1 AND number = $2
	`, exp.UserID, exp.Number, exp.Item, exp.Price, exp.Currency, image)
	if err != nil {
		return fmt.Errorf("updating expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("expense #%d for user %s not found", exp.Number, exp.UserID)
	}
	return nil
}

// DeleteExpense removes the expense and reports whether it existed. The
// sequence counter is untouched, so the number is never reused.
func (s *Store) DeleteExpense(ctx context.Context, userID string, number int) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM expenses WHERE user_id = $1 AND number = $2`, userID, number)
	if err != nil {
		return false, fmt.Errorf("deleting expense: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]api.Expense, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying expenses: %w", err)
	}
	defer rows.Close()

	var out []api.Expense
	for rows.Next() {
		exp, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning expense: %w", err)
		}
		out = append(out, *exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading expenses: %w", err)
	}
	return out, nil
}

// ExpensesForMonth returns the user's expenses whose date falls in the
// given YYYY-MM month, ordered by number.
func (s *Store) ExpensesForMonth(ctx context.Context, userID, month string) ([]api.Expense, error) {
	return s.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE user_id = $1 AND to_char(expense_date, 'YYYY-MM') = $2
		 ORDER BY number`,
		userID, month)
}

// ExpensesForDate returns the user's expenses for one YYYY-MM-DD day.
func (s *Store) ExpensesForDate(ctx context.Context, userID, date string) ([]api.Expense, error) {
	return s.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE user_id = $1 AND expense_date = $2
		 ORDER BY number`,
		userID, date)
}

// AllExpenses returns the user's full history ordered by number.
func (s *Store) AllExpenses(ctx context.Context, userID string) ([]api.Expense, error) {
	return s.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = $1 ORDER BY number`,
		userID)
}

// SetBudget upserts the budget for one user-month.
func (s *Store) SetBudget(ctx context.Context, b *api.MonthlyBudget) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO monthly_budgets (user_id, month, amount, currency)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, month) DO UPDATE SET
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency
	`, b.UserID, b.Month, b.Amount, b.Currency)
	if err != nil {
		return fmt.Errorf("upserting budget: %w", err)
	}
	return nil
}

// Budget returns the budget for the user-month or (nil, nil).
func (s *Store) Budget(ctx context.Context, userID, month string) (*api.MonthlyBudget, error) {
	var b api.MonthlyBudget
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, month, amount, currency FROM monthly_budgets WHERE user_id = $1 AND month = $2`,
		userID, month,
	).Scan(&b.UserID, &b.Month, &b.Amount, &b.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying budget: %w", err)
	}
	return &b, nil
}

// LogMessage appends one inbound message to the conversation log.
func (s *Store) LogMessage(ctx context.Context, userID, body string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_log (user_id, body) VALUES ($1, $2)`, userID, body)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}
	return nil
}
