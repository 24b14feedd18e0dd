// Package memory provides an in-memory Store used by tests and dev runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hisabi-bot/hisabi/pkg/api"
)

// Store keeps everything in maps guarded by one mutex. All reads return
// copies so callers cannot mutate stored state through aliases.
type Store struct {
	mu        sync.Mutex
	users     map[string]api.User
	sequences map[string]int
	expenses  map[string][]api.Expense // per user, creation order
	budgets   map[string]api.MonthlyBudget
	log       []logEntry
	nextID    int
}

type logEntry struct {
	userID string
	body   string
	at     time.Time
}

func New() *Store {
	return &Store{
		users:     make(map[string]api.User),
		sequences: make(map[string]int),
		expenses:  make(map[string][]api.Expense),
		budgets:   make(map[string]api.MonthlyBudget),
	}
}

func (s *Store) User(ctx context.Context, userID string) (*api.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	copied := u
	copied.Pending = clonePending(u.Pending)
	return &copied, nil
}

func (s *Store) SaveUser(ctx context.Context, user *api.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *user
	stored.Pending = clonePending(user.Pending)
	now := time.Now()
	if existing, ok := s.users[user.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.users[user.ID] = stored
	return nil
}

func (s *Store) NextNumber(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sequences[userID]++
	return s.sequences[userID], nil
}

func (s *Store) CreateExpense(ctx context.Context, exp *api.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *exp
	if stored.ID == "" {
		s.nextID++
		stored.ID = fmt.Sprintf("mem-%d", s.nextID)
	}
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if exp.Image != nil {
		img := *exp.Image
		stored.Image = &img
	}
	s.expenses[exp.UserID] = append(s.expenses[exp.UserID], stored)

	exp.ID = stored.ID
	exp.CreatedAt = stored.CreatedAt
	exp.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *Store) ExpenseByNumber(ctx context.Context, userID string, number int) (*api.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.expenses[userID] {
		if s.expenses[userID][i].Number == number {
			return cloneExpense(s.expenses[userID][i]), nil
		}
	}
	return nil, nil
}

func (s *Store) LatestExpense(ctx context.Context, userID string) (*api.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.expenses[userID]
	if len(list) == 0 {
		return nil, nil
	}
	return cloneExpense(list[len(list)-1]), nil
}

func (s *Store) UpdateExpense(ctx context.Context, exp *api.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.expenses[exp.UserID]
	for i := range list {
		if list[i].Number == exp.Number {
			updated := *exp
			updated.CreatedAt = list[i].CreatedAt
			updated.UpdatedAt = time.Now()
			if exp.Image != nil {
				img := *exp.Image
				updated.Image = &img
			}
			list[i] = updated
			return nil
		}
	}
	return fmt.Errorf("expense #%d for user %s not found", exp.Number, exp.UserID)
}

func (s *Store) DeleteExpense(ctx context.Context, userID string, number int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.expenses[userID]
	for i := range list {
		if list[i].Number == number {
			s.expenses[userID] = append(list[:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ExpensesForMonth(ctx context.Context, userID, month string) ([]api.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []api.Expense
	for _, exp := range s.expenses[userID] {
		if strings.HasPrefix(exp.Date, month) {
			out = append(out, *cloneExpense(exp))
		}
	}
	return out, nil
}

func (s *Store) ExpensesForDate(ctx context.Context, userID, date string) ([]api.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []api.Expense
	for _, exp := range s.expenses[userID] {
		if exp.Date == date {
			out = append(out, *cloneExpense(exp))
		}
	}
	return out, nil
}

func (s *Store) AllExpenses(ctx context.Context, userID string) ([]api.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]api.Expense, 0, len(s.expenses[userID]))
	for _, exp := range s.expenses[userID] {
		out = append(out, *cloneExpense(exp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *Store) SetBudget(ctx context.Context, b *api.MonthlyBudget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.budgets[b.UserID+"/"+b.Month] = *b
	return nil
}

func (s *Store) Budget(ctx context.Context, userID, month string) (*api.MonthlyBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.budgets[userID+"/"+month]
	if !ok {
		return nil, nil
	}
	copied := b
	return &copied, nil
}

func (s *Store) LogMessage(ctx context.Context, userID, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = append(s.log, logEntry{userID: userID, body: body, at: time.Now()})
	return nil
}

func cloneExpense(exp api.Expense) *api.Expense {
	copied := exp
	if exp.Image != nil {
		img := *exp.Image
		copied.Image = &img
	}
	return &copied
}

func clonePending(p api.PendingAction) api.PendingAction {
	copied := p
	if p.Draft != nil {
		draft := *p.Draft
		if p.Draft.Image != nil {
			img := *p.Draft.Image
			draft.Image = &img
		}
		copied.Draft = &draft
	}
	return copied
}
