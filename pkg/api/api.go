// Package api defines the core data structures and collaborator interfaces for hisabi.
package api

import (
	"context"
	"time"
)

// State is a user's position in the conversation flow. Onboarding walks
// new -> awaiting_currency -> awaiting_budget -> active; the awaiting_*
// sub-states below active always resolve back to active.
type State string

const (
	StateNew                    State = "new"
	StateAwaitingCurrency       State = "awaiting_currency"
	StateAwaitingBudget         State = "awaiting_budget"
	StateActive                 State = "active"
	StateAwaitingOCRConfirm     State = "awaiting_ocr_confirmation"
	StateAwaitingCurrencyChange State = "awaiting_currency_change"
)

// PendingKind tags the variant held in a PendingAction.
type PendingKind int

const (
	PendingNone PendingKind = iota
	PendingOCRConfirmation
	PendingCurrencyChange
)

// PendingAction is the tagged union of cross-message state a user can carry.
// Exactly one variant is populated: Draft when Kind is PendingOCRConfirmation,
// Currency when Kind is PendingCurrencyChange.
type PendingAction struct {
	Kind     PendingKind   `json:"kind"`
	Draft    *ExpenseDraft `json:"draft,omitempty"`
	Currency string        `json:"currency,omitempty"`
}

// ExpenseDraft is a not-yet-committed expense awaiting user confirmation.
type ExpenseDraft struct {
	Item       string  `json:"item"`
	Price      float64 `json:"price"`
	Currency   string  `json:"currency,omitempty"`
	Confidence float64 `json:"confidence"`
	// NeedsAmount marks a draft parked with a caption-derived item name but
	// no usable price; the next message must supply the amount.
	NeedsAmount bool      `json:"needs_amount,omitempty"`
	Image       *ImageRef `json:"image,omitempty"`
}

// ImageRef points at a hosted receipt photo.
type ImageRef struct {
	Provider string `json:"provider"`
	Ref      string `json:"ref"`
	URL      string `json:"url,omitempty"`
}

// User is the per-user profile and conversation state. Created lazily on
// first inbound message, never destroyed.
type User struct {
	ID        string
	State     State
	Currency  string
	Pending   PendingAction
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expense is a persisted expense record. Number is the per-user sequential
// display id: assigned once at creation, never reused after deletion.
type Expense struct {
	ID        string
	UserID    string
	Number    int
	Item      string
	Price     float64
	Currency  string
	Date      string // YYYY-MM-DD
	Image     *ImageRef
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MonthlyBudget is one budget per user per calendar month.
type MonthlyBudget struct {
	UserID   string
	Month    string // YYYY-MM
	Amount   float64
	Currency string
}

// MonthlySummary aggregates a user's spend for one calendar month.
type MonthlySummary struct {
	Month    time.Month
	Year     int
	Total    float64
	Currency string
	Count    int
}

// MediaPayload is a downloaded message attachment.
type MediaPayload struct {
	MimeType string
	Data     []byte
	Filename string
}

// InboundMessage is one message received from the channel. DownloadMedia is
// non-nil only when HasMedia is set.
type InboundMessage struct {
	ID            string
	From          string
	Body          string
	HasMedia      bool
	DownloadMedia func(ctx context.Context) (*MediaPayload, error)
}

// Extraction is a best-effort structured expense produced by the extraction
// collaborator. Confidence is in [0,1] and must not be trusted blindly.
type Extraction struct {
	Item       string  `json:"item"`
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`
	Confidence float64 `json:"confidence"`
}

// Store is the persistence boundary. Implementations must make NextNumber an
// atomic increment-and-return and SaveUser/SetBudget upserts, so concurrent
// deliveries for the same user cannot lose updates.
//
// Lookup methods return (nil, nil) when the entity does not exist.
type Store interface {
	User(ctx context.Context, userID string) (*User, error)
	SaveUser(ctx context.Context, user *User) error

	NextNumber(ctx context.Context, userID string) (int, error)
	CreateExpense(ctx context.Context, exp *Expense) error
	ExpenseByNumber(ctx context.Context, userID string, number int) (*Expense, error)
	// LatestExpense returns the most recently created record, which is the
	// target of the correct-last operation.
	LatestExpense(ctx context.Context, userID string) (*Expense, error)
	UpdateExpense(ctx context.Context, exp *Expense) error
	DeleteExpense(ctx context.Context, userID string, number int) (bool, error)
	ExpensesForMonth(ctx context.Context, userID, month string) ([]Expense, error)
	ExpensesForDate(ctx context.Context, userID, date string) ([]Expense, error)
	AllExpenses(ctx context.Context, userID string) ([]Expense, error)

	SetBudget(ctx context.Context, b *MonthlyBudget) error
	Budget(ctx context.Context, userID, month string) (*MonthlyBudget, error)

	LogMessage(ctx context.Context, userID, body string) error
}

// Channel sends outbound messages to a user.
type Channel interface {
	SendText(ctx context.Context, to, text string) error
	SendDocument(ctx context.Context, to, filename, mimeType string, data []byte) error
}

// Extractor is the natural-language/OCR extraction collaborator. Results
// are unreliable by contract; callers gate on Confidence.
type Extractor interface {
	FromText(ctx context.Context, text string) (*Extraction, error)
	FromImage(ctx context.Context, imageDataURL, caption string) (*Extraction, error)
}

// ImageHost stores receipt photos and returns an addressable reference.
type ImageHost interface {
	Upload(ctx context.Context, data []byte, mimeType, filename, userID string) (*ImageRef, error)
	Delete(ctx context.Context, ref *ImageRef) error
}
