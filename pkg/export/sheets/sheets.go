// Package sheets exports a user's expense history to a Google
// spreadsheet and replies with its link.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/hisabi-bot/hisabi/pkg/api"
	"github.com/hisabi-bot/hisabi/pkg/engine"
)

// Scopes returns the OAuth scopes the exporter needs.
func Scopes() []string {
	return []string{sheets.SpreadsheetsScope}
}

type Config struct {
	// SpreadsheetID is an existing spreadsheet to use. Empty means a new
	// one is created on first export, titled Title.
	SpreadsheetID string
	// Title is used when creating a new spreadsheet.
	Title string
	// SheetName is the tab rows are written to.
	SheetName string
}

// Exporter implements engine.Exporter against the Sheets API.
type Exporter struct {
	svc    *sheets.Service
	cfg    Config
	logger *slog.Logger

	spreadsheetID string
}

func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Exporter, error) {
	if cfg.SheetName == "" {
		cfg.SheetName = "Expenses"
	}
	if cfg.Title == "" {
		cfg.Title = "Hisabi Expenses"
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc, err := sheets.NewService(context.Background(), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &Exporter{
		svc:           svc,
		cfg:           cfg,
		logger:        logger,
		spreadsheetID: cfg.SpreadsheetID,
	}, nil
}

// Export rewrites the sheet with the full expense history and returns a
// link to the spreadsheet.
func (e *Exporter) Export(ctx context.Context, user *api.User, expenses []api.Expense) (*engine.ExportResult, error) {
	id, err := e.ensureSpreadsheet(ctx)
	if err != nil {
		return nil, err
	}

	values := make([][]any, 0, len(expenses)+1)
	values = append(values, []any{"Number", "Date", "Item", "Price", "Currency", "Receipt"})
	for _, exp := range expenses {
		receipt := ""
		if exp.Image != nil {
			receipt = exp.Image.URL
		}
		values = append(values, []any{exp.Number, exp.Date, exp.Item, exp.Price, exp.Currency, receipt})
	}

	clearRange := fmt.Sprintf("%s!A:F", e.cfg.SheetName)
	writeRange := fmt.Sprintf("%s!A1", e.cfg.SheetName)

	err = retry.Do(
		func() error {
			if _, err := e.svc.Spreadsheets.Values.Clear(id, clearRange, &sheets.ClearValuesRequest{}).
				Context(ctx).Do(); err != nil {
				return fmt.Errorf("clearing sheet: %w", err)
			}
			_, err := e.svc.Spreadsheets.Values.Update(id, writeRange, &sheets.ValueRange{Values: values}).
				ValueInputOption("USER_ENTERED").
				Context(ctx).
				Do()
			return err
		},
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				e.logger.Warn("rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(3),
		retry.Delay(60*time.Second),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("writing expenses to sheet: %w", err)
	}

	e.logger.Info("exported expenses", "user_id", user.ID, "count", len(expenses), "spreadsheet_id", id)
	return &engine.ExportResult{
		Link: "https://docs.google.com/spreadsheets/d/" + id,
	}, nil
}

func (e *Exporter) ensureSpreadsheet(ctx context.Context) (string, error) {
	if e.spreadsheetID != "" {
		return e.spreadsheetID, nil
	}

	spreadsheet, err := e.svc.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: e.cfg.Title},
		Sheets: []*sheets.Sheet{
			{Properties: &sheets.SheetProperties{Title: e.cfg.SheetName}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating spreadsheet: %w", err)
	}

	e.spreadsheetID = spreadsheet.SpreadsheetId
	e.logger.Info("created export spreadsheet", "title", e.cfg.Title, "id", e.spreadsheetID)
	return e.spreadsheetID, nil
}
