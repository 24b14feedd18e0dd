// Package csv renders a user's expense history as a CSV document that
// the bot sends back as a WhatsApp attachment.
package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/hisabi-bot/hisabi/pkg/api"
	"github.com/hisabi-bot/hisabi/pkg/engine"
)

// Exporter implements engine.Exporter by building the file in memory.
type Exporter struct{}

func New() *Exporter {
	return &Exporter{}
}

// Export renders all expenses, oldest first, as a CSV attachment.
func (e *Exporter) Export(ctx context.Context, user *api.User, expenses []api.Expense) (*engine.ExportResult, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	headers := []string{"Number", "Date", "Item", "Price", "Currency", "Receipt"}
	if err := w.Write(headers); err != nil {
		return nil, fmt.Errorf("writing csv headers: %w", err)
	}

	for _, exp := range expenses {
		receipt := ""
		if exp.Image != nil {
			receipt = exp.Image.URL
		}
		record := []string{
			strconv.Itoa(exp.Number),
			exp.Date,
			exp.Item,
			strconv.FormatFloat(exp.Price, 'f', 2, 64),
			exp.Currency,
			receipt,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("writing csv record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}

	return &engine.ExportResult{
		Document: buf.Bytes(),
		Filename: "expenses.csv",
		MimeType: "text/csv",
	}, nil
}
