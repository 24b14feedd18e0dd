// Package parser turns free-form expense text into a candidate expense.
//
// The algorithm is a deliberate heuristic, not a grammar: the last numeric
// token in the message is the price and the text around it is the item name.
// Natural phrasing varies ("Coffee 120", "120 for coffee") and this rule is
// a cheap, explainable approximation that the LLM extractor can corroborate.
package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/hisabi-bot/hisabi/pkg/currency"
)

// Candidate is a parsed expense before currency stamping and persistence.
// Currency is empty when the text carried no recognizable currency mention;
// the caller substitutes the user's stored preference.
type Candidate struct {
	Item     string
	Price    float64
	Currency string
}

var (
	numberRe     = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Parse extracts a candidate expense from text, or nil when the text is
// empty, carries no numeric token, or the token does not parse as a finite
// number. The price is the last numeric token; the item name is everything
// before it, or after it when the number leads.
func Parse(text string) *Candidate {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	locs := numberRe.FindAllStringIndex(trimmed, -1)
	if locs == nil {
		return nil
	}
	last := locs[len(locs)-1]

	raw := strings.ReplaceAll(trimmed[last[0]:last[1]], ",", ".")
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil
	}

	item := collapse(trimmed[:last[0]])
	if item == "" {
		item = collapse(trimmed[last[1]:])
	}

	return &Candidate{
		Item:     item,
		Price:    price,
		Currency: currency.Detect(text),
	}
}

// ParseAmount interprets text as a bare number ("2000", "99.50", "99,50").
func ParseAmount(text string) (float64, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || numberRe.FindString(trimmed) != trimmed {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(trimmed, ",", "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
