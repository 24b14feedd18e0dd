// Package currency resolves natural-language currency mentions to ISO 4217
// codes and owns the budget-derived daily-limit arithmetic.
package currency

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type alias struct {
	name string
	code string
}

// aliases is scanned in registration order and the first match wins, so the
// order below is part of the contract: colloquial names and symbols first,
// grouped by currency, then the bare ISO codes. Changing the order changes
// substring-match results.
var aliases = []alias{
	{"taka", "BDT"},
	{"poysha", "BDT"},
	{"৳", "BDT"},
	{"dollars", "USD"},
	{"dollar", "USD"},
	{"bucks", "USD"},
	{"buck", "USD"},
	{"$", "USD"},
	{"euros", "EUR"},
	{"euro", "EUR"},
	{"€", "EUR"},
	{"pounds", "GBP"},
	{"pound", "GBP"},
	{"sterling", "GBP"},
	{"quid", "GBP"},
	{"£", "GBP"},
	{"rupees", "INR"},
	{"rupee", "INR"},
	{"₹", "INR"},
	{"yen", "JPY"},
	{"¥", "JPY"},
	{"ringgit", "MYR"},
	{"riyal", "SAR"},
	{"dirham", "AED"},
	{"rupiah", "IDR"},
	{"peso", "PHP"},
	{"baht", "THB"},
	{"lira", "TRY"},
	{"won", "KRW"},
	{"yuan", "CNY"},
	{"rmb", "CNY"},
	{"franc", "CHF"},
	{"krona", "SEK"},
	{"rand", "ZAR"},
	{"real", "BRL"},
	{"ruble", "RUB"},
	{"bdt", "BDT"},
	{"usd", "USD"},
	{"eur", "EUR"},
	{"gbp", "GBP"},
	{"inr", "INR"},
	{"jpy", "JPY"},
	{"myr", "MYR"},
	{"sar", "SAR"},
	{"aed", "AED"},
	{"idr", "IDR"},
	{"php", "PHP"},
	{"thb", "THB"},
	{"try", "TRY"},
	{"krw", "KRW"},
	{"cny", "CNY"},
	{"chf", "CHF"},
	{"sek", "SEK"},
	{"zar", "ZAR"},
	{"brl", "BRL"},
	{"rub", "RUB"},
	{"cad", "CAD"},
	{"aud", "AUD"},
	{"sgd", "SGD"},
	{"nzd", "NZD"},
	{"pkr", "PKR"},
	{"lkr", "LKR"},
	{"npr", "NPR"},
	{"ngn", "NGN"},
	{"kes", "KES"},
	{"egp", "EGP"},
	{"mxn", "MXN"},
}

var knownCodes = func() map[string]struct{} {
	codes := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		codes[a.code] = struct{}{}
	}
	return codes
}()

// symbols covers the small subset rendered with a symbol prefix; everything
// else formats as "<amount> <code>".
var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"BDT": "৳",
	"INR": "₹",
	"JPY": "¥",
}

var (
	upperCodeRe = regexp.MustCompile(`\b[A-Z]{3}\b`)
	printer     = message.NewPrinter(language.English)
)

// IsKnownCode reports whether code is a recognized ISO 4217 code.
func IsKnownCode(code string) bool {
	_, ok := knownCodes[strings.ToUpper(code)]
	return ok
}

// Detect maps a currency mention anywhere in text to its ISO code, or ""
// when nothing matches. Policy, in order: exact match of the whole trimmed
// string against the alias table; first alias appearing in the text
// (registration order breaks ties, ISO-code aliases must appear as a whole
// word); a bare three-uppercase-letter token that is itself a known code.
func Detect(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return ""
	}

	for _, a := range aliases {
		if normalized == a.name {
			return a.code
		}
	}

	for _, a := range aliases {
		if isAlpha(a.name) {
			if containsWord(normalized, a.name) {
				return a.code
			}
			continue
		}
		if strings.Contains(normalized, a.name) {
			return a.code
		}
	}

	for _, tok := range upperCodeRe.FindAllString(strings.TrimSpace(text), -1) {
		if IsKnownCode(tok) {
			return tok
		}
	}

	return ""
}

// isAlpha reports whether the alias is plain ASCII letters. Alphabetic
// aliases get word-boundary matching so "dinner" does not resolve to INR
// and "random" does not resolve to ZAR; symbol aliases match anywhere.
func isAlpha(name string) bool {
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b < 'a' || b > 'z' {
			return false
		}
	}
	return true
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// Format renders an amount with its currency symbol when one is known,
// otherwise as "<amount> <code>". Amounts get locale-style grouping.
func Format(amount float64, code string) string {
	code = strings.ToUpper(code)
	rendered := printer.Sprintf("%.2f", amount)
	if sym, ok := symbols[code]; ok {
		return sym + rendered
	}
	return fmt.Sprintf("%s %s", rendered, code)
}

// RoundCents rounds to two decimal places.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// DaysInMonth returns the number of calendar days in t's month.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// DailyLimit is the static guideline: monthly budget spread evenly over the
// whole month, rounded to cents.
func DailyLimit(monthlyBudget float64, now time.Time) float64 {
	return RoundCents(monthlyBudget / float64(DaysInMonth(now)))
}

// DynamicDailyLimit spreads the remaining budget over the days left in the
// month, today included. Returns 0 when no days remain.
func DynamicDailyLimit(remaining float64, now time.Time) float64 {
	daysLeft := DaysInMonth(now) - now.Day() + 1
	if daysLeft <= 0 {
		return 0
	}
	return RoundCents(remaining / float64(daysLeft))
}
