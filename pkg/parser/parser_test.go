package parser

import (
	"strconv"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantNil  bool
		item     string
		price    float64
		currency string
	}{
		{
			name:  "item then amount",
			text:  "Coffee 120",
			item:  "Coffee",
			price: 120,
		},
		{
			name:  "amount then item",
			text:  "120 for coffee",
			item:  "for coffee",
			price: 120,
		},
		{
			name:  "last number wins",
			text:  "2 coffees 240",
			item:  "2 coffees",
			price: 240,
		},
		{
			name:  "decimal point",
			text:  "Lunch 12.50",
			item:  "Lunch",
			price: 12.50,
		},
		{
			name:  "decimal comma",
			text:  "Lunch 12,50",
			item:  "Lunch",
			price: 12.50,
		},
		{
			name:  "whitespace collapsed",
			text:  "  late   night  snacks   75 ",
			item:  "late night snacks",
			price: 75,
		},
		{
			name:     "currency word detected",
			text:     "Coffee 120 taka",
			item:     "Coffee",
			price:    120,
			currency: "BDT",
		},
		{
			name:     "currency code detected",
			text:     "Taxi 30 USD",
			item:     "Taxi",
			price:    30,
			currency: "USD",
		},
		{
			name:    "no number",
			text:    "just words here",
			wantNil: true,
		},
		{
			name:    "empty",
			text:    "",
			wantNil: true,
		},
		{
			name:    "whitespace only",
			text:    "   ",
			wantNil: true,
		},
		{
			name:  "bare number has empty item",
			text:  "120",
			item:  "",
			price: 120,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("Parse(%q) = %+v, want nil", tt.text, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("Parse(%q) = nil, want candidate", tt.text)
			}
			if got.Item != tt.item {
				t.Errorf("Item = %q, want %q", got.Item, tt.item)
			}
			if got.Price != tt.price {
				t.Errorf("Price = %v, want %v", got.Price, tt.price)
			}
			if got.Currency != tt.currency {
				t.Errorf("Currency = %q, want %q", got.Currency, tt.currency)
			}
		})
	}
}

// A parsed candidate rendered back as "<item> <price>" must parse to the
// same item and price. This is what makes the "no it will be <new entry>"
// correction loop stable.
func TestParseIdempotent(t *testing.T) {
	inputs := []string{
		"Coffee 120",
		"Lunch 12.50",
		"groceries and household 540",
	}
	for _, text := range inputs {
		first := Parse(text)
		if first == nil {
			t.Fatalf("Parse(%q) = nil", text)
		}
		rendered := first.Item + " " + strconv.FormatFloat(first.Price, 'f', -1, 64)
		second := Parse(rendered)
		if second == nil {
			t.Fatalf("Parse(%q) = nil on second pass", rendered)
		}
		if second.Item != first.Item || second.Price != first.Price {
			t.Errorf("reparse of %q changed candidate: %+v -> %+v", text, first, second)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"2000", 2000, true},
		{" 2000 ", 2000, true},
		{"99.50", 99.50, true},
		{"99,50", 99.50, true},
		{"budget 2000", 0, false},
		{"2000 taka", 0, false},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.text)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseAmount(%q) = (%v, %v), want (%v, %v)", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}
