package currency

import (
	"testing"
	"time"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"exact code lowercase", "bdt", "BDT"},
		{"exact code uppercase", "BDT", "BDT"},
		{"exact colloquial", "taka", "BDT"},
		{"colloquial in sentence", "I spend in taka mostly", "BDT"},
		{"plural dollars", "dollars please", "USD"},
		{"symbol", "around $50 a week", "USD"},
		{"bengali symbol", "৳2000", "BDT"},
		{"uppercase token", "switch to SGD", "SGD"},
		{"unknown uppercase token", "switch to XXX", ""},
		{"nothing", "hello there", ""},
		{"empty", "", ""},
		// Word boundaries: alphabetic aliases never match inside words.
		{"dinner is not INR", "dinner 300", ""},
		{"random is not ZAR", "random stuff", ""},
		{"wonderful is not KRW", "wonderful day", ""},
		// Registration order breaks ties.
		{"colloquial beats later alias", "taka or dollar", "BDT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.text); got != tt.want {
				t.Errorf("Detect(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsKnownCode(t *testing.T) {
	if !IsKnownCode("bdt") {
		t.Error("IsKnownCode should be case-insensitive")
	}
	if IsKnownCode("XXX") {
		t.Error("XXX should not be a known code")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		amount float64
		code   string
		want   string
	}{
		{120, "BDT", "৳120.00"},
		{2000, "USD", "$2,000.00"},
		{12.5, "EUR", "€12.50"},
		{99.999, "GBP", "£100.00"},
		{450, "THB", "450.00 THB"},
		{450, "thb", "450.00 THB"},
	}
	for _, tt := range tests {
		if got := Format(tt.amount, tt.code); got != tt.want {
			t.Errorf("Format(%v, %q) = %q, want %q", tt.amount, tt.code, got, tt.want)
		}
	}
}

func TestRoundCents(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.005, 1.0}, // 1.005 is stored below 1.005 in binary
		{1.015, 1.01},
		{12.344, 12.34},
		{12.346, 12.35},
		{-0.555, -0.55},
	}
	for _, tt := range tests {
		if got := RoundCents(tt.in); got != tt.want {
			t.Errorf("RoundCents(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDaysInMonth(t *testing.T) {
	tests := []struct {
		date string
		want int
	}{
		{"2026-01-15", 31},
		{"2026-02-10", 28},
		{"2028-02-10", 29}, // leap year
		{"2026-04-01", 30},
		{"2026-12-31", 31},
	}
	for _, tt := range tests {
		d, err := time.Parse("2006-01-02", tt.date)
		if err != nil {
			t.Fatal(err)
		}
		if got := DaysInMonth(d); got != tt.want {
			t.Errorf("DaysInMonth(%s) = %d, want %d", tt.date, got, tt.want)
		}
	}
}

func TestDailyLimits(t *testing.T) {
	june15 := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

	if got := DailyLimit(3000, june15); got != 100 {
		t.Errorf("DailyLimit(3000, June) = %v, want 100", got)
	}

	// 16 days left including today: 15th through 30th.
	if got := DynamicDailyLimit(1600, june15); got != 100 {
		t.Errorf("DynamicDailyLimit(1600, June 15) = %v, want 100", got)
	}

	lastDay := time.Date(2026, time.June, 30, 12, 0, 0, 0, time.UTC)
	if got := DynamicDailyLimit(50, lastDay); got != 50 {
		t.Errorf("DynamicDailyLimit(50, June 30) = %v, want 50", got)
	}

	// Negative remainder spreads a negative guideline; callers render the
	// over-budget warning from the sign.
	if got := DynamicDailyLimit(-160, june15); got != -10 {
		t.Errorf("DynamicDailyLimit(-160, June 15) = %v, want -10", got)
	}
}
