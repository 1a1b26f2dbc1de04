package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPriceVariantPriority(t *testing.T) {
	expected := []PriceVariant{
		VariantHolofoil,
		Variant1stEditionHolofoil,
		VariantUnlimitedHolofoil,
		VariantReverseHolofoil,
		VariantNormal,
	}

	got := PriceVariantPriority()
	if len(got) != len(expected) {
		t.Fatalf("PriceVariantPriority() returned %d variants, want %d", len(got), len(expected))
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("PriceVariantPriority()[%d] = %s, want %s", i, got[i], expected[i])
		}
	}
}

func TestDayKey(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data not available: %v", err)
	}

	tests := []struct {
		name     string
		instant  time.Time
		expected string
	}{
		// 03:00 UTC on Jun 11 is 23:00 EDT on Jun 10
		{"late evening stays on local day", time.Date(2024, 6, 11, 3, 0, 0, 0, time.UTC), "2024-06-10"},
		{"after local midnight is next day", time.Date(2024, 6, 11, 5, 0, 0, 0, time.UTC), "2024-06-11"},
		{"local noon", time.Date(2024, 6, 11, 16, 0, 0, 0, time.UTC), "2024-06-11"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DayKey(tt.instant, ny); got != tt.expected {
				t.Errorf("DayKey(%s) = %s, want %s", tt.instant, got, tt.expected)
			}
		})
	}

	// 11pm and 1am local are different days even though both are the same UTC day
	elevenPM := time.Date(2024, 1, 15, 23, 0, 0, 0, ny)
	oneAM := time.Date(2024, 1, 16, 1, 0, 0, 0, ny)
	if DayKey(elevenPM, ny) == DayKey(oneAM, ny) {
		t.Error("11pm and 1am local time should fall on different days")
	}
}

func TestDayKeyNilLocationUsesUTC(t *testing.T) {
	instant := time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC)
	if got := DayKey(instant, nil); got != "2024-01-15" {
		t.Errorf("DayKey(nil loc) = %s, want 2024-01-15", got)
	}
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		period   string
		expected time.Time
	}{
		{"week", time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC)},
		{"month", time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)},
		{"3month", time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)},
		{"year", time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)},
		{"all", time.Time{}},
		{"bogus", time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			if got := PeriodStart(tt.period, now); !got.Equal(tt.expected) {
				t.Errorf("PeriodStart(%q) = %s, want %s", tt.period, got, tt.expected)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	holdings := []PortfolioCard{
		{CardID: "a", Quantity: 2, CurrentPrice: decimal.NewFromInt(10), PurchasePrice: decimal.NewFromInt(5)},
		{CardID: "b", Quantity: 3, CurrentPrice: decimal.NewFromInt(20), PurchasePrice: decimal.NewFromInt(25)},
		{CardID: "a", Quantity: 1, CurrentPrice: decimal.NewFromInt(10), PurchasePrice: decimal.NewFromInt(8)},
	}

	summary := Summarize(holdings)

	if summary.TotalCards != 6 {
		t.Errorf("TotalCards = %d, want 6", summary.TotalCards)
	}
	if summary.UniqueCards != 2 {
		t.Errorf("UniqueCards = %d, want 2", summary.UniqueCards)
	}
	if !summary.TotalValue.Equal(decimal.NewFromInt(90)) {
		t.Errorf("TotalValue = %s, want 90", summary.TotalValue)
	}
	if !summary.TotalCost.Equal(decimal.NewFromInt(93)) {
		t.Errorf("TotalCost = %s, want 93", summary.TotalCost)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalCards != 0 || summary.UniqueCards != 0 {
		t.Errorf("expected empty summary, got %+v", summary)
	}
	if !summary.TotalValue.IsZero() {
		t.Errorf("TotalValue = %s, want 0", summary.TotalValue)
	}
}
