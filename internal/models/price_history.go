package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayLayout is the format of the Day bucket on history rows
const DayLayout = "2006-01-02"

// CardPriceHistory stores at most one price per card per calendar day.
// Day is the calendar date in the tracker's reference timezone.
type CardPriceHistory struct {
	ID         uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	CardID     string          `json:"card_id" gorm:"not null;uniqueIndex:idx_card_price_day"`
	Day        string          `json:"day" gorm:"not null;uniqueIndex:idx_card_price_day"`
	Price      decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	RecordedAt time.Time       `json:"recorded_at" gorm:"not null"`
}

// PortfolioValueHistory stores at most one total value per user per calendar day
type PortfolioValueHistory struct {
	ID         uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID     string          `json:"user_id" gorm:"not null;uniqueIndex:idx_portfolio_value_day"`
	Day        string          `json:"day" gorm:"not null;uniqueIndex:idx_portfolio_value_day"`
	TotalValue decimal.Decimal `json:"total_value" gorm:"type:decimal(12,2);not null"`
	RecordedAt time.Time       `json:"recorded_at" gorm:"not null"`
}

// ValueHistoryResponse is the API response for portfolio value history
type ValueHistoryResponse struct {
	Snapshots []PortfolioValueHistory `json:"snapshots"`
	Period    string                  `json:"period"` // "week", "month", "3month", "year", "all"
}

// PriceHistoryResponse is the API response for a card's price history
type PriceHistoryResponse struct {
	CardID string             `json:"card_id"`
	Prices []CardPriceHistory `json:"prices"`
	Period string             `json:"period"`
}

// DayKey returns the calendar day of t in loc. Two instants on either side of
// midnight in loc land in different buckets regardless of the host timezone.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

// PeriodStart maps a history period name to the earliest time to include.
// "all" returns the zero time. Unknown values default to one month.
func PeriodStart(period string, now time.Time) time.Time {
	switch period {
	case "week":
		return now.AddDate(0, 0, -7)
	case "month":
		return now.AddDate(0, -1, 0)
	case "3month":
		return now.AddDate(0, -3, 0)
	case "year":
		return now.AddDate(-1, 0, 0)
	case "all":
		return time.Time{}
	default:
		return now.AddDate(0, -1, 0)
	}
}
