package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuantity is the largest quantity accepted for a single holding
const MaxQuantity = 9999

// PortfolioHolding is a user's record of owning Quantity copies of a card.
type PortfolioHolding struct {
	ID            uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID        string          `json:"user_id" gorm:"not null;index"`
	CardID        string          `json:"card_id" gorm:"not null;index"`
	Card          Card            `json:"-" gorm:"foreignKey:CardID"`
	Quantity      int             `json:"quantity" gorm:"not null;default:1"`
	PurchasePrice decimal.Decimal `json:"purchase_price" gorm:"type:decimal(10,2);not null;default:0"`
	CurrentPrice  decimal.Decimal `json:"current_price" gorm:"type:decimal(10,2);not null;default:0"`
	AddedAt       time.Time       `json:"added_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PortfolioCard is a holding joined with the cached card it references
type PortfolioCard struct {
	ID            uint            `json:"id"`
	UserID        string          `json:"user_id"`
	CardID        string          `json:"card_id"`
	Quantity      int             `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	AddedAt       time.Time       `json:"added_at"`
	Name          string          `json:"name"`
	SetName       string          `json:"set_name"`
	CardNumber    string          `json:"card_number"`
	ImageURL      string          `json:"image_url"`
	LastUpdated   *time.Time      `json:"last_updated"`
}

// HoldingPriceUpdate sets the denormalized current price of one holding.
// UserID scopes the write so a stale update can never touch another user's row.
type HoldingPriceUpdate struct {
	HoldingID    uint            `json:"holding_id"`
	UserID       string          `json:"user_id"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

type AddHoldingRequest struct {
	CardID        string          `json:"card_id" binding:"required"`
	Quantity      int             `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
}

type UpdateHoldingRequest struct {
	Quantity      *int             `json:"quantity"`
	PurchasePrice *decimal.Decimal `json:"purchase_price"`
}

// PortfolioSummary is returned alongside the holdings list
type PortfolioSummary struct {
	Holdings    []PortfolioCard `json:"holdings"`
	TotalCards  int             `json:"total_cards"`
	UniqueCards int             `json:"unique_cards"`
	TotalValue  decimal.Decimal `json:"total_value"`
	TotalCost   decimal.Decimal `json:"total_cost"`
}

// Summarize computes totals over the given holdings using their current prices
func Summarize(holdings []PortfolioCard) PortfolioSummary {
	summary := PortfolioSummary{
		Holdings:   holdings,
		TotalValue: decimal.Zero,
		TotalCost:  decimal.Zero,
	}
	seen := make(map[string]bool)
	for _, h := range holdings {
		qty := decimal.NewFromInt(int64(h.Quantity))
		summary.TotalCards += h.Quantity
		summary.TotalValue = summary.TotalValue.Add(h.CurrentPrice.Mul(qty))
		summary.TotalCost = summary.TotalCost.Add(h.PurchasePrice.Mul(qty))
		if !seen[h.CardID] {
			seen[h.CardID] = true
			summary.UniqueCards++
		}
	}
	summary.TotalValue = summary.TotalValue.Round(2)
	summary.TotalCost = summary.TotalCost.Round(2)
	return summary
}
