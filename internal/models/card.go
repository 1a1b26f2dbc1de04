package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Card is the cached snapshot of a card from the upstream price source.
// Rows are created on first lookup and refreshed whenever a new price is
// fetched. They are never deleted, even once no holding references them.
type Card struct {
	ID            string          `json:"id" gorm:"primaryKey"`
	Name          string          `json:"name" gorm:"not null;index"`
	SetName       string          `json:"set_name"`
	CardNumber    string          `json:"card_number"`
	ImageURL      string          `json:"image_url"`
	ImageURLLarge string          `json:"image_url_large"`
	CurrentPrice  decimal.Decimal `json:"current_price" gorm:"type:decimal(10,2);not null;default:0"`
	LastUpdated   *time.Time      `json:"last_updated"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PriceMap holds the prices fetched during a single tracker attempt, keyed by card ID.
type PriceMap map[string]decimal.Decimal
