package services

import (
	"github.com/shopspring/decimal"

	"github.com/codyseavey/pokefolio/internal/models"
)

// ValuationResult is the outcome of valuing one user's portfolio against a PriceMap
type ValuationResult struct {
	UserID     string
	Updates    []models.HoldingPriceUpdate
	TotalValue decimal.Decimal
	// Priced is the number of holdings that had a fresh price
	Priced int
	// Skipped is the number of holdings whose card was absent from the PriceMap
	Skipped int
}

// ValuePortfolio recomputes current prices and the total value for one user.
//
// Holdings whose card is missing from prices keep their previous current
// price and are left out of TotalValue entirely: the total only reflects
// holdings priced in this cycle.
func ValuePortfolio(userID string, holdings []models.PortfolioCard, prices models.PriceMap) ValuationResult {
	result := ValuationResult{
		UserID:     userID,
		Updates:    make([]models.HoldingPriceUpdate, 0, len(holdings)),
		TotalValue: decimal.Zero,
	}

	for _, h := range holdings {
		price, ok := prices[h.CardID]
		if !ok {
			result.Skipped++
			continue
		}

		price = price.Round(2)
		result.Updates = append(result.Updates, models.HoldingPriceUpdate{
			HoldingID:    h.ID,
			UserID:       userID,
			CurrentPrice: price,
		})
		result.TotalValue = result.TotalValue.Add(price.Mul(decimal.NewFromInt(int64(h.Quantity))))
		result.Priced++
	}

	result.TotalValue = result.TotalValue.Round(2)
	return result
}
