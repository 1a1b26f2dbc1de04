package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codyseavey/pokefolio/internal/database"
	"github.com/codyseavey/pokefolio/internal/models"
)

type CardHandler struct {
	store   Store
	updater PriceUpdater
	logger  *zap.Logger
	now     func() time.Time
}

func NewCardHandler(store Store, updater PriceUpdater, logger *zap.Logger) *CardHandler {
	return &CardHandler{
		store:   store,
		updater: updater,
		logger:  logger,
		now:     time.Now,
	}
}

// GetCard returns the cached snapshot, fetching and caching it on first lookup
func (h *CardHandler) GetCard(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	card, err := h.store.GetCard(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		card, err = h.updater.UpdateCard(ctx, id)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

// GetPriceHistory returns a card's daily prices for a period
func (h *CardHandler) GetPriceHistory(c *gin.Context) {
	id := c.Param("id")
	period := normalizePeriod(c.Query("period"))

	rows, err := h.store.GetCardPriceHistory(c.Request.Context(), id, models.PeriodStart(period, h.now()))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if rows == nil {
		rows = []models.CardPriceHistory{}
	}

	c.JSON(http.StatusOK, models.PriceHistoryResponse{
		CardID: id,
		Prices: rows,
		Period: period,
	})
}
