package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codyseavey/pokefolio/internal/database"
	"github.com/codyseavey/pokefolio/internal/models"
)

type PortfolioHandler struct {
	store   Store
	updater PriceUpdater
	logger  *zap.Logger
	now     func() time.Time
}

func NewPortfolioHandler(store Store, updater PriceUpdater, logger *zap.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		store:   store,
		updater: updater,
		logger:  logger,
		now:     time.Now,
	}
}

// GetPortfolio returns the caller's holdings with value and cost totals
func (h *PortfolioHandler) GetPortfolio(c *gin.Context) {
	holdings, err := h.store.GetAllPortfolioCards(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if holdings == nil {
		holdings = []models.PortfolioCard{}
	}
	c.JSON(http.StatusOK, models.Summarize(holdings))
}

// AddHolding records that the caller owns a card. A card that has never been
// looked up is fetched from the price source first so the holding starts with
// a current price.
func (h *PortfolioHandler) AddHolding(c *gin.Context) {
	var req models.AddHoldingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	card, err := h.store.GetCard(ctx, req.CardID)
	if errors.Is(err, database.ErrNotFound) {
		card, err = h.updater.UpdateCard(ctx, req.CardID)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	holding := models.PortfolioHolding{
		UserID:        currentUser(c),
		CardID:        card.ID,
		Quantity:      quantity,
		PurchasePrice: req.PurchasePrice,
		CurrentPrice:  card.CurrentPrice,
		AddedAt:       h.now(),
	}
	if err := h.store.CreateHolding(ctx, &holding); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, holding)
}

// UpdateHolding edits quantity and/or purchase price. Another user's holding
// is reported as not found.
func (h *PortfolioHandler) UpdateHolding(c *gin.Context) {
	id, ok := parseHoldingID(c)
	if !ok {
		return
	}

	var req models.UpdateHoldingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	holding, err := h.store.UpdateHolding(c.Request.Context(), id, currentUser(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, holding)
}

func (h *PortfolioHandler) DeleteHolding(c *gin.Context) {
	id, ok := parseHoldingID(c)
	if !ok {
		return
	}

	if err := h.store.DeleteHolding(c.Request.Context(), id, currentUser(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// GetValueHistory returns the caller's daily portfolio values for a period
func (h *PortfolioHandler) GetValueHistory(c *gin.Context) {
	period := normalizePeriod(c.Query("period"))

	rows, err := h.store.GetPortfolioValueHistory(c.Request.Context(), currentUser(c), models.PeriodStart(period, h.now()))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if rows == nil {
		rows = []models.PortfolioValueHistory{}
	}

	c.JSON(http.StatusOK, models.ValueHistoryResponse{
		Snapshots: rows,
		Period:    period,
	})
}

func parseHoldingID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func normalizePeriod(period string) string {
	switch period {
	case "week", "month", "3month", "year", "all":
		return period
	default:
		return "month"
	}
}
