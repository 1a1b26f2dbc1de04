package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/codyseavey/pokefolio/internal/services"
)

type PriceHandler struct {
	updater PriceUpdater
	logger  *zap.Logger
	baseCtx context.Context
}

// NewPriceHandler creates the price handlers. baseCtx is the server's
// lifetime context: manual cycles run on it, so shutdown ends their retry wait.
func NewPriceHandler(updater PriceUpdater, logger *zap.Logger, baseCtx context.Context) *PriceHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &PriceHandler{
		updater: updater,
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// GetPriceStatus returns the tracker state and next scheduled run
func (h *PriceHandler) GetPriceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.updater.Status())
}

// TriggerUpdate runs a full price update cycle and waits for it. With failing
// cards the response can take up to (MaxAttempts-1) x RetryDelay. The cycle
// runs on the server's context rather than the request's: a client
// disconnect does not cut it short, server shutdown does.
// Responds 409 when a cycle is already running.
func (h *PriceHandler) TriggerUpdate(c *gin.Context) {
	ok, err := h.updater.TryRunCycle(h.baseCtx, services.TriggerManual)
	if errors.Is(err, services.ErrCycleRunning) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": ok,
		"status":  h.updater.Status(),
	})
}

// RefreshCardPrice fetches one card's price now, updating the cache and today's history
func (h *PriceHandler) RefreshCardPrice(c *gin.Context) {
	cardID := c.Param("id")
	if cardID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "card id is required"})
		return
	}

	card, err := h.updater.UpdateCard(c.Request.Context(), cardID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"card": card,
	})
}
